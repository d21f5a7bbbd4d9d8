// Package ranking scores blocks with a fixed, auditable weighted sum.
//
// The weight vector is selected by a named profile. Only the four profiles
// defined here exist; configuration may retune their weights but never add
// new names, so every score can be explained term by term.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/tessera/pkg/domain"
)

// Profile names a weight vector.
type Profile string

const (
	ProfileDefault         Profile = "default"
	ProfileHighPerformance Profile = "high_performance"
	ProfileHighReliability Profile = "high_reliability"
	ProfileOffline         Profile = "offline"
)

// ParseProfile validates a profile name. Empty selects ProfileDefault.
func ParseProfile(s string) (Profile, error) {
	if s == "" {
		return ProfileDefault, nil
	}
	p := Profile(s)
	if _, ok := defaultProfiles[p]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownRankingProfile, s)
	}
	return p, nil
}

// Names lists every profile name in sorted order.
func Names() []Profile {
	out := make([]Profile, 0, len(defaultProfiles))
	for p := range defaultProfiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ProfileHelp is a one-line usage text naming every profile.
func ProfileHelp() string {
	names := make([]string, 0, len(defaultProfiles))
	for _, p := range Names() {
		names = append(names, string(p))
	}
	return "Ranking profile: " + strings.Join(names, ", ") + " (empty selects " + string(ProfileDefault) + ")"
}

// Weights of each scoring term.
type Weights struct {
	Semantic    float64 `mapstructure:"semantic" yaml:"semantic" json:"semantic"`
	TestPass    float64 `mapstructure:"test_pass" yaml:"test_pass" json:"test_pass"`
	Usage       float64 `mapstructure:"usage" yaml:"usage" json:"usage"`
	Maintainer  float64 `mapstructure:"maintainer" yaml:"maintainer" json:"maintainer"`
	Recency     float64 `mapstructure:"recency" yaml:"recency" json:"recency"`
	Specificity float64 `mapstructure:"specificity" yaml:"specificity" json:"specificity"`
	Performance float64 `mapstructure:"performance" yaml:"performance" json:"performance"`
}

var defaultProfiles = map[Profile]Weights{
	ProfileDefault:         {Semantic: 0.3, TestPass: 0.2, Usage: 0.2, Maintainer: 0.1, Recency: 0.1, Specificity: 0.1},
	ProfileHighPerformance: {Semantic: 0.25, TestPass: 0.15, Usage: 0.15, Maintainer: 0.05, Recency: 0.05, Specificity: 0.1, Performance: 0.25},
	ProfileHighReliability: {Semantic: 0.2, TestPass: 0.35, Usage: 0.2, Maintainer: 0.15, Recency: 0.05, Specificity: 0.05},
	ProfileOffline:         {TestPass: 0.3, Usage: 0.3, Maintainer: 0.15, Recency: 0.1, Specificity: 0.15},
}

// DefaultWeights returns the built-in weights of p.
func DefaultWeights(p Profile) (Weights, bool) {
	w, ok := defaultProfiles[p]
	return w, ok
}

// Config tunes the engine.
type Config struct {
	// Staleness is the age at which the recency term reaches zero.
	Staleness time.Duration
	// LatencyReference is the latency, in milliseconds, scoring 0.5 on the performance term.
	LatencyReference float64
	// Overrides replaces the weights of existing profiles.
	Overrides map[string]Weights
}

// DefaultConfig returns a one-year staleness window and a 100ms latency reference.
func DefaultConfig() Config {
	return Config{
		Staleness:        365 * 24 * time.Hour,
		LatencyReference: 100,
	}
}

// Engine computes block scores.
type Engine struct {
	profiles   map[Profile]Weights
	staleness  time.Duration
	latencyRef float64
}

// New builds an Engine. Overrides naming an unknown profile are rejected with
// domain.ErrUnknownRankingProfile.
func New(cfg Config) (*Engine, error) {
	def := DefaultConfig()
	if cfg.Staleness <= 0 {
		cfg.Staleness = def.Staleness
	}
	if cfg.LatencyReference <= 0 {
		cfg.LatencyReference = def.LatencyReference
	}

	e := &Engine{
		profiles:   make(map[Profile]Weights, len(defaultProfiles)),
		staleness:  cfg.Staleness,
		latencyRef: cfg.LatencyReference,
	}
	for p, w := range defaultProfiles {
		e.profiles[p] = w
	}
	for name, w := range cfg.Overrides {
		p, err := ParseProfile(name)
		if err != nil {
			return nil, err
		}
		e.profiles[p] = w
	}
	return e, nil
}

// Profiles lists the known profile names in sorted order.
func (e *Engine) Profiles() []Profile {
	return Names()
}

// Weights returns the active weights of p.
func (e *Engine) Weights(p Profile) (Weights, error) {
	if p == "" {
		p = ProfileDefault
	}
	w, ok := e.profiles[p]
	if !ok {
		return Weights{}, fmt.Errorf("%w: %q", domain.ErrUnknownRankingProfile, p)
	}
	return w, nil
}

// Context carries the query-dependent inputs of a score.
type Context struct {
	Profile Profile
	// Semantic is the raw semantic match of the block against the query, in [0,1].
	Semantic float64
	// MaxUsage is the largest usage_count in the candidate set.
	MaxUsage int64
	// Tags and Category describe what the caller asked for.
	Tags     []string
	Category string
	Now      time.Time
}

// Terms are the normalized inputs of a score, each in [0,1].
type Terms struct {
	Semantic    float64 `json:"semantic"`
	TestPass    float64 `json:"test_pass"`
	Usage       float64 `json:"usage"`
	Maintainer  float64 `json:"maintainer"`
	Recency     float64 `json:"recency"`
	Specificity float64 `json:"specificity"`
	Performance float64 `json:"performance"`
}

// Terms computes the normalized scoring terms of b.
func (e *Engine) Terms(b domain.BlockManifest, c Context) Terms {
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	return Terms{
		Semantic:    clamp(c.Semantic),
		TestPass:    clamp(b.Metrics.TestPassRate),
		Usage:       usageTerm(b.Metrics.UsageCount, c.MaxUsage),
		Maintainer:  clamp(b.Metrics.MaintainerScore),
		Recency:     e.recency(b.Metrics.LastUpdated, now),
		Specificity: specificity(b, c),
		Performance: e.performance(b.Metrics.LatencyMillis),
	}
}

// Score returns the weighted score of b in [0,1].
func (e *Engine) Score(b domain.BlockManifest, c Context) (float64, error) {
	w, err := e.Weights(c.Profile)
	if err != nil {
		return 0, err
	}
	t := e.Terms(b, c)
	s := w.Semantic*t.Semantic +
		w.TestPass*t.TestPass +
		w.Usage*t.Usage +
		w.Maintainer*t.Maintainer +
		w.Recency*t.Recency +
		w.Specificity*t.Specificity +
		w.Performance*t.Performance
	return clamp(s), nil
}

// MaxUsage returns the largest usage_count among blocks.
func MaxUsage(blocks []domain.BlockManifest) int64 {
	var max int64
	for _, b := range blocks {
		if b.Metrics.UsageCount > max {
			max = b.Metrics.UsageCount
		}
	}
	return max
}

func usageTerm(usage, max int64) float64 {
	if usage <= 0 || max <= 0 {
		return 0
	}
	return clamp(math.Log1p(float64(usage)) / math.Log1p(float64(max)))
}

func (e *Engine) recency(last, now time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	age := now.Sub(last)
	if age <= 0 {
		return 1
	}
	return clamp(1 - float64(age)/float64(e.staleness))
}

func specificity(b domain.BlockManifest, c Context) float64 {
	for _, t := range c.Tags {
		if b.HasTag(t) {
			return 1
		}
	}
	if c.Category != "" && b.Category == c.Category {
		return 0.5
	}
	return 0
}

func (e *Engine) performance(latency float64) float64 {
	if latency <= 0 {
		return 0
	}
	return e.latencyRef / (e.latencyRef + latency)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
