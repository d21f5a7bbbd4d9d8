package domain

import (
	"fmt"
	"time"
)

// Metrics are the quality signals of a block.
//
// TestPassRate is derived from Tally, never averaged: it is always
// accumulated passes over accumulated runs, so applying the same set of
// deltas in any order yields the same value.
type Metrics struct {
	TestCount       int       `json:"test_count" yaml:"test_count" mapstructure:"test_count"`
	TestPassRate    float64   `json:"test_pass_rate" yaml:"test_pass_rate" mapstructure:"test_pass_rate"`
	UsageCount      int64     `json:"usage_count" yaml:"usage_count" mapstructure:"usage_count"`
	DependentCount  int64     `json:"dependent_count" yaml:"dependent_count" mapstructure:"dependent_count"`
	MaintainerScore float64   `json:"maintainer_score" yaml:"maintainer_score" mapstructure:"maintainer_score"`
	LastUpdated     time.Time `json:"last_updated" yaml:"last_updated" mapstructure:"last_updated"`
	// LatencyMillis is the mean observed latency; zero means unknown.
	LatencyMillis float64 `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty" mapstructure:"latency_ms"`

	Tally Tally `json:"tally" yaml:"tally" mapstructure:"-"`
}

// Tally holds the integer accumulators behind the derived rates.
type Tally struct {
	SeedRuns       int     `json:"seed_runs" yaml:"seed_runs"`
	SeedPassRate   float64 `json:"seed_pass_rate" yaml:"seed_pass_rate"`
	Runs           int     `json:"runs" yaml:"runs"`
	Passes         int     `json:"passes" yaml:"passes"`
	LatencySamples int     `json:"latency_samples,omitempty" yaml:"latency_samples,omitempty"`
	LatencyTotal   float64 `json:"latency_total_ms,omitempty" yaml:"latency_total_ms,omitempty"`
}

// Seed captures the registered values as the baseline of the tally.
func (m Metrics) Seed() Metrics {
	m.Tally = Tally{
		SeedRuns:     m.TestCount,
		SeedPassRate: m.TestPassRate,
	}
	return m
}

// problems lists every metric outside its range. Rates and scores live in
// [0,1]; counters and latency are never negative.
func (m Metrics) problems() []string {
	var out []string
	if m.TestCount < 0 {
		out = append(out, fmt.Sprintf("metrics.test_count must not be negative, got %d", m.TestCount))
	}
	if !unit(m.TestPassRate) {
		out = append(out, fmt.Sprintf("metrics.test_pass_rate must be within [0,1], got %v", m.TestPassRate))
	}
	if m.UsageCount < 0 {
		out = append(out, fmt.Sprintf("metrics.usage_count must not be negative, got %d", m.UsageCount))
	}
	if m.DependentCount < 0 {
		out = append(out, fmt.Sprintf("metrics.dependent_count must not be negative, got %d", m.DependentCount))
	}
	if !unit(m.MaintainerScore) {
		out = append(out, fmt.Sprintf("metrics.maintainer_score must be within [0,1], got %v", m.MaintainerScore))
	}
	if !(m.LatencyMillis >= 0) {
		out = append(out, fmt.Sprintf("metrics.latency_ms must not be negative, got %v", m.LatencyMillis))
	}
	return out
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

// MetricsDelta is an additive metrics update.
type MetricsDelta struct {
	TestRuns   int   `json:"test_runs" yaml:"test_runs"`
	TestPasses int   `json:"test_passes" yaml:"test_passes"`
	Usage      int64 `json:"usage" yaml:"usage"`
	Dependents int64 `json:"dependents" yaml:"dependents"`
	// LatencySamples observed latencies in milliseconds.
	LatencySamples []float64 `json:"latency_samples,omitempty" yaml:"latency_samples,omitempty"`
	At             time.Time `json:"at" yaml:"at"`
}

// Validate rejects deltas that would move a counter backwards.
func (d MetricsDelta) Validate() error {
	switch {
	case d.TestRuns < 0, d.TestPasses < 0, d.Usage < 0, d.Dependents < 0:
		return fmt.Errorf("%w: counters must not be negative", ErrInvalidDelta)
	case d.TestPasses > d.TestRuns:
		return fmt.Errorf("%w: %d passes exceed %d runs", ErrInvalidDelta, d.TestPasses, d.TestRuns)
	}
	for _, l := range d.LatencySamples {
		if l < 0 {
			return fmt.Errorf("%w: negative latency sample %v", ErrInvalidDelta, l)
		}
	}
	return nil
}

// Apply returns m with d added. The result does not depend on the order in
// which a set of deltas is applied.
func (m Metrics) Apply(d MetricsDelta) (Metrics, error) {
	if err := d.Validate(); err != nil {
		return m, err
	}

	m.Tally.Runs += d.TestRuns
	m.Tally.Passes += d.TestPasses
	m.TestCount = m.Tally.SeedRuns + m.Tally.Runs
	if m.TestCount > 0 {
		seedPasses := m.Tally.SeedPassRate * float64(m.Tally.SeedRuns)
		m.TestPassRate = (seedPasses + float64(m.Tally.Passes)) / float64(m.TestCount)
	}

	m.UsageCount += d.Usage
	m.DependentCount += d.Dependents

	if len(d.LatencySamples) > 0 {
		for _, l := range d.LatencySamples {
			m.Tally.LatencyTotal += l
		}
		m.Tally.LatencySamples += len(d.LatencySamples)
		m.LatencyMillis = m.Tally.LatencyTotal / float64(m.Tally.LatencySamples)
	}

	if d.At.After(m.LastUpdated) {
		m.LastUpdated = d.At
	}
	return m, nil
}
