package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/registry"
)

// Namespace prefixes every tessera metric.
const Namespace = "tessera"

// StatsSource reports the registry-wide counts exported as gauges.
type StatsSource interface {
	Stats() registry.Stats
}

// StatsFunc adapts a function to StatsSource.
type StatsFunc func() registry.Stats

// Stats implements StatsSource.
func (f StatsFunc) Stats() registry.Stats { return f() }

// Metrics holds the Prometheus collectors updated by Hooks.
type Metrics struct {
	writes      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	validations *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	validateDur prometheus.Histogram
	searches    *prometheus.CounterVec
	searchDur   *prometheus.HistogramVec
	stats       StatsSource
	blocksDesc  *prometheus.Desc
}

// NewMetrics creates the collectors and registers them on reg. When stats is
// non-nil a per-state block gauge is exported as well.
func NewMetrics(reg prometheus.Registerer, stats StatsSource) (*Metrics, error) {
	m := &Metrics{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "registry_writes_total",
			Help:      "Registry writes by kind and outcome.",
		}, []string{"event", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Successful lifecycle transitions by target state.",
		}, []string{"to"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "validations_total",
			Help:      "Graph validations by outcome.",
		}, []string{"outcome"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "validation_diagnostics_total",
			Help:      "Diagnostics reported by graph validation, by severity.",
		}, []string{"severity"}),
		validateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "validation_duration_seconds",
			Help:      "Duration of graph validations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "searches_total",
			Help:      "Searches by mode and outcome.",
		}, []string{"mode", "outcome"}),
		searchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of searches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		stats: stats,
		blocksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "blocks"),
			"Registered block versions by lifecycle state.",
			[]string{"state"}, nil,
		),
	}

	collectors := []prometheus.Collector{
		m.writes, m.transitions, m.validations, m.diagnostics,
		m.validateDur, m.searches, m.searchDur,
	}
	if stats != nil {
		collectors = append(collectors, stateCollector{m})
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	block := func(_ context.Context, e *domain.BlockEvent) {
		m.writes.WithLabelValues(string(e.Type), outcome(e.Err)).Inc()
		if e.Type == domain.EventStateChanged && e.Err == nil {
			m.transitions.WithLabelValues(string(e.To)).Inc()
		}
	}
	return domain.LifecycleHooks{
		OnRegister:      block,
		OnMetricsUpdate: block,
		OnTransition:    block,
		OnValidate: func(_ context.Context, e *domain.ValidationEvent) {
			result := "valid"
			if e.Errors > 0 {
				result = "invalid"
			}
			m.validations.WithLabelValues(result).Inc()
			m.diagnostics.WithLabelValues(string(domain.SeverityError)).Add(float64(e.Errors))
			m.diagnostics.WithLabelValues(string(domain.SeverityWarning)).Add(float64(e.Warnings))
			m.validateDur.Observe(e.Duration.Seconds())
		},
		OnSearch: func(_ context.Context, e *domain.SearchEvent) {
			result := outcome(e.Err)
			if e.Err == nil && e.CacheHit {
				result = "cache_hit"
			}
			m.searches.WithLabelValues(e.Mode, result).Inc()
			m.searchDur.WithLabelValues(e.Mode).Observe(e.Duration.Seconds())
		},
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// stateCollector exports the per-state gauge from a fresh Stats on scrape.
type stateCollector struct{ m *Metrics }

func (c stateCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.m.blocksDesc }

func (c stateCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.m.stats.Stats()
	for _, s := range domain.LifecycleStates {
		ch <- prometheus.MustNewConstMetric(c.m.blocksDesc, prometheus.GaugeValue, float64(st.States[s]), string(s))
	}
}
