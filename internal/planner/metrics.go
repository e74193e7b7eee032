package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup outcomes recorded by Metrics.
const (
	OutcomeLoaded = "loaded"
	OutcomeFailed = "failed"
	OutcomeStale  = "stale"
)

// Metrics exposes controller activity as Prometheus metrics. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Lookups        *prometheus.CounterVec
	LookupDuration prometheus.Histogram
	Navigations    *prometheus.CounterVec
}

// NewMetrics registers planner metrics against reg, or the default
// registerer when reg is nil. Registering twice on the same registry
// reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_lookups_total",
		Help: "Completed route lookups by outcome (loaded, failed, stale).",
	}, []string{"outcome"})
	if err := register(reg, &lookups); err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_lookup_duration_seconds",
		Help:    "Wall time of directions lookups, including superseded ones.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	if err := register(reg, &duration); err != nil {
		return nil, err
	}

	navigations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_navigations_total",
		Help: "Navigation messages emitted by page.",
	}, []string{"page"})
	if err := register(reg, &navigations); err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:       gatherer,
		Lookups:        lookups,
		LookupDuration: duration,
		Navigations:    navigations,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				*c = existing
				return nil
			}
		}
		return fmt.Errorf("registering planner metric: %w", err)
	}
	return nil
}

// Gatherer returns the Prometheus gatherer associated with the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

func (m *Metrics) observeLookup(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(outcome).Inc()
	m.LookupDuration.Observe(d.Seconds())
}

func (m *Metrics) observeNavigation(page string) {
	if m == nil {
		return
	}
	m.Navigations.WithLabelValues(page).Inc()
}
