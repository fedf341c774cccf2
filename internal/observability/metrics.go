// Package observability exposes catalog fetch, cache and install activity as
// Prometheus metrics.
package observability

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"langpacks/internal/api"
)

const namespace = "langpacks"

// Metrics holds the collectors. Create with NewMetrics.
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	installs      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. Collectors that
// are already registered are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fetches_total",
			Help:      "Catalog HTTP fetches by variant and outcome.",
		}, []string{"variant", "status", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_fetch_duration_seconds",
			Help:      "Catalog HTTP fetch latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"variant"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_lookups_total",
			Help:      "Catalog cache lookups by result.",
		}, []string{"result"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Translation install attempts by project, locale and result.",
		}, []string{"project", "locale", "result"}),
	}
	m.fetches = register(reg, m.fetches)
	m.fetchDuration = register(reg, m.fetchDuration)
	m.cacheLookups = register(reg, m.cacheLookups)
	m.installs = register(reg, m.installs)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// APIHooks returns client hooks feeding these metrics.
func (m *Metrics) APIHooks() api.Hooks {
	return api.Hooks{
		OnFetch: func(ev api.FetchEvent) {
			result := "ok"
			if ev.Err != nil {
				result = "error"
			}
			status := "none"
			if ev.StatusCode != 0 {
				status = strconv.Itoa(ev.StatusCode)
			}
			m.fetches.WithLabelValues(ev.Variant, status, result).Inc()
			m.fetchDuration.WithLabelValues(ev.Variant).Observe(ev.Duration.Seconds())
		},
		OnCacheLookup: func(_ string, hit bool) {
			result := "miss"
			if hit {
				result = "hit"
			}
			m.cacheLookups.WithLabelValues(result).Inc()
		},
	}
}

// ObserveInstall records one install attempt.
func (m *Metrics) ObserveInstall(projectID, locale string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.installs.WithLabelValues(projectID, locale, result).Inc()
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics registered on the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewPrometheusHooks returns client hooks recording into the global registry.
func NewPrometheusHooks() api.Hooks {
	return Default().APIHooks()
}
