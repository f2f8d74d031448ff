// Package metrics holds the Prometheus collectors for catalog reconciliation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	SearchesTotal    *prometheus.CounterVec
	VerdictsTotal    *prometheus.CounterVec
	EnsuresTotal     *prometheus.CounterVec
	ResolutionsTotal *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
}

// New registers the collectors on the default registry once per process.
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SearchesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "catalog_searches_total",
					Help: "Catalog searches by entity type and outcome",
				},
				[]string{"type", "outcome"}, // "ok" or "inconclusive"
			),
			VerdictsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "catalog_duplicate_verdicts_total",
					Help: "Duplicate detection verdicts by entity type and confidence",
				},
				[]string{"type", "confidence"},
			),
			EnsuresTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "catalog_ensures_total",
					Help: "Ensure-in-catalog calls by entity type and result",
				},
				[]string{"type", "result"}, // "matched", "created", "failed"
			),
			ResolutionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "library_book_resolutions_total",
					Help: "Composite book resolutions by result",
				},
				[]string{"result"}, // "attached", "failed", "partial"
			),
			CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "catalog_search_cache_hits_total",
				Help: "Catalog search cache hits",
			}),
			CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "catalog_search_cache_misses_total",
				Help: "Catalog search cache misses",
			}),
		}
	})
	return globalMetrics
}

func (m *Metrics) Search(typ string, inconclusive bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if inconclusive {
		outcome = "inconclusive"
	}
	m.SearchesTotal.WithLabelValues(typ, outcome).Inc()
}

func (m *Metrics) Verdict(typ, confidence string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(typ, confidence).Inc()
}

func (m *Metrics) Ensure(typ, result string) {
	if m == nil {
		return
	}
	m.EnsuresTotal.WithLabelValues(typ, result).Inc()
}

func (m *Metrics) Resolution(result string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}
