package ranking

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSearchDuration    = "ranking_search_duration_seconds"
	MetricCacheHits         = "ranking_embedding_cache_hits_total"
	MetricCacheMisses       = "ranking_embedding_cache_misses_total"
	MetricEmbeddingFailures = "ranking_embedding_failures_total"
)

// Failure reasons for MetricEmbeddingFailures.
const (
	ReasonTimeout     = "timeout"
	ReasonUnavailable = "unavailable"
)

// Metrics contains Prometheus metrics for ranking. A nil *Metrics records nothing.
type Metrics struct {
	searchDuration    prometheus.Histogram
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	embeddingFailures *prometheus.CounterVec
}

// NewMetrics creates unregistered ranking metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricSearchDuration,
			Help:    "Duration of ranking searches in seconds, including embedding",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheHits,
			Help: "Document vectors served from the embedding cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheMisses,
			Help: "Document vectors that had to be embedded",
		}),
		embeddingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEmbeddingFailures,
			Help: "Searches that failed to embed, by reason",
		}, []string{"reason"}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.searchDuration,
		m.cacheHits,
		m.cacheMisses,
		m.embeddingFailures,
	}
}

func (m *Metrics) observeSearch(d time.Duration, err error) {
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.searchDuration.Observe(d.Seconds())
	case errors.Is(err, ErrEmbeddingTimeout):
		m.embeddingFailures.WithLabelValues(ReasonTimeout).Inc()
	case errors.Is(err, ErrEmbeddingUnavailable):
		m.embeddingFailures.WithLabelValues(ReasonUnavailable).Inc()
	}
}

func (m *Metrics) observeCache(hits, misses int) {
	if m == nil {
		return
	}
	m.cacheHits.Add(float64(hits))
	m.cacheMisses.Add(float64(misses))
}
