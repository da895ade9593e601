package embedding

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the embedding service.
type Metrics struct {
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal prometheus.Counter
	EvictionsTotal   prometheus.Counter
	ProviderDuration *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec
	BatchSize        prometheus.Histogram
}

// NewMetrics creates and registers Prometheus metrics for the embedding
// service. sync.Once guards against duplicate collector registration.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clauselens_embedding_cache_hits_total",
					Help: "Embedding cache hits by tier",
				},
				[]string{"tier"}, // "memory" or "persistent"
			),
			CacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "clauselens_embedding_cache_misses_total",
					Help: "Embedding cache misses requiring model computation",
				},
			),
			EvictionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "clauselens_embedding_cache_evictions_total",
					Help: "Entries dropped from the in-process cache",
				},
			),
			ProviderDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "clauselens_embedding_provider_duration_seconds",
					Help:    "Duration of provider embedding calls",
					Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				},
				[]string{"model"},
			),
			ProviderErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clauselens_embedding_provider_errors_total",
					Help: "Provider embedding call failures",
				},
				[]string{"model"},
			),
			BatchSize: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "clauselens_embedding_batch_size",
					Help:    "Number of texts per flushed embedding batch",
					Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
				},
			),
		}
	})
	return globalMetrics
}
