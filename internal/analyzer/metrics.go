package analyzer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the analysis pipeline.
type Metrics struct {
	StageDuration   *prometheus.HistogramVec
	ClausesAnalyzed *prometheus.CounterVec
	MissingClauses  prometheus.Counter
	DocumentRisk    prometheus.Histogram
}

// NewMetrics creates and registers Prometheus metrics for the analyzer.
// sync.Once guards against duplicate collector registration.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "clauselens_analysis_stage_duration_seconds",
					Help:    "Duration of each fallback chain stage",
					Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
				},
				[]string{"stage"},
			),
			ClausesAnalyzed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clauselens_analysis_clauses_total",
					Help: "Clause analyses by resolving stage",
				},
				[]string{"stage"},
			),
			MissingClauses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "clauselens_analysis_missing_clauses_total",
					Help: "Clause types not found in analyzed documents",
				},
			),
			DocumentRisk: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "clauselens_analysis_document_risk",
					Help:    "Overall document risk level distribution",
					Buckets: []float64{1, 2, 3, 4, 5},
				},
			),
		}
	})
	return globalMetrics
}
