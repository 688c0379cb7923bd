package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus instruments.
//
//   - convrag_turns_total{route,outcome}
//   - convrag_turn_duration_seconds{route}
//   - convrag_degradations_total{stage}
//   - convrag_ingested_documents_total
//   - convrag_ingested_chunks_total
type Metrics struct {
	Turns             *prometheus.CounterVec
	TurnDuration      *prometheus.HistogramVec
	Degradations      *prometheus.CounterVec
	IngestedDocuments prometheus.Counter
	IngestedChunks    prometheus.Counter
}

// NewMetrics registers the instruments with reg. A nil reg uses a private
// registry, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "convrag_turns_total",
			Help: "Conversation turns by route and outcome",
		}, []string{"route", "outcome"}),
		TurnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "convrag_turn_duration_seconds",
			Help:    "Duration of conversation turns in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"route"}),
		Degradations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "convrag_degradations_total",
			Help: "Pipeline stages that fell back instead of failing",
		}, []string{"stage"}),
		IngestedDocuments: f.NewCounter(prometheus.CounterOpts{
			Name: "convrag_ingested_documents_total",
			Help: "Documents ingested",
		}),
		IngestedChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "convrag_ingested_chunks_total",
			Help: "Chunks added to indexes",
		}),
	}
}
