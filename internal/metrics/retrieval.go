package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval, ranking and ledger metrics.
var (
	IndexRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_requests_total",
			Help:      "Vector index operations by tier, operation and status",
		},
		[]string{"tier", "op", "status"},
	)

	IndexRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_request_duration_seconds",
			Help:      "Vector index operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"tier", "op"},
	)

	IndexFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_fallback_total",
			Help:      "Reads served by the secondary tier because the primary failed",
		},
		[]string{"op"},
	)

	FusionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_total",
			Help:      "Fusion ranker calls by strategy and outcome (full, partial, unavailable)",
		},
		[]string{"strategy", "outcome"},
	)

	IntentDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_decisions_total",
			Help:      "Intent classifier decisions",
		},
		[]string{"intent", "source", "degraded"},
	)

	ExplainTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explain_total",
			Help:      "Candidate explanations by result (explained, fallback)",
		},
		[]string{"result"},
	)

	ReasoningDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reasoning_request_duration_seconds",
			Help:      "External reasoning call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"provider", "op", "status"},
	)

	SwipesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swipes_total",
			Help:      "Recorded swipes by direction and result (recorded, duplicate)",
		},
		[]string{"direction", "result"},
	)

	MatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Mutual matches created",
		},
	)

	ProfileUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_upserts_total",
			Help:      "Profile upserts by result (indexed, unchanged, stale, invalid)",
		},
		[]string{"result"},
	)
)

var registerRetrievalOnce sync.Once

// RegisterRetrievalMetrics registers retrieval/ranking/ledger metrics. Called once from main.
func RegisterRetrievalMetrics() {
	registerRetrievalOnce.Do(func() {
		prometheus.MustRegister(
			IndexRequestsTotal,
			IndexRequestDuration,
			IndexFallbackTotal,
			FusionTotal,
			IntentDecisionsTotal,
			ExplainTotal,
			ReasoningDuration,
			SwipesTotal,
			MatchesTotal,
			ProfileUpsertsTotal,
		)
	})
}

// BoolLabel renders a bool as a metric label value.
func BoolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
