package vector

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kailas-cloud/kindred/internal/domain"
)

var tracer = otel.Tracer("github.com/kailas-cloud/kindred/internal/repository/vector")

// Instrumented decorates a VectorIndex with tracing spans and Prometheus metrics.
type Instrumented struct {
	inner    domain.VectorIndex
	tier     string
	requests *prometheus.CounterVec   // labels: tier, op, status
	duration *prometheus.HistogramVec // labels: tier, op
}

// NewInstrumented wraps an index. Metric vectors may be nil.
func NewInstrumented(
	inner domain.VectorIndex,
	tier string,
	requests *prometheus.CounterVec,
	duration *prometheus.HistogramVec,
) *Instrumented {
	return &Instrumented{inner: inner, tier: tier, requests: requests, duration: duration}
}

// Upsert delegates with instrumentation.
func (i *Instrumented) Upsert(ctx context.Context, rec domain.IndexRecord) error {
	ctx, span := i.start(ctx, "upsert", attribute.String("entity_id", rec.EntityID))
	start := time.Now()
	err := i.inner.Upsert(ctx, rec)
	i.finish(span, "upsert", start, err, -1)
	return err
}

// QueryDense delegates with instrumentation.
func (i *Instrumented) QueryDense(ctx context.Context, vec []float32, limit int, exclude []string) ([]domain.Hit, error) {
	ctx, span := i.start(ctx, "query_dense", attribute.Int("limit", limit), attribute.Int("exclude", len(exclude)))
	start := time.Now()
	hits, err := i.inner.QueryDense(ctx, vec, limit, exclude)
	i.finish(span, "query_dense", start, err, len(hits))
	return hits, err
}

// QuerySparse delegates with instrumentation.
func (i *Instrumented) QuerySparse(
	ctx context.Context, vec domain.SparseVector, limit int, exclude []string,
) ([]domain.Hit, error) {
	ctx, span := i.start(ctx, "query_sparse", attribute.Int("limit", limit), attribute.Int("terms", vec.Len()))
	start := time.Now()
	hits, err := i.inner.QuerySparse(ctx, vec, limit, exclude)
	i.finish(span, "query_sparse", start, err, len(hits))
	return hits, err
}

// SetSearchable delegates with instrumentation.
func (i *Instrumented) SetSearchable(ctx context.Context, entityID string, searchable bool) error {
	ctx, span := i.start(ctx, "set_searchable",
		attribute.String("entity_id", entityID), attribute.Bool("searchable", searchable))
	start := time.Now()
	err := i.inner.SetSearchable(ctx, entityID, searchable)
	i.finish(span, "set_searchable", start, err, -1)
	return err
}

func (i *Instrumented) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tier", i.tier))
	return tracer.Start(ctx, "index."+op, trace.WithAttributes(attrs...))
}

func (i *Instrumented) finish(span trace.Span, op string, start time.Time, err error, results int) {
	defer span.End()

	status := "ok"
	switch {
	case errors.Is(err, domain.ErrSparseUnsupported):
		status = "unsupported"
	case err != nil:
		status = "error"
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		if results >= 0 {
			span.SetAttributes(attribute.Int("results_count", results))
		}
		span.SetStatus(codes.Ok, "")
	}

	if i.requests != nil {
		i.requests.WithLabelValues(i.tier, op, status).Inc()
	}
	if i.duration != nil {
		i.duration.WithLabelValues(i.tier, op).Observe(time.Since(start).Seconds())
	}
}
