package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/resilience"
)

// Breaker operation names.
const (
	opUpsert        = "index.upsert"
	opQueryDense    = "index.query_dense"
	opQuerySparse   = "index.query_sparse"
	opSetSearchable = "index.set_searchable"
)

// Tiered routes writes to the primary then the secondary, and serves reads
// from the primary with fallback to the secondary when the primary fails or
// its circuit is open.
type Tiered struct {
	primary   domain.VectorIndex
	secondary domain.VectorIndex // nil = no fallback
	exec      *resilience.Executor
	fallbacks *prometheus.CounterVec
	logger    *zap.Logger
}

// NewTiered composes two indexes. secondary may be nil. fallbacks has label
// "op" and may be nil.
func NewTiered(
	primary, secondary domain.VectorIndex,
	exec *resilience.Executor,
	fallbacks *prometheus.CounterVec,
	logger *zap.Logger,
) *Tiered {
	return &Tiered{primary: primary, secondary: secondary, exec: exec, fallbacks: fallbacks, logger: logger}
}

// Upsert writes to the primary first. The secondary is written only after
// the primary succeeds; its failure is logged, not returned.
func (t *Tiered) Upsert(ctx context.Context, rec domain.IndexRecord) error {
	_, err := t.exec.Execute(ctx, opUpsert, func(ctx context.Context) error {
		return t.primary.Upsert(ctx, rec)
	}, classifyIndexErr)
	if err != nil {
		return fmt.Errorf("primary index upsert: %w", mapBreakerErr(err))
	}

	if t.secondary != nil {
		if err := t.secondary.Upsert(ctx, rec); err != nil {
			t.logger.Warn("Secondary index upsert failed",
				zap.String("entity_id", rec.EntityID), zap.Error(err))
		}
	}
	return nil
}

// QueryDense queries the primary, falling back to the secondary.
func (t *Tiered) QueryDense(ctx context.Context, vec []float32, limit int, exclude []string) ([]domain.Hit, error) {
	var hits []domain.Hit
	_, err := t.exec.Execute(ctx, opQueryDense, func(ctx context.Context) error {
		var qerr error
		hits, qerr = t.primary.QueryDense(ctx, vec, limit, exclude)
		return qerr
	}, classifyIndexErr)
	if err == nil {
		return hits, nil
	}
	if t.secondary == nil || ctx.Err() != nil {
		return nil, mapBreakerErr(err)
	}

	t.fallback("query_dense", err)
	return t.secondary.QueryDense(ctx, vec, limit, exclude)
}

// QuerySparse queries the primary, falling back to the secondary (which may
// not support sparse vectors).
func (t *Tiered) QuerySparse(
	ctx context.Context, vec domain.SparseVector, limit int, exclude []string,
) ([]domain.Hit, error) {
	var hits []domain.Hit
	_, err := t.exec.Execute(ctx, opQuerySparse, func(ctx context.Context) error {
		var qerr error
		hits, qerr = t.primary.QuerySparse(ctx, vec, limit, exclude)
		return qerr
	}, classifyIndexErr)
	if err == nil {
		return hits, nil
	}
	if t.secondary == nil || ctx.Err() != nil {
		return nil, mapBreakerErr(err)
	}

	t.fallback("query_sparse", err)
	return t.secondary.QuerySparse(ctx, vec, limit, exclude)
}

// SetSearchable applies the flag to both tiers. The primary error wins.
func (t *Tiered) SetSearchable(ctx context.Context, entityID string, searchable bool) error {
	_, err := t.exec.Execute(ctx, opSetSearchable, func(ctx context.Context) error {
		return t.primary.SetSearchable(ctx, entityID, searchable)
	}, classifyIndexErr)

	if t.secondary != nil {
		if serr := t.secondary.SetSearchable(ctx, entityID, searchable); serr != nil {
			t.logger.Warn("Secondary index set searchable failed",
				zap.String("entity_id", entityID), zap.Error(serr))
		}
	}
	if err != nil {
		return fmt.Errorf("primary index set searchable: %w", mapBreakerErr(err))
	}
	return nil
}

func (t *Tiered) fallback(op string, cause error) {
	t.logger.Warn("Primary index failed, using secondary",
		zap.String("op", op),
		zap.Bool("circuit_open", resilience.IsCircuitOpen(cause)),
		zap.Error(cause))
	if t.fallbacks != nil {
		t.fallbacks.WithLabelValues(op).Inc()
	}
}

// classifyIndexErr keeps capability errors and cancellation out of breaker counts.
func classifyIndexErr(err error) resilience.ErrorClassification {
	if errors.Is(err, domain.ErrSparseUnsupported) || errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func mapBreakerErr(err error) error {
	if resilience.IsCircuitOpen(err) {
		return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	return err
}
