package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
	"github.com/kailas-cloud/kindred/internal/metrics"
)

var tracer = otel.Tracer("kindred/usecase/search")

// RankerConfig selects the fusion strategy and candidate over-fetch.
type RankerConfig struct {
	Strategy        ranking.Strategy
	RRFK            int
	Alpha           float64
	OverfetchFactor int
}

// Ranker runs the dense and sparse retrieval paths concurrently and fuses them.
type Ranker struct {
	dense     domain.Embedder
	sparse    domain.SparseEmbedder
	index     domain.VectorIndex
	fuser     Fuser
	strategy  ranking.Strategy
	overfetch int
	logger    *zap.Logger
}

// NewRanker creates a fusion ranker.
func NewRanker(
	dense domain.Embedder, sparse domain.SparseEmbedder, index domain.VectorIndex,
	cfg RankerConfig, logger *zap.Logger,
) (*Ranker, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = ranking.StrategyRRF
	}
	fuser, err := NewFuser(cfg.Strategy, cfg.RRFK, cfg.Alpha)
	if err != nil {
		return nil, err
	}
	if cfg.OverfetchFactor < 1 {
		cfg.OverfetchFactor = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{
		dense:     dense,
		sparse:    sparse,
		index:     index,
		fuser:     fuser,
		strategy:  cfg.Strategy,
		overfetch: cfg.OverfetchFactor,
		logger:    logger,
	}, nil
}

// Rank returns at most limit fused candidates for text, never containing an
// excluded id. One failed path yields a partial result; both failing yields
// *domain.RetrievalUnavailableError.
func (r *Ranker) Rank(ctx context.Context, text string, exclude []string, limit int) (ranking.Result, error) {
	ctx, span := tracer.Start(ctx, "search.rank")
	defer span.End()
	span.SetAttributes(
		attribute.String("fusion.strategy", string(r.strategy)),
		attribute.Int("search.limit", limit),
		attribute.Int("search.exclude", len(exclude)),
	)

	if strings.TrimSpace(text) == "" {
		return ranking.Result{}, fmt.Errorf("%w: empty query text", domain.ErrInvalidQuery)
	}
	if limit <= 0 {
		return ranking.Result{}, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidQuery)
	}
	fetch := limit * r.overfetch

	var (
		denseHits, sparseHits []domain.Hit
		denseErr, sparseErr   error
		g                     errgroup.Group
	)
	// пути независимы: ошибка одного не отменяет другой
	g.Go(func() error {
		denseHits, denseErr = r.denseLeg(ctx, text, fetch, exclude)
		return nil
	})
	g.Go(func() error {
		sparseHits, sparseErr = r.sparseLeg(ctx, text, fetch, exclude)
		return nil
	})
	_ = g.Wait()

	if denseErr != nil && sparseErr != nil {
		metrics.FusionTotal.WithLabelValues(string(r.strategy), "unavailable").Inc()
		err := &domain.RetrievalUnavailableError{DenseErr: denseErr, SparseErr: sparseErr}
		r.logger.Error("Both retrieval paths failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ranking.Result{}, err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	res := ranking.Result{
		Entries:      r.fuser.Fuse(without(denseHits, skip), without(sparseHits, skip), limit),
		DenseFailed:  denseErr != nil,
		SparseFailed: sparseErr != nil,
	}
	res.Partial = res.DenseFailed || res.SparseFailed

	outcome := "full"
	if res.Partial {
		outcome = "partial"
		r.logger.Warn("Partial fusion",
			zap.Bool("dense_failed", res.DenseFailed),
			zap.Bool("sparse_failed", res.SparseFailed),
			zap.Error(errors.Join(denseErr, sparseErr)),
		)
	}
	metrics.FusionTotal.WithLabelValues(string(r.strategy), outcome).Inc()
	span.SetAttributes(
		attribute.Bool("fusion.partial", res.Partial),
		attribute.Int("fusion.results", len(res.Entries)),
	)
	return res, nil
}

func (r *Ranker) denseLeg(ctx context.Context, text string, fetch int, exclude []string) ([]domain.Hit, error) {
	emb, err := r.dense.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed dense: %w", err)
	}
	if len(emb.Embedding) == 0 {
		return nil, fmt.Errorf("embed dense: empty vector: %w", domain.ErrEmbeddingProviderError)
	}
	hits, err := r.index.QueryDense(ctx, emb.Embedding, fetch, exclude)
	if err != nil {
		return nil, fmt.Errorf("query dense: %w", err)
	}
	return hits, nil
}

func (r *Ranker) sparseLeg(ctx context.Context, text string, fetch int, exclude []string) ([]domain.Hit, error) {
	emb, err := r.sparse.EmbedSparse(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed sparse: %w", err)
	}
	// no lexical terms (stop words only): nothing to match, not a failure
	if emb.Vector.IsEmpty() {
		return nil, nil
	}
	hits, err := r.index.QuerySparse(ctx, emb.Vector, fetch, exclude)
	if err != nil {
		return nil, fmt.Errorf("query sparse: %w", err)
	}
	return hits, nil
}

func without(hits []domain.Hit, skip map[string]struct{}) []domain.Hit {
	if len(skip) == 0 {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if _, ok := skip[h.EntityID]; !ok {
			out = append(out, h)
		}
	}
	return out
}
