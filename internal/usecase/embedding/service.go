// Package embedding computes dense and sparse representations of text.
// The write path embeds both concurrently with bounded retries.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/resilience"
)

// Kinds used in operation names, errors and metrics.
const (
	KindDense  = "dense"
	KindSparse = "sparse"
)

// Vectors is the dense and sparse representation of one text.
type Vectors struct {
	Dense  []float32
	Sparse domain.SparseVector
	Tokens int
}

// Service fans text out to both embedders.
type Service struct {
	dense  domain.Embedder
	sparse domain.SparseEmbedder
	exec   *resilience.Executor
	logger *zap.Logger
}

// NewService creates the embedding service. exec drives write-path retries.
func NewService(
	dense domain.Embedder, sparse domain.SparseEmbedder,
	exec *resilience.Executor, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{dense: dense, sparse: sparse, exec: exec, logger: logger}
}

// EmbedBoth is the write path. Both embeddings run concurrently, each retried
// with backoff. Either side failing permanently fails the whole call with an
// *domain.EmbeddingTimeoutError so no half-updated pair is ever produced.
func (s *Service) EmbedBoth(ctx context.Context, text string) (Vectors, error) {
	var out Vectors
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		attempts, err := s.exec.Execute(gctx, "embed."+KindDense, func(ctx context.Context) error {
			res, err := s.dense.Embed(ctx, text)
			if err != nil {
				return err
			}
			if len(res.Embedding) == 0 {
				return fmt.Errorf("empty dense vector: %w", domain.ErrEmbeddingProviderError)
			}
			out.Dense = res.Embedding
			out.Tokens = res.TotalTokens
			return nil
		}, resilience.TransientClassifier)
		if err != nil {
			return &domain.EmbeddingTimeoutError{Kind: KindDense, Attempts: attempts, Err: err}
		}
		return nil
	})

	g.Go(func() error {
		attempts, err := s.exec.Execute(gctx, "embed."+KindSparse, func(ctx context.Context) error {
			res, err := s.sparse.EmbedSparse(ctx, text)
			if err != nil {
				return err
			}
			out.Sparse = res.Vector
			return nil
		}, resilience.TransientClassifier)
		if err != nil {
			return &domain.EmbeddingTimeoutError{Kind: KindSparse, Attempts: attempts, Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Vectors{}, err
	}
	return out, nil
}
