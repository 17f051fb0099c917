package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/domain/text"
)

// InstrumentedEmbedder wraps a dense Embedder with input truncation and logging.
// Transport metrics (requests, duration, tokens) are recorded in the transports.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	provider  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. maxTokens <= 0 disables truncation.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	maxTokens int, logger *zap.Logger,
) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:     inner,
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Embed truncates text to the token budget and delegates to the inner embedder.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, s string) (domain.EmbeddingResult, error) {
	in := text.Truncate(s, p.maxTokens)
	start := time.Now()

	result, err := p.inner.Embed(ctx, in)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Bool("truncated", len(in) < len(s)),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// InstrumentedSparse is the sparse counterpart of InstrumentedEmbedder.
type InstrumentedSparse struct {
	inner     domain.SparseEmbedder
	provider  string
	maxTokens int
	logger    *zap.Logger
}

// NewInstrumentedSparse wraps a sparse embedder. maxTokens <= 0 disables truncation.
func NewInstrumentedSparse(
	inner domain.SparseEmbedder, provider string, maxTokens int, logger *zap.Logger,
) *InstrumentedSparse {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedSparse{inner: inner, provider: provider, maxTokens: maxTokens, logger: logger}
}

// EmbedSparse truncates text and delegates.
func (p *InstrumentedSparse) EmbedSparse(ctx context.Context, s string) (domain.SparseResult, error) {
	in := text.Truncate(s, p.maxTokens)
	start := time.Now()

	result, err := p.inner.EmbedSparse(ctx, in)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Sparse embedding request failed",
			zap.String("provider", p.provider),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.SparseResult{}, fmt.Errorf("embed sparse: %w", err)
	}

	p.logger.Debug("Sparse embedding request completed",
		zap.String("provider", p.provider),
		zap.Duration("duration", duration),
		zap.Int("terms", result.Vector.Len()),
	)
	return result, nil
}
