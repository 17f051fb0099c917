// Package search implements hybrid retrieval: concurrent dense and sparse
// queries, rank fusion, and explanation of the top candidates.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
)

// Request is one search call.
type Request struct {
	Text     string
	Exclude  []string
	Limit    int // 0 = default
	Language string
}

// Response is an ordered list of explained candidates.
type Response struct {
	Results        []ranking.ExplainedCandidate
	Partial        bool
	ExplainedCount int
}

// Limits bounds result counts and the overall call duration.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
	Timeout      time.Duration
}

// Service orchestrates rank then explain.
type Service struct {
	ranker    Retriever
	explainer Explainer
	limits    Limits
	logger    *zap.Logger
}

// New creates a search service. explainer may be nil: results then carry
// their fused score as match score and Explained=false.
func New(ranker Retriever, explainer Explainer, limits Limits, logger *zap.Logger) *Service {
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = 50
	}
	if limits.MaxLimit < limits.DefaultLimit {
		limits.MaxLimit = limits.DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ranker: ranker, explainer: explainer, limits: limits, logger: logger}
}

// Search ranks candidates for req.Text and explains the top ones.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Response{}, fmt.Errorf("%w: text is required", domain.ErrInvalidQuery)
	}
	limit := req.Limit
	switch {
	case limit < 0:
		return Response{}, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidQuery)
	case limit == 0:
		limit = s.limits.DefaultLimit
	case limit > s.limits.MaxLimit:
		limit = s.limits.MaxLimit
	}

	if s.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.Timeout)
		defer cancel()
	}

	res, err := s.ranker.Rank(ctx, text, req.Exclude, limit)
	if err != nil {
		return Response{}, fmt.Errorf("rank: %w", err)
	}

	var results []ranking.ExplainedCandidate
	if s.explainer != nil {
		results = s.explainer.Explain(ctx, ranking.Query{Text: text, Language: req.Language}, res.Entries)
	} else {
		results = make([]ranking.ExplainedCandidate, len(res.Entries))
		for i, e := range res.Entries {
			results[i] = ranking.Unexplained(e)
		}
	}

	out := Response{Results: results, Partial: res.Partial}
	for _, r := range results {
		if r.Explained {
			out.ExplainedCount++
		}
	}
	s.logger.Debug("Search completed",
		zap.Int("results", len(out.Results)),
		zap.Int("explained", out.ExplainedCount),
		zap.Bool("partial", out.Partial),
	)
	return out, nil
}
