package search

import (
	"context"

	"github.com/kailas-cloud/kindred/internal/domain/ranking"
)

// Explainer attaches a match score and rationale to each fused entry,
// preserving order. It never fails: unexplained entries carry Explained=false.
type Explainer interface {
	Explain(ctx context.Context, q ranking.Query, entries []ranking.Entry) []ranking.ExplainedCandidate
}

// Retriever is the fusion ranker as seen by the service.
type Retriever interface {
	Rank(ctx context.Context, text string, exclude []string, limit int) (ranking.Result, error)
}
