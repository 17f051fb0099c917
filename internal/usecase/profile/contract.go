package profile

import (
	"context"

	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	"github.com/kailas-cloud/kindred/internal/usecase/embedding"
)

// Repository persists profiles, canonical text and vector bookkeeping.
type Repository interface {
	Get(ctx context.Context, id string) (domentity.Entity, error)
	SaveText(ctx context.Context, p domprofile.Profile, canonical, textHash string) (int64, error)
	MarkIndexed(ctx context.Context, id string, textVersion int64) error
	MarkStale(ctx context.Context, id string) error
	StaleIDs(ctx context.Context) ([]string, error)
}

// Embedder produces both vectors for a text, all or nothing.
type Embedder interface {
	EmbedBoth(ctx context.Context, text string) (embedding.Vectors, error)
}
