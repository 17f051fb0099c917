package chi

import (
	"context"

	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	domswipe "github.com/kailas-cloud/kindred/internal/domain/swipe"
	healthuc "github.com/kailas-cloud/kindred/internal/usecase/health"
	messageuc "github.com/kailas-cloud/kindred/internal/usecase/message"
	profileuc "github.com/kailas-cloud/kindred/internal/usecase/profile"
	searchuc "github.com/kailas-cloud/kindred/internal/usecase/search"
)

// ProfileService is the profile write path.
type ProfileService interface {
	Upsert(ctx context.Context, p domprofile.Profile) (profileuc.Result, error)
	Get(ctx context.Context, id string) (domentity.Entity, error)
}

// SearchService runs hybrid search.
type SearchService interface {
	Search(ctx context.Context, req searchuc.Request) (searchuc.Response, error)
}

// MessageService dispatches conversational messages.
type MessageService interface {
	Handle(ctx context.Context, req messageuc.Request) (messageuc.Response, error)
}

// SwipeService records swipes.
type SwipeService interface {
	Record(ctx context.Context, actor, target, direction string) (domswipe.Outcome, error)
}

// HealthService aggregates dependency checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}
