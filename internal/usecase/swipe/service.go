// Package swipe records swipes and reports mutual matches.
package swipe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	domswipe "github.com/kailas-cloud/kindred/internal/domain/swipe"
	"github.com/kailas-cloud/kindred/internal/metrics"
)

// Ledger persists swipe events; Record creates a match exactly once.
type Ledger interface {
	Record(ctx context.Context, ev domswipe.Event) (domswipe.Outcome, bool, error)
}

// Service validates and records swipes.
type Service struct {
	ledger Ledger
	now    func() time.Time
	logger *zap.Logger
}

// New creates a swipe service.
func New(ledger Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledger: ledger, now: time.Now, logger: logger}
}

// Record stores actor's swipe on target. Repeating a swipe returns the
// outcome of the first one unchanged.
func (s *Service) Record(ctx context.Context, actor, target, direction string) (domswipe.Outcome, error) {
	dir, err := domswipe.ParseDirection(direction)
	if err != nil {
		return domswipe.Outcome{}, err
	}
	ev, err := domswipe.NewEvent(actor, target, dir, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrSelfSwipe) {
			return domswipe.Outcome{}, err
		}
		return domswipe.Outcome{}, fmt.Errorf("%w: %s", domain.ErrInvalidQuery, err.Error())
	}

	out, duplicate, err := s.ledger.Record(ctx, ev)
	if err != nil {
		return domswipe.Outcome{}, fmt.Errorf("record swipe: %w", err)
	}

	if duplicate {
		metrics.SwipesTotal.WithLabelValues(string(dir), "duplicate").Inc()
		s.logger.Info("Duplicate swipe ignored",
			zap.String("actor_id", actor),
			zap.String("target_id", target),
			zap.String("direction", string(dir)),
			zap.String("stored_direction", string(out.Direction)),
		)
		return out, nil
	}

	metrics.SwipesTotal.WithLabelValues(string(dir), "recorded").Inc()
	if out.Matched {
		metrics.MatchesTotal.Inc()
		s.logger.Info("Match created",
			zap.String("match_id", out.MatchID),
			zap.String("actor_id", actor),
			zap.String("target_id", target),
		)
	}
	return out, nil
}
