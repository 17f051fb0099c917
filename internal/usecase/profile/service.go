// Package profile implements the write path: normalize, persist text,
// embed, index, and the background retry of stale entities.
package profile

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	"github.com/kailas-cloud/kindred/internal/metrics"
)

const lockStripes = 64

var tracer = otel.Tracer("kindred/usecase/profile")

// Result is the outcome of an upsert.
type Result struct {
	ID          string
	TextVersion int64
	Searchable  bool
	Unchanged   bool
}

// Service handles profile upserts with automatic re-embedding.
type Service struct {
	repo    Repository
	emb     Embedder
	index   domain.VectorIndex
	workers int
	logger  *zap.Logger

	// per-entity write serialization inside one process
	locks [lockStripes]sync.Mutex
}

// New creates a profile service.
func New(repo Repository, emb Embedder, index domain.VectorIndex, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, emb: emb, index: index, workers: 4, logger: logger}
}

// WithWorkers sets the stale-retry pool size.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// Get returns the stored entity.
func (s *Service) Get(ctx context.Context, id string) (domentity.Entity, error) {
	if err := domprofile.ValidateID(id); err != nil {
		return domentity.Entity{}, fmt.Errorf("%w: %s", domain.ErrInvalidProfile, err.Error())
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return domentity.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

// Upsert normalizes the profile and, when its canonical text changed,
// persists it and recomputes both vectors. Unchanged searchable profiles
// are a no-op.
func (s *Service) Upsert(ctx context.Context, p domprofile.Profile) (Result, error) {
	ctx, span := tracer.Start(ctx, "profile.upsert")
	defer span.End()
	span.SetAttributes(attribute.String("entity.id", p.ID))

	res, err := s.upsert(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *Service) upsert(ctx context.Context, p domprofile.Profile) (Result, error) {
	if err := domprofile.ValidateID(p.ID); err != nil {
		metrics.ProfileUpsertsTotal.WithLabelValues("invalid").Inc()
		return Result{}, &domain.InvalidProfileError{Reason: err.Error()}
	}
	canonical, err := domprofile.Normalize(p)
	if err != nil {
		metrics.ProfileUpsertsTotal.WithLabelValues("invalid").Inc()
		return Result{}, err
	}
	hash := domprofile.Hash(canonical)

	mu := s.lockFor(p.ID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.repo.Get(ctx, p.ID)
	switch {
	case errors.Is(err, domain.ErrEntityNotFound):
	case err != nil:
		return Result{}, fmt.Errorf("get entity: %w", err)
	case existing.TextHash() == hash && existing.Searchable():
		metrics.ProfileUpsertsTotal.WithLabelValues("unchanged").Inc()
		return Result{ID: p.ID, TextVersion: existing.TextVersion(), Searchable: true, Unchanged: true}, nil
	}

	version := existing.TextVersion()
	if err != nil || existing.TextHash() != hash {
		// text must be durable before any tier sees vectors derived from it
		version, err = s.repo.SaveText(ctx, p, canonical, hash)
		if err != nil {
			return Result{}, fmt.Errorf("save text: %w", err)
		}
	}

	if err := s.reindex(ctx, p.ID, canonical, version); err != nil {
		metrics.ProfileUpsertsTotal.WithLabelValues("stale").Inc()
		return Result{ID: p.ID, TextVersion: version}, err
	}
	metrics.ProfileUpsertsTotal.WithLabelValues("indexed").Inc()
	return Result{ID: p.ID, TextVersion: version, Searchable: true}, nil
}

// reindex embeds canonical text and writes both vectors in one index record.
// On failure the entity is flagged stale and previous vectors stay untouched.
func (s *Service) reindex(ctx context.Context, id, canonical string, version int64) error {
	vecs, err := s.emb.EmbedBoth(ctx, canonical)
	if err != nil {
		s.markStale(ctx, id, version, err)
		return fmt.Errorf("embed profile %s: %w", id, err)
	}

	rec := domain.IndexRecord{
		EntityID:    id,
		Dense:       vecs.Dense,
		Sparse:      vecs.Sparse,
		TextVersion: version,
		Searchable:  true,
	}
	if err := s.index.Upsert(ctx, rec); err != nil {
		s.markStale(ctx, id, version, err)
		return fmt.Errorf("index profile %s: %w", id, err)
	}

	if err := s.repo.MarkIndexed(ctx, id, version); err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	return nil
}

func (s *Service) markStale(ctx context.Context, id string, version int64, cause error) {
	// детач от отменённого контекста: флаг stale должен записаться
	ctx = context.WithoutCancel(ctx)

	s.logger.Warn("Profile left stale",
		zap.String("entity_id", id),
		zap.Int64("text_version", version),
		zap.Error(cause),
	)
	if err := s.repo.MarkStale(ctx, id); err != nil {
		s.logger.Error("Failed to mark entity stale", zap.String("entity_id", id), zap.Error(err))
	}
	if err := s.index.SetSearchable(ctx, id, false); err != nil &&
		!errors.Is(err, domain.ErrEntityNotFound) {
		s.logger.Warn("Failed to hide stale vectors", zap.String("entity_id", id), zap.Error(err))
	}
}

// RetryStale re-runs the embed+index step for every stale entity on a
// worker pool. Returns how many entities became searchable.
func (s *Service) RetryStale(ctx context.Context) (int, error) {
	ids, err := s.repo.StaleIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stale: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return 0, fmt.Errorf("create pool: %w", err)
	}
	defer pool.Release()

	var (
		wg    sync.WaitGroup
		fixed atomic.Int64
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if s.retryOne(ctx, id) {
				fixed.Add(1)
			}
		}); err != nil {
			wg.Done()
			s.logger.Error("Failed to submit stale retry", zap.String("entity_id", id), zap.Error(err))
		}
	}
	wg.Wait()

	n := int(fixed.Load())
	s.logger.Info("Stale retry finished", zap.Int("stale", len(ids)), zap.Int("reindexed", n))
	return n, ctx.Err()
}

func (s *Service) retryOne(ctx context.Context, id string) bool {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		s.logger.Warn("Stale entity unreadable", zap.String("entity_id", id), zap.Error(err))
		return false
	}
	if e.Searchable() {
		// fixed by a concurrent upsert; only the set entry is left over
		_ = s.repo.MarkIndexed(ctx, id, e.TextVersion())
		return true
	}
	if err := s.reindex(ctx, id, e.Canonical(), e.TextVersion()); err != nil {
		return false
	}
	return true
}

// RunStaleLoop calls RetryStale every interval until ctx is done.
func (s *Service) RunStaleLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RetryStale(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Stale retry failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}
