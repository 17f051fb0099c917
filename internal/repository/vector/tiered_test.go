package vector

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/resilience"
)

func newTestTiered(primary, secondary domain.VectorIndex) *Tiered {
	exec := resilience.NewExecutor(resilience.BreakerOnly(2, 0.5, time.Minute), nil)
	return NewTiered(primary, secondary, exec, nil, zap.NewNop())
}

func TestTiered_UpsertPrimaryThenSecondary(t *testing.T) {
	var order []string
	primary := &mockIndex{upsertFn: func(context.Context, domain.IndexRecord) error {
		order = append(order, "primary")
		return nil
	}}
	secondary := &mockIndex{upsertFn: func(context.Context, domain.IndexRecord) error {
		order = append(order, "secondary")
		return nil
	}}

	if err := newTestTiered(primary, secondary).Upsert(context.Background(), domain.IndexRecord{EntityID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "primary" || order[1] != "secondary" {
		t.Errorf("unexpected write order %v", order)
	}
}

func TestTiered_UpsertPrimaryFailureSkipsSecondary(t *testing.T) {
	primary := &mockIndex{upsertFn: func(context.Context, domain.IndexRecord) error {
		return errors.New("qdrant down")
	}}
	secondary := &mockIndex{}

	err := newTestTiered(primary, secondary).Upsert(context.Background(), domain.IndexRecord{EntityID: "a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if secondary.upserts != 0 {
		t.Error("secondary must not be written when primary fails")
	}
}

func TestTiered_UpsertSecondaryFailureIgnored(t *testing.T) {
	secondary := &mockIndex{upsertFn: func(context.Context, domain.IndexRecord) error {
		return errors.New("redis down")
	}}
	if err := newTestTiered(&mockIndex{}, secondary).Upsert(context.Background(), domain.IndexRecord{EntityID: "a"}); err != nil {
		t.Fatalf("secondary failure should not fail the write: %v", err)
	}
}

func TestTiered_QueryDenseFallsBack(t *testing.T) {
	primary := &mockIndex{queryDenseFn: func(context.Context, []float32, int, []string) ([]domain.Hit, error) {
		return nil, errors.New("qdrant down")
	}}
	secondary := &mockIndex{queryDenseFn: func(context.Context, []float32, int, []string) ([]domain.Hit, error) {
		return []domain.Hit{{EntityID: "from-secondary", Score: 0.5}}, nil
	}}

	hits, err := newTestTiered(primary, secondary).QueryDense(context.Background(), []float32{1}, 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].EntityID != "from-secondary" {
		t.Errorf("unexpected hits %v", hits)
	}
}

func TestTiered_OpenCircuitSkipsPrimary(t *testing.T) {
	primaryCalls := 0
	primary := &mockIndex{queryDenseFn: func(context.Context, []float32, int, []string) ([]domain.Hit, error) {
		primaryCalls++
		return nil, errors.New("qdrant down")
	}}
	secondary := &mockIndex{}
	tiered := newTestTiered(primary, secondary)
	ctx := context.Background()

	for range 5 {
		if _, err := tiered.QueryDense(ctx, []float32{1}, 5, nil); err != nil {
			t.Fatalf("fallback should hide primary failure: %v", err)
		}
	}
	if primaryCalls != 2 {
		t.Errorf("expected breaker to open after 2 failures, primary called %d times", primaryCalls)
	}
}

func TestTiered_NoSecondaryOpenCircuitMapsToIndexUnavailable(t *testing.T) {
	primary := &mockIndex{queryDenseFn: func(context.Context, []float32, int, []string) ([]domain.Hit, error) {
		return nil, errors.New("qdrant down")
	}}
	tiered := newTestTiered(primary, nil)
	ctx := context.Background()

	var err error
	for range 3 {
		_, err = tiered.QueryDense(ctx, []float32{1}, 5, nil)
	}
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable once open, got %v", err)
	}
}

func TestTiered_SparseFallbackToDenseOnlyTier(t *testing.T) {
	primary := &mockIndex{querySparseFn: func(context.Context, domain.SparseVector, int, []string) ([]domain.Hit, error) {
		return nil, errors.New("qdrant down")
	}}
	secondary := NewRedis(&mockRedisStore{}, "idx", 2, 16, 200)

	_, err := newTestTiered(primary, secondary).QuerySparse(
		context.Background(), domain.NewSparseVector(map[uint32]float32{1: 1}), 5, nil)
	if !errors.Is(err, domain.ErrSparseUnsupported) {
		t.Fatalf("expected ErrSparseUnsupported from dense-only tier, got %v", err)
	}
}

func TestTiered_SetSearchableBothTiers(t *testing.T) {
	var got []bool
	rec := func(_ context.Context, _ string, s bool) error {
		got = append(got, s)
		return nil
	}
	tiered := newTestTiered(&mockIndex{setSearchableFn: rec}, &mockIndex{setSearchableFn: rec})
	if err := tiered.SetSearchable(context.Background(), "a", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] || got[1] {
		t.Errorf("expected both tiers set to false, got %v", got)
	}
}
