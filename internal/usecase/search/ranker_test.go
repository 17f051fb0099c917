package search

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/kindred/internal/domain"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
	"github.com/kailas-cloud/kindred/internal/domain/text"
	"github.com/kailas-cloud/kindred/internal/repository/vector"
	"github.com/kailas-cloud/kindred/internal/transport/sparse"
)

func newTestRanker(t *testing.T, dense domain.Embedder, sp domain.SparseEmbedder, idx domain.VectorIndex) *Ranker {
	t.Helper()
	r, err := NewRanker(dense, sp, idx, RankerConfig{Strategy: ranking.StrategyRRF, OverfetchFactor: 3}, nil)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}
	return r
}

func TestRank_Full(t *testing.T) {
	idx := &mockIndex{
		dense:  []domain.Hit{{EntityID: "a", Score: 0.9}, {EntityID: "b", Score: 0.5}},
		sparse: []domain.Hit{{EntityID: "b", Score: 3}},
	}
	r := newTestRanker(t, &mockDense{}, &mockSparse{}, idx)

	res, err := r.Rank(context.Background(), "rust engineer", []string{"x"}, 5)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if res.Partial {
		t.Error("expected full result")
	}
	if g := ids(res.Entries); len(g) != 2 || g[0] != "b" {
		t.Errorf("expected b first, got %v", g)
	}
	if idx.fetch != 15 {
		t.Errorf("expected over-fetch of 15, got %d", idx.fetch)
	}
	if len(idx.exclude) != 1 || idx.exclude[0] != "x" {
		t.Errorf("exclusions not passed to index: %v", idx.exclude)
	}
}

func TestRank_SparseFailureIsPartial(t *testing.T) {
	idx := &mockIndex{
		dense:  []domain.Hit{{EntityID: "a", Score: 0.9}, {EntityID: "b", Score: 0.5}},
		sparse: []domain.Hit{{EntityID: "b", Score: 3}},
	}
	r := newTestRanker(t, &mockDense{}, &mockSparse{err: domain.ErrEmbeddingProviderError}, idx)

	res, err := r.Rank(context.Background(), "rust engineer", nil, 5)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !res.Partial || !res.SparseFailed || res.DenseFailed {
		t.Fatalf("expected partial with sparse failed, got %+v", res)
	}
	if g := ids(res.Entries); len(g) != 2 || g[0] != "a" || g[1] != "b" {
		t.Errorf("expected dense order [a b], got %v", g)
	}
	for _, e := range res.Entries {
		if e.SparseRank != 0 || e.SparseScore != 0 {
			t.Errorf("%s carries sparse signal: %+v", e.EntityID, e)
		}
		if e.FusedScore != 1.0/float64(60+e.DenseRank) {
			t.Errorf("%s: fused score %v not derived from dense rank", e.EntityID, e.FusedScore)
		}
	}
}

func TestRank_SparseUnsupportedIndexIsPartial(t *testing.T) {
	idx := &mockIndex{
		dense:     []domain.Hit{{EntityID: "a", Score: 0.9}},
		sparseErr: domain.ErrSparseUnsupported,
	}
	r := newTestRanker(t, &mockDense{}, &mockSparse{}, idx)

	res, err := r.Rank(context.Background(), "rust", nil, 5)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !res.Partial || len(res.Entries) != 1 {
		t.Errorf("expected partial single entry, got %+v", res)
	}
}

func TestRank_BothFail(t *testing.T) {
	idx := &mockIndex{denseErr: domain.ErrIndexUnavailable}
	r := newTestRanker(t, &mockDense{}, &mockSparse{err: errors.New("tei down")}, idx)

	_, err := r.Rank(context.Background(), "rust", nil, 5)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	var ru *domain.RetrievalUnavailableError
	if !errors.As(err, &ru) || ru.DenseErr == nil || ru.SparseErr == nil {
		t.Errorf("expected both causes recorded, got %+v", ru)
	}
}

func TestRank_TimeoutKeepsSurvivingPath(t *testing.T) {
	idx := &mockIndex{dense: []domain.Hit{{EntityID: "a", Score: 0.9}}}
	slow := &mockSparse{block: true}
	r := newTestRanker(t, &mockDense{}, slow, idx)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res, err := r.Rank(ctx, "rust", nil, 5)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !res.Partial || !res.SparseFailed || len(res.Entries) != 1 {
		t.Errorf("expected partial dense-only result, got %+v", res)
	}
}

func TestRank_StopWordQueryIsNotPartial(t *testing.T) {
	idx := &mockIndex{dense: []domain.Hit{{EntityID: "a", Score: 0.9}}}
	r := newTestRanker(t, &mockDense{}, &mockSparse{empty: true}, idx)

	res, err := r.Rank(context.Background(), "the", nil, 5)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if res.Partial || idx.sparseCalls != 0 {
		t.Errorf("empty sparse query must skip the index without degrading: %+v calls=%d", res, idx.sparseCalls)
	}
}

func TestRank_InvalidInput(t *testing.T) {
	r := newTestRanker(t, &mockDense{}, &mockSparse{}, &mockIndex{})
	for _, tc := range []struct {
		text  string
		limit int
	}{
		{"", 5},
		{"   ", 5},
		{"rust", 0},
	} {
		if _, err := r.Rank(context.Background(), tc.text, nil, tc.limit); !errors.Is(err, domain.ErrInvalidQuery) {
			t.Errorf("Rank(%q, %d): expected ErrInvalidQuery, got %v", tc.text, tc.limit, err)
		}
	}
}

func TestRank_ExclusionNeverReturned(t *testing.T) {
	ctx := context.Background()
	idx := vector.NewMemory()
	enc := sparse.NewLocalEncoder(64)
	emb := bagEmbedder{}
	words := []string{"rust", "go", "react", "design", "backend", "frontend", "data", "ml", "ops", "cloud"}
	rng := rand.New(rand.NewSource(11))

	all := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("p%02d", i)
		all = append(all, id)
		doc := words[rng.Intn(len(words))] + " " + words[rng.Intn(len(words))] + " engineer"
		d, _ := emb.Embed(ctx, doc)
		_ = idx.Upsert(ctx, domain.IndexRecord{
			EntityID: id, Dense: d.Embedding, Sparse: enc.Encode(doc), TextVersion: 1, Searchable: true,
		})
	}

	r := newTestRanker(t, emb, enc, idx)
	for iter := 0; iter < 50; iter++ {
		exclude := make([]string, 0, 10)
		for _, id := range all {
			if rng.Intn(3) == 0 {
				exclude = append(exclude, id)
			}
		}
		res, err := r.Rank(ctx, "rust backend engineer", exclude, 10)
		if err != nil {
			t.Fatalf("Rank: %v", err)
		}
		for _, e := range res.Entries {
			for _, x := range exclude {
				if e.EntityID == x {
					t.Fatalf("iteration %d: excluded id %s returned", iter, x)
				}
			}
		}
	}
}

func TestRank_AliceAboveBob(t *testing.T) {
	ctx := context.Background()
	idx := vector.NewMemory()
	enc := sparse.NewLocalEncoder(128)
	emb := bagEmbedder{}

	for _, p := range []domprofile.Profile{
		{ID: "alice", Name: "Alice", Bio: "backend engineer, Rust, Go", Skills: []string{"Rust", "Go"}},
		{ID: "bob", Name: "Bob", Bio: "frontend designer, React"},
	} {
		canonical, err := domprofile.Normalize(p)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		d, _ := emb.Embed(ctx, canonical)
		if err := idx.Upsert(ctx, domain.IndexRecord{
			EntityID: p.ID, Dense: d.Embedding, Sparse: enc.Encode(canonical), TextVersion: 1, Searchable: true,
		}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	for _, strategy := range []ranking.Strategy{ranking.StrategyRRF, ranking.StrategyDBSF} {
		r, err := NewRanker(emb, enc, idx, RankerConfig{Strategy: strategy}, nil)
		if err != nil {
			t.Fatalf("NewRanker: %v", err)
		}
		res, err := r.Rank(ctx, "looking for a Rust backend engineer", nil, 5)
		if err != nil {
			t.Fatalf("%s: Rank: %v", strategy, err)
		}
		if len(res.Entries) == 0 || res.Entries[0].EntityID != "alice" {
			t.Errorf("%s: expected alice first, got %v", strategy, ids(res.Entries))
		}
	}
}

// --- Mocks ---

// bagEmbedder hashes lowercase words into a fixed-size count vector.
type bagEmbedder struct{}

func (bagEmbedder) Embed(_ context.Context, s string) (domain.EmbeddingResult, error) {
	v := make([]float32, 256)
	for _, w := range text.Words(s) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%256]++
	}
	return domain.EmbeddingResult{Embedding: v}, nil
}

type mockDense struct {
	err error
}

func (m *mockDense) Embed(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockSparse struct {
	err   error
	block bool
	empty bool
}

func (m *mockSparse) EmbedSparse(ctx context.Context, _ string) (domain.SparseResult, error) {
	if m.block {
		<-ctx.Done()
		return domain.SparseResult{}, ctx.Err()
	}
	if m.err != nil {
		return domain.SparseResult{}, m.err
	}
	if m.empty {
		return domain.SparseResult{}, nil
	}
	return domain.SparseResult{Vector: domain.NewSparseVector(map[uint32]float32{1: 1})}, nil
}

type mockIndex struct {
	mu          sync.Mutex
	dense       []domain.Hit
	sparse      []domain.Hit
	denseErr    error
	sparseErr   error
	fetch       int
	exclude     []string
	sparseCalls int
}

func (m *mockIndex) Upsert(context.Context, domain.IndexRecord) error { return nil }

func (m *mockIndex) QueryDense(_ context.Context, _ []float32, limit int, exclude []string) ([]domain.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetch, m.exclude = limit, exclude
	return m.dense, m.denseErr
}

func (m *mockIndex) QuerySparse(_ context.Context, _ domain.SparseVector, _ int, _ []string) ([]domain.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sparseCalls++
	return m.sparse, m.sparseErr
}

func (m *mockIndex) SetSearchable(context.Context, string, bool) error { return nil }
