package explain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
)

func entries(ids ...string) []ranking.Entry {
	out := make([]ranking.Entry, len(ids))
	for i, id := range ids {
		out[i] = ranking.Entry{EntityID: id, FusedScore: 0.01 * float64(len(ids)-i)}
	}
	return out
}

func TestExplain_TopKOnlyAndOrderPreserved(t *testing.T) {
	r := &mockReasoner{}
	svc := New(r, newMockEntities("a", "b", "c", "d"), Config{TopK: 2}, nil)

	got := svc.Explain(context.Background(), rustQuery, entries("a", "b", "c", "d"))
	if len(got) != 4 {
		t.Fatalf("expected 4 results, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		if got[i].EntityID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].EntityID, want)
		}
	}
	if !got[0].Explained || !got[1].Explained || got[2].Explained || got[3].Explained {
		t.Errorf("only the top 2 should be explained: %+v", got)
	}
	if got[0].MatchScore != 0.8 || got[0].Rationale != "because a" {
		t.Errorf("unexpected explanation %+v", got[0])
	}
	if got[2].MatchScore != got[2].FusedScore || got[2].Rationale != ranking.FallbackRationale {
		t.Errorf("unexpected fallback %+v", got[2])
	}
	if r.calls.Load() != 2 {
		t.Errorf("expected 2 reasoner calls, got %d", r.calls.Load())
	}
}

func TestExplain_ForwardsLanguage(t *testing.T) {
	r := &mockReasoner{}
	svc := New(r, newMockEntities("a", "b"), Config{}, nil)

	svc.Explain(context.Background(), ranking.Query{Text: "rust", Language: "de"}, entries("a", "b"))
	if len(r.languages) != 2 {
		t.Fatalf("expected 2 reasoner calls, got %d", len(r.languages))
	}
	for _, l := range r.languages {
		if l != "de" {
			t.Errorf("expected language de, got %q", l)
		}
	}
}

func TestExplain_CandidateFailureDoesNotFailBatch(t *testing.T) {
	r := &mockReasoner{fail: map[string]bool{"b": true}}
	svc := New(r, newMockEntities("a", "b", "c"), Config{TopK: 10}, nil)

	got := svc.Explain(context.Background(), rustQuery, entries("a", "b", "c"))
	if !got[0].Explained || got[1].Explained || !got[2].Explained {
		t.Errorf("expected only b unexplained: %+v", got)
	}
	if got[1].MatchScore != got[1].FusedScore {
		t.Errorf("fallback must reuse fused score: %+v", got[1])
	}
}

func TestExplain_MissingProfileFallsBack(t *testing.T) {
	r := &mockReasoner{}
	svc := New(r, newMockEntities("a"), Config{}, nil)

	got := svc.Explain(context.Background(), rustQuery, entries("a", "ghost"))
	if !got[0].Explained || got[1].Explained {
		t.Errorf("unexpected %+v", got)
	}
	if r.calls.Load() != 1 {
		t.Errorf("ghost must not reach the reasoner")
	}
}

func TestExplain_EntityStoreErrorFallsBackForAll(t *testing.T) {
	ents := newMockEntities("a")
	ents.err = errors.New("redis down")
	svc := New(&mockReasoner{}, ents, Config{}, nil)

	for _, c := range svc.Explain(context.Background(), rustQuery, entries("a", "b")) {
		if c.Explained {
			t.Errorf("%s should not be explained", c.EntityID)
		}
	}
}

func TestExplain_BoundedConcurrency(t *testing.T) {
	r := &mockReasoner{delay: 20 * time.Millisecond}
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}
	svc := New(r, newMockEntities(ids...), Config{TopK: 8, Concurrency: 2}, nil)

	got := svc.Explain(context.Background(), rustQuery, entries(ids...))
	for _, c := range got {
		if !c.Explained {
			t.Errorf("%s not explained", c.EntityID)
		}
	}
	if peak := r.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestExplain_PerCandidateTimeout(t *testing.T) {
	r := &mockReasoner{delay: time.Second}
	svc := New(r, newMockEntities("a"), Config{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	got := svc.Explain(context.Background(), rustQuery, entries("a"))
	if got[0].Explained {
		t.Error("timed-out candidate must not be explained")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("timeout was not applied")
	}
}

func TestExplain_ClampsScore(t *testing.T) {
	r := &mockReasoner{score: 1.7}
	svc := New(r, newMockEntities("a"), Config{}, nil)
	if got := svc.Explain(context.Background(), rustQuery, entries("a")); got[0].MatchScore != 1 {
		t.Errorf("expected clamped score 1, got %v", got[0].MatchScore)
	}
}

func TestExplain_Empty(t *testing.T) {
	svc := New(&mockReasoner{}, newMockEntities(), Config{}, nil)
	if got := svc.Explain(context.Background(), rustQuery, nil); len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}

// --- Mocks ---

var rustQuery = ranking.Query{Text: "rust"}

type mockReasoner struct {
	mu        sync.Mutex
	languages []string
	fail      map[string]bool
	delay     time.Duration
	score     float64
	calls     atomic.Int32
	inflight  atomic.Int32
	peak      atomic.Int32
}

func (m *mockReasoner) Explain(ctx context.Context, q ranking.Query, candidate string) (ranking.Explanation, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.languages = append(m.languages, q.Language)
	m.mu.Unlock()
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ranking.Explanation{}, ctx.Err()
		}
	}
	// candidate is "Name: <id>"
	id := candidate[len("Name: "):]
	if m.fail[id] {
		return ranking.Explanation{}, errors.New("provider error")
	}
	score := m.score
	if score == 0 {
		score = 0.8
	}
	return ranking.Explanation{Score: score, Rationale: "because " + id}, nil
}

type mockEntities struct {
	mu   sync.Mutex
	byID map[string]domentity.Entity
	err  error
}

func newMockEntities(ids ...string) *mockEntities {
	m := &mockEntities{byID: map[string]domentity.Entity{}}
	for _, id := range ids {
		p := domprofile.Profile{ID: id, Name: id}
		m.byID[id] = domentity.Reconstruct(id, p, "Name: "+id, "h", 1, 1, false, time.Time{})
	}
	return m
}

func (m *mockEntities) GetMany(_ context.Context, ids []string) ([]domentity.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domentity.Entity
	for _, id := range ids {
		if e, ok := m.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
