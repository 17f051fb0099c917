package profile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kailas-cloud/kindred/internal/domain"
	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	"github.com/kailas-cloud/kindred/internal/usecase/embedding"
)

// --- Mocks ---

type storedEntity struct {
	profile       domprofile.Profile
	canonical     string
	hash          string
	textVersion   int64
	vectorVersion int64
	stale         bool
}

type mockRepo struct {
	mu       sync.Mutex
	entities map[string]*storedEntity
	staleSet map[string]struct{}
	saves    int
	getErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{entities: map[string]*storedEntity{}, staleSet: map[string]struct{}{}}
}

func (m *mockRepo) Get(_ context.Context, id string) (domentity.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domentity.Entity{}, m.getErr
	}
	e, ok := m.entities[id]
	if !ok {
		return domentity.Entity{}, domain.ErrEntityNotFound
	}
	return domentity.Reconstruct(id, e.profile, e.canonical, e.hash,
		e.textVersion, e.vectorVersion, e.stale, time.Time{}), nil
}

func (m *mockRepo) SaveText(_ context.Context, p domprofile.Profile, canonical, hash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	e, ok := m.entities[p.ID]
	if !ok {
		e = &storedEntity{}
		m.entities[p.ID] = e
	}
	e.profile, e.canonical, e.hash = p, canonical, hash
	e.textVersion++
	return e.textVersion, nil
}

func (m *mockRepo) MarkIndexed(_ context.Context, id string, v int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entities[id]
	e.vectorVersion = v
	e.stale = false
	delete(m.staleSet, id)
	return nil
}

func (m *mockRepo) MarkStale(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[id].stale = true
	m.staleSet[id] = struct{}{}
	return nil
}

func (m *mockRepo) StaleIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.staleSet))
	for id := range m.staleSet {
		out = append(out, id)
	}
	return out, nil
}

type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	dense []float32
}

func (m *mockEmbedder) EmbedBoth(_ context.Context, _ string) (embedding.Vectors, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return embedding.Vectors{}, m.err
	}
	dense := m.dense
	if dense == nil {
		dense = []float32{1, 0}
	}
	return embedding.Vectors{
		Dense:  dense,
		Sparse: domain.NewSparseVector(map[uint32]float32{1: 1}),
	}, nil
}

type mockIndex struct {
	mu        sync.Mutex
	records   map[string]domain.IndexRecord
	upsertErr error
}

func newMockIndex() *mockIndex {
	return &mockIndex{records: map[string]domain.IndexRecord{}}
}

func (m *mockIndex) Upsert(_ context.Context, rec domain.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.records[rec.EntityID] = rec
	return nil
}

func (m *mockIndex) QueryDense(context.Context, []float32, int, []string) ([]domain.Hit, error) {
	return nil, errors.New("not used")
}

func (m *mockIndex) QuerySparse(context.Context, domain.SparseVector, int, []string) ([]domain.Hit, error) {
	return nil, errors.New("not used")
}

func (m *mockIndex) SetSearchable(_ context.Context, id string, searchable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.Searchable = searchable
		m.records[id] = rec
	}
	return nil
}

func (m *mockIndex) get(id string) (domain.IndexRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok
}
