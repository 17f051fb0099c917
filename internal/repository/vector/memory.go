package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kailas-cloud/kindred/internal/domain"
)

// MemoryIndex is a brute-force in-process index. Used for tests, local runs
// and as a secondary tier.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]domain.IndexRecord
}

// NewMemory creates an empty in-memory index.
func NewMemory() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]domain.IndexRecord)}
}

// Upsert stores a copy of the record.
func (m *MemoryIndex) Upsert(_ context.Context, rec domain.IndexRecord) error {
	rec.Dense = append([]float32(nil), rec.Dense...)
	rec.Sparse = domain.SparseVector{
		Indices: append([]uint32(nil), rec.Sparse.Indices...),
		Values:  append([]float32(nil), rec.Sparse.Values...),
	}

	m.mu.Lock()
	m.records[rec.EntityID] = rec
	m.mu.Unlock()
	return nil
}

// QueryDense ranks searchable records by cosine similarity.
func (m *MemoryIndex) QueryDense(_ context.Context, vec []float32, limit int, exclude []string) ([]domain.Hit, error) {
	return m.scan(limit, exclude, func(rec domain.IndexRecord) (float64, bool) {
		if len(rec.Dense) == 0 {
			return 0, false
		}
		return cosine(vec, rec.Dense), true
	}), nil
}

// QuerySparse ranks searchable records by sparse dot product. Records with
// no overlapping terms are not returned.
func (m *MemoryIndex) QuerySparse(
	_ context.Context, vec domain.SparseVector, limit int, exclude []string,
) ([]domain.Hit, error) {
	return m.scan(limit, exclude, func(rec domain.IndexRecord) (float64, bool) {
		s := vec.Dot(rec.Sparse)
		return s, s > 0
	}), nil
}

// SetSearchable flips the flag of an existing record.
func (m *MemoryIndex) SetSearchable(_ context.Context, entityID string, searchable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[entityID]; ok {
		rec.Searchable = searchable
		m.records[entityID] = rec
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryIndex) scan(
	limit int, exclude []string, score func(domain.IndexRecord) (float64, bool),
) []domain.Hit {
	if limit <= 0 {
		return nil
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	m.mu.RLock()
	hits := make([]domain.Hit, 0, len(m.records))
	for id, rec := range m.records {
		if !rec.Searchable {
			continue
		}
		if _, ok := skip[id]; ok {
			continue
		}
		if s, ok := score(rec); ok {
			hits = append(hits, domain.Hit{EntityID: id, Score: s})
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
