package vector

import (
	"context"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kailas-cloud/kindred/internal/db"
	"github.com/kailas-cloud/kindred/internal/domain"
)

// --- Mocks ---

type mockIndex struct {
	upsertFn        func(ctx context.Context, rec domain.IndexRecord) error
	queryDenseFn    func(ctx context.Context, vec []float32, limit int, exclude []string) ([]domain.Hit, error)
	querySparseFn   func(ctx context.Context, vec domain.SparseVector, limit int, exclude []string) ([]domain.Hit, error)
	setSearchableFn func(ctx context.Context, id string, searchable bool) error

	upserts int
}

func (m *mockIndex) Upsert(ctx context.Context, rec domain.IndexRecord) error {
	m.upserts++
	if m.upsertFn != nil {
		return m.upsertFn(ctx, rec)
	}
	return nil
}

func (m *mockIndex) QueryDense(ctx context.Context, vec []float32, limit int, exclude []string) ([]domain.Hit, error) {
	if m.queryDenseFn != nil {
		return m.queryDenseFn(ctx, vec, limit, exclude)
	}
	return nil, nil
}

func (m *mockIndex) QuerySparse(
	ctx context.Context, vec domain.SparseVector, limit int, exclude []string,
) ([]domain.Hit, error) {
	if m.querySparseFn != nil {
		return m.querySparseFn(ctx, vec, limit, exclude)
	}
	return nil, nil
}

func (m *mockIndex) SetSearchable(ctx context.Context, id string, searchable bool) error {
	if m.setSearchableFn != nil {
		return m.setSearchableFn(ctx, id, searchable)
	}
	return nil
}

type mockQdrant struct {
	existsFn     func(ctx context.Context, name string) (bool, error)
	createFn     func(ctx context.Context, req *qdrant.CreateCollection) error
	upsertFn     func(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	queryFn      func(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	setPayloadFn func(ctx context.Context, req *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error)
}

func (m *mockQdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, name)
	}
	return true, nil
}

func (m *mockQdrant) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil
}

func (m *mockQdrant) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, req)
	}
	return &qdrant.UpdateResult{}, nil
}

func (m *mockQdrant) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, req)
	}
	return nil, nil
}

func (m *mockQdrant) SetPayload(ctx context.Context, req *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error) {
	if m.setPayloadFn != nil {
		return m.setPayloadFn(ctx, req)
	}
	return &qdrant.UpdateResult{}, nil
}

type mockRedisStore struct {
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	existsFn      func(ctx context.Context, key string) (bool, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockRedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockRedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return true, nil
}

func (m *mockRedisStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockRedisStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockRedisStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}
