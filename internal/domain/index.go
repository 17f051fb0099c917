package domain

import "context"

// IndexRecord is the (dense, sparse, metadata) triple stored per entity.
type IndexRecord struct {
	EntityID    string
	Dense       []float32
	Sparse      SparseVector
	TextVersion int64
	Searchable  bool
}

// Hit is a single nearest-neighbor result. Higher Score is more similar.
type Hit struct {
	EntityID string
	Score    float64
}

// VectorIndex persists entity vectors and answers nearest-neighbor queries
// over each vector type independently. Exclusions are applied by the index.
type VectorIndex interface {
	Upsert(ctx context.Context, rec IndexRecord) error
	QueryDense(ctx context.Context, vec []float32, limit int, exclude []string) ([]Hit, error)
	QuerySparse(ctx context.Context, vec SparseVector, limit int, exclude []string) ([]Hit, error)
	SetSearchable(ctx context.Context, entityID string, searchable bool) error
}
