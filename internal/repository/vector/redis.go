package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/kailas-cloud/kindred/internal/db"
	"github.com/kailas-cloud/kindred/internal/domain"
)

var vecKeyPrefix = domain.KeyPrefix + "vec:"

// Hash fields of kindred:vec:{id}.
const (
	fieldEntityID    = "entity_id"
	fieldSearchable  = "searchable"
	fieldTextVersion = "text_version"
	fieldVector      = "vector"
)

// redisStore is the consumer interface for the Redis FT tier (ISP).
type redisStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// RedisIndex is a dense-only HNSW index over hashes. Sparse queries are
// reported as unsupported so the caller degrades to a partial result.
type RedisIndex struct {
	store       redisStore
	name        string
	dimensions  int
	m           int
	efConstruct int
}

// NewRedis creates a Redis FT vector index.
func NewRedis(s redisStore, name string, dimensions, m, efConstruct int) *RedisIndex {
	return &RedisIndex{store: s, name: name, dimensions: dimensions, m: m, efConstruct: efConstruct}
}

// EnsureIndex creates the FT index if it does not exist.
func (r *RedisIndex) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.name, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.name).
		Prefix(vecKeyPrefix).
		Tag(fieldEntityID).
		Tag(fieldSearchable).
		Numeric(fieldTextVersion).
		VectorHNSW(fieldVector, r.dimensions, db.DistanceCosine, r.m, r.efConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", r.name, err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.name, err)
	}
	return nil
}

// Upsert writes the dense vector and metadata. The sparse vector is dropped.
func (r *RedisIndex) Upsert(ctx context.Context, rec domain.IndexRecord) error {
	key := vecKeyPrefix + rec.EntityID
	err := r.store.HSet(ctx, key, map[string]string{
		fieldEntityID:    rec.EntityID,
		fieldSearchable:  boolTag(rec.Searchable),
		fieldTextVersion: strconv.FormatInt(rec.TextVersion, 10),
		fieldVector:      vectorToBytes(rec.Dense),
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// QueryDense runs KNN with a searchable/exclusion TAG pre-filter.
func (r *RedisIndex) QueryDense(ctx context.Context, vec []float32, limit int, exclude []string) ([]domain.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	filter := db.TagFilter{
		Must: []db.TagCondition{{Field: fieldSearchable, Values: []string{"1"}}},
	}
	if len(exclude) > 0 {
		filter.MustNot = []db.TagCondition{{Field: fieldEntityID, Values: exclude}}
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.name,
		VectorField:  fieldVector,
		Vector:       vec,
		K:            limit,
		Filter:       filter,
		ReturnFields: []string{fieldEntityID, "__" + fieldVector + "_score"},
	})
	if err != nil {
		return nil, fmt.Errorf("knn %s: %w", r.name, err)
	}

	hits := make([]domain.Hit, 0, len(res.Entries))
	for _, e := range res.Entries {
		id := e.Fields[fieldEntityID]
		if id == "" {
			continue
		}
		hits = append(hits, domain.Hit{EntityID: id, Score: e.Score})
	}
	return hits, nil
}

// QuerySparse is not supported by this tier.
func (r *RedisIndex) QuerySparse(context.Context, domain.SparseVector, int, []string) ([]domain.Hit, error) {
	return nil, domain.ErrSparseUnsupported
}

// SetSearchable flips the searchable tag of an existing record.
func (r *RedisIndex) SetSearchable(ctx context.Context, entityID string, searchable bool) error {
	key := vecKeyPrefix + entityID
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("exists %s: %w", key, err)
	}
	if !exists {
		return nil
	}
	if err := r.store.HSet(ctx, key, map[string]string{fieldSearchable: boolTag(searchable)}); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

func boolTag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
