// Package vector holds the VectorIndex implementations: Qdrant (dense +
// sparse), Redis FT (dense only), in-memory, and a tiered composition.
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/kailas-cloud/kindred/internal/domain"
)

// Named vectors and payload keys in the Qdrant collection.
const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"

	payloadEntityID    = "entity_id"
	payloadTextVersion = "text_version"
	payloadSearchable  = "searchable"
)

// pointNamespace derives stable point UUIDs from entity ids.
var pointNamespace = uuid.MustParse("6f1c3c52-4a8e-5b8c-9d21-3e7b0a6c9f10")

// qdrantClient is the subset of *qdrant.Client used here (ISP).
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	SetPayload(ctx context.Context, request *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error)
}

// QdrantIndex stores dense and sparse vectors as named vectors of one point.
type QdrantIndex struct {
	client     qdrantClient
	collection string
	dimensions int
}

// NewQdrant creates a Qdrant-backed index.
func NewQdrant(client qdrantClient, collection string, dimensions int) *QdrantIndex {
	return &QdrantIndex{client: client, collection: collection, dimensions: dimensions}
}

// EnsureCollection creates the collection with cosine dense and IDF-weighted
// sparse vectors if it does not exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(q.dimensions), //nolint:gosec // validated positive in config
				Distance: qdrant.Distance_Cosine,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {Modifier: qdrant.Modifier_Idf.Enum()},
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert writes both vectors and the payload in one point.
func (q *QdrantIndex) Upsert(ctx context.Context, rec domain.IndexRecord) error {
	vectors := map[string]*qdrant.Vector{
		denseVectorName: qdrant.NewVectorDense(rec.Dense),
	}
	if !rec.Sparse.IsEmpty() {
		vectors[sparseVectorName] = qdrant.NewVectorSparse(rec.Sparse.Indices, rec.Sparse.Values)
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(rec.EntityID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: map[string]*qdrant.Value{
				payloadEntityID:    qdrant.NewValueString(rec.EntityID),
				payloadTextVersion: qdrant.NewValueInt(rec.TextVersion),
				payloadSearchable:  qdrant.NewValueBool(rec.Searchable),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", rec.EntityID, err)
	}
	return nil
}

// QueryDense runs a cosine nearest-neighbor query over the dense vector.
func (q *QdrantIndex) QueryDense(ctx context.Context, vec []float32, limit int, exclude []string) ([]domain.Hit, error) {
	return q.query(ctx, qdrant.NewQueryDense(vec), denseVectorName, limit, exclude)
}

// QuerySparse runs a dot-product query over the IDF-weighted sparse vector.
func (q *QdrantIndex) QuerySparse(
	ctx context.Context, vec domain.SparseVector, limit int, exclude []string,
) ([]domain.Hit, error) {
	if vec.IsEmpty() {
		return nil, nil
	}
	return q.query(ctx, qdrant.NewQuerySparse(vec.Indices, vec.Values), sparseVectorName, limit, exclude)
}

func (q *QdrantIndex) query(
	ctx context.Context, query *qdrant.Query, using string, limit int, exclude []string,
) ([]domain.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          query,
		Using:          qdrant.PtrOf(using),
		Filter:         searchFilter(exclude),
		Limit:          qdrant.PtrOf(uint64(limit)), //nolint:gosec // limit > 0
		WithPayload:    qdrant.NewWithPayloadInclude(payloadEntityID),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query %s: %w", using, err)
	}

	hits := make([]domain.Hit, 0, len(points))
	for _, p := range points {
		id := p.GetPayload()[payloadEntityID].GetStringValue()
		if id == "" {
			continue
		}
		hits = append(hits, domain.Hit{EntityID: id, Score: float64(p.GetScore())})
	}
	return hits, nil
}

// SetSearchable flips the payload flag without touching vectors.
func (q *QdrantIndex) SetSearchable(ctx context.Context, entityID string, searchable bool) error {
	_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Payload:        map[string]*qdrant.Value{payloadSearchable: qdrant.NewValueBool(searchable)},
		PointsSelector: qdrant.NewPointsSelector(pointID(entityID)),
	})
	if err != nil {
		return fmt.Errorf("qdrant set payload %s: %w", entityID, err)
	}
	return nil
}

func searchFilter(exclude []string) *qdrant.Filter {
	f := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchBool(payloadSearchable, true)},
	}
	if len(exclude) > 0 {
		ids := make([]*qdrant.PointId, len(exclude))
		for i, id := range exclude {
			ids[i] = pointID(id)
		}
		f.MustNot = []*qdrant.Condition{qdrant.NewHasID(ids...)}
	}
	return f
}

func pointID(entityID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(entityID)).String())
}
