package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/kindred/internal/db"
)

// Server replies that map onto sentinel errors.
const (
	replyIndexExists  = "index already exists"
	replyUnknownIndex = "unknown index name"
)

// CreateIndex issues FT.CREATE ON HASH for def. An existing index is
// reported as db.ErrIndexExists so startup can race other replicas.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := ftCreateArgs(def)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, replyIndexExists) {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// IndexExists asks FT.INFO about name. An unknown index is not an error.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	err := s.do(ctx, cmd).Error()
	switch {
	case err == nil:
		return true, nil
	case isRedisErr(err, replyUnknownIndex):
		return false, nil
	default:
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
}

// ftCreateArgs renders everything after the FT.CREATE keyword.
func ftCreateArgs(def *db.IndexDefinition) ([]string, error) {
	if def == nil || def.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(def.Fields) == 0 {
		return nil, fmt.Errorf("index %s: no fields", def.Name)
	}

	args := []string{def.Name, "ON", "HASH"}
	if n := len(def.Prefixes); n > 0 {
		args = append(args, "PREFIX", strconv.Itoa(n))
		args = append(args, def.Prefixes...)
	}
	args = append(args, "SCHEMA")
	for i := range def.Fields {
		field, err := schemaField(&def.Fields[i])
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", def.Name, err)
		}
		args = append(args, field...)
	}
	return args, nil
}

// schemaField renders one SCHEMA entry.
func schemaField(f *db.IndexField) ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}
	switch f.Type {
	case db.IndexFieldNumeric:
		return []string{f.Name, "NUMERIC"}, nil
	case db.IndexFieldTag:
		if f.TagCaseSensitive {
			return []string{f.Name, "TAG", "CASESENSITIVE"}, nil
		}
		return []string{f.Name, "TAG"}, nil
	case db.IndexFieldVector:
		vec, err := vectorAttrs(f)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return append([]string{f.Name}, vec...), nil
	default:
		return nil, fmt.Errorf("field %s: unsupported type %d", f.Name, f.Type)
	}
}

// vectorAttrs renders "VECTOR <algo> <nattrs> <attrs...>". Embeddings are
// always FLOAT32; cosine and FLAT are the defaults.
func vectorAttrs(f *db.IndexField) ([]string, error) {
	if f.VectorDim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", f.VectorDim)
	}
	algo := f.VectorAlgo
	if algo == "" {
		algo = db.VectorFlat
	}
	metric := f.VectorDistance
	if metric == "" {
		metric = db.DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.VectorDim),
		"DISTANCE_METRIC", string(metric),
	}
	if algo == db.VectorHNSW {
		if f.VectorM > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.VectorM))
		}
		if f.VectorEFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.VectorEFConstruct))
		}
	}
	return append([]string{"VECTOR", string(algo), strconv.Itoa(len(attrs))}, attrs...), nil
}
