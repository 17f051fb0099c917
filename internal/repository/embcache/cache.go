// Package embcache caches dense and sparse embeddings in the key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/db"
	"github.com/kailas-cloud/kindred/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb:"

// Cache kinds, also used as the "kind" metric label.
const (
	KindDense  = "dense"
	KindSparse = "sparse"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// cache holds the key scheme and lookup plumbing shared by both decorators.
type cache struct {
	kind       string
	model      string
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

func (c *cache) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + c.kind + ":" + c.model + ":" + hex.EncodeToString(h[:])
}

func (c *cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(c.kind, result).Inc()
	}
}

func (c *cache) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, len(data) > 0
}

func (c *cache) put(ctx context.Context, key string, data []byte) {
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

// CachedEmbedder caches dense embeddings.
type CachedEmbedder struct {
	cache
	inner domain.Embedder
}

// New creates a dense caching decorator.
// cacheTotal has labels (kind, result), result is "hit"/"miss". May be nil.
func New(
	inner domain.Embedder,
	s store,
	model string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		cache: cache{kind: KindDense, model: model, store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger},
		inner: inner,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)

	if data, ok := c.get(ctx, key); ok {
		vec, err := bytesToVector(data)
		if err == nil {
			c.inc("hit")
			return domain.EmbeddingResult{Embedding: vec}, nil
		}
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
	}

	c.inc("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.put(ctx, key, vectorToCacheBytes(result.Embedding))
	return result, nil
}

// CachedSparseEmbedder caches sparse embeddings.
type CachedSparseEmbedder struct {
	cache
	inner domain.SparseEmbedder
}

// NewSparse creates a sparse caching decorator.
func NewSparse(
	inner domain.SparseEmbedder,
	s store,
	model string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedSparseEmbedder {
	return &CachedSparseEmbedder{
		cache: cache{kind: KindSparse, model: model, store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger},
		inner: inner,
	}
}

// EmbedSparse returns a cached sparse vector or calls the inner embedder.
func (c *CachedSparseEmbedder) EmbedSparse(ctx context.Context, text string) (domain.SparseResult, error) {
	key := c.key(text)

	if data, ok := c.get(ctx, key); ok {
		vec, err := bytesToSparse(data)
		if err == nil {
			c.inc("hit")
			return domain.SparseResult{Vector: vec}, nil
		}
		c.logger.Warn("Failed to parse cached sparse embedding", zap.String("key", key), zap.Error(err))
	}

	c.inc("miss")

	result, err := c.inner.EmbedSparse(ctx, text)
	if err != nil {
		return domain.SparseResult{}, fmt.Errorf("embed sparse: %w", err)
	}

	c.put(ctx, key, sparseToCacheBytes(result.Vector))
	return result, nil
}

// --- encoding ---

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

// sparse layout: uint32 n, then n × (uint32 index, float32 value), little-endian.
func sparseToCacheBytes(v domain.SparseVector) []byte {
	n := v.Len()
	buf := make([]byte, 4+n*8)
	binary.LittleEndian.PutUint32(buf, uint32(n)) //nolint:gosec // n is bounded by max terms
	for i := 0; i < n; i++ {
		off := 4 + i*8
		binary.LittleEndian.PutUint32(buf[off:], v.Indices[i])
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(v.Values[i]))
	}
	return buf
}

func bytesToSparse(data []byte) (domain.SparseVector, error) {
	if len(data) < 4 {
		return domain.SparseVector{}, fmt.Errorf("invalid sparse cache data: len=%d", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) != 4+n*8 {
		return domain.SparseVector{}, fmt.Errorf("invalid sparse cache data: len=%d, terms=%d", len(data), n)
	}
	v := domain.SparseVector{Indices: make([]uint32, n), Values: make([]float32, n)}
	for i := 0; i < n; i++ {
		off := 4 + i*8
		v.Indices[i] = binary.LittleEndian.Uint32(data[off:])
		v.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:]))
	}
	return v, nil
}
