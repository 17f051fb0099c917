package embcache

import (
	"context"
	"strings"
	"time"

	"github.com/kailas-cloud/kindred/internal/db"
	"github.com/kailas-cloud/kindred/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockSparseEmbedder struct {
	result domain.SparseResult
	err    error
	calls  int
}

func (m *mockSparseEmbedder) EmbedSparse(_ context.Context, _ string) (domain.SparseResult, error) {
	m.calls++
	return m.result, m.err
}

// memKV is an in-memory store that records TTLs.
type memKV struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) keysWithPrefix(prefix string) []string {
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
