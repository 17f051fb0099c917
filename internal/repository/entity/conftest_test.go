package entity

import (
	"context"
	"sort"
)

// --- Mocks ---

// memStore is an in-memory hash/set store.
type memStore struct {
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}

	hsetFn    func(ctx context.Context, key string, fields map[string]string) error
	hincrbyFn func(ctx context.Context, key, field string, delta int64) (int64, error)
}

func newMemStore() *memStore {
	return &memStore{
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]struct{}{},
	}
}

func (m *memStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i], _ = m.HGetAll(ctx, k)
	}
	return out, nil
}

func (m *memStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if m.hincrbyFn != nil {
		return m.hincrbyFn(ctx, key, field, delta)
	}
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	var n int64
	for _, c := range h[field] {
		n = n*10 + int64(c-'0')
	}
	n += delta
	h[field] = itoa(n)
	return n, nil
}

func (m *memStore) SAdd(_ context.Context, key string, members ...string) error {
	s, ok := m.sets[key]
	if !ok {
		s = map[string]struct{}{}
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *memStore) SRem(_ context.Context, key string, members ...string) error {
	for _, mem := range members {
		delete(m.sets[key], mem)
	}
	return nil
}

func (m *memStore) SMembers(_ context.Context, key string) ([]string, error) {
	out := make([]string, 0, len(m.sets[key]))
	for mem := range m.sets[key] {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
