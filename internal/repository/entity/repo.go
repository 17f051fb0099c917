// Package entity persists entity profiles and their vector bookkeeping in
// Redis hashes.
package entity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/kindred/internal/domain"
	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	"github.com/kailas-cloud/kindred/internal/domain/profile"
)

var staleSetKey = domain.KeyPrefix + "stale"

// store is the consumer interface for entities (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Repo implements the entity store for usecase/profile.
type Repo struct {
	store store
	now   func() time.Time
}

// New creates an entity repository.
func New(s store) *Repo {
	return &Repo{store: s, now: time.Now}
}

// Get returns an entity by id or domain.ErrEntityNotFound.
func (r *Repo) Get(ctx context.Context, id string) (domentity.Entity, error) {
	key := entityKey(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domentity.Entity{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return domentity.Entity{}, domain.ErrEntityNotFound
	}
	return parseHashFields(id, m)
}

// GetMany returns the entities that exist among ids, preserving input order.
func (r *Repo) GetMany(ctx context.Context, ids []string) ([]domentity.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entityKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi: %w", err)
	}

	out := make([]domentity.Entity, 0, len(ids))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		e, err := parseHashFields(ids[i], m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SaveText persists the profile and canonical text and bumps text_version.
// Returns the new text version.
func (r *Repo) SaveText(ctx context.Context, p profile.Profile, canonical, textHash string) (int64, error) {
	key := entityKey(p.ID)
	fields, err := buildTextFields(p, canonical, textHash, r.now())
	if err != nil {
		return 0, err
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return 0, fmt.Errorf("hset %s: %w", key, err)
	}
	version, err := r.store.HIncrBy(ctx, key, fieldTextVersion, 1)
	if err != nil {
		return 0, fmt.Errorf("hincrby %s: %w", key, err)
	}
	return version, nil
}

// MarkIndexed records that vectors for textVersion are in the index and
// clears the stale flag.
func (r *Repo) MarkIndexed(ctx context.Context, id string, textVersion int64) error {
	key := entityKey(id)
	err := r.store.HSet(ctx, key, map[string]string{
		fieldVectorVersion: strconv.FormatInt(textVersion, 10),
		fieldStale:         "0",
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if err := r.store.SRem(ctx, staleSetKey, id); err != nil {
		return fmt.Errorf("srem %s: %w", staleSetKey, err)
	}
	return nil
}

// MarkStale flags the entity for background re-indexing.
func (r *Repo) MarkStale(ctx context.Context, id string) error {
	key := entityKey(id)
	if err := r.store.HSet(ctx, key, map[string]string{fieldStale: "1"}); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if err := r.store.SAdd(ctx, staleSetKey, id); err != nil {
		return fmt.Errorf("sadd %s: %w", staleSetKey, err)
	}
	return nil
}

// StaleIDs lists entities waiting for re-indexing.
func (r *Repo) StaleIDs(ctx context.Context) ([]string, error) {
	ids, err := r.store.SMembers(ctx, staleSetKey)
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", staleSetKey, err)
	}
	return ids, nil
}

func entityKey(id string) string {
	return domain.KeyPrefix + "entity:" + id
}
