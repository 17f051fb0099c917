package entity

import (
	"time"

	"github.com/kailas-cloud/kindred/internal/domain/profile"
)

// Entity is the persisted state of a profile: attributes, canonical text and
// version bookkeeping for its derived vectors.
type Entity struct {
	id            string
	profile       profile.Profile
	canonical     string
	textHash      string
	textVersion   int64
	vectorVersion int64
	stale         bool
	updatedAt     time.Time
}

// Reconstruct creates an Entity without validation (storage hydration).
func Reconstruct(
	id string, p profile.Profile, canonical, textHash string,
	textVersion, vectorVersion int64, stale bool, updatedAt time.Time,
) Entity {
	return Entity{
		id: id, profile: p, canonical: canonical, textHash: textHash,
		textVersion: textVersion, vectorVersion: vectorVersion,
		stale: stale, updatedAt: updatedAt,
	}
}

// ID returns the immutable entity identifier.
func (e *Entity) ID() string { return e.id }

// Profile returns the structured attributes.
func (e *Entity) Profile() profile.Profile { return e.profile }

// Canonical returns the normalized text blob.
func (e *Entity) Canonical() string { return e.canonical }

// TextHash returns the hash of the canonical text.
func (e *Entity) TextHash() string { return e.textHash }

// TextVersion increments every time the canonical text changes.
func (e *Entity) TextVersion() int64 { return e.textVersion }

// VectorVersion is the text version the indexed vectors were computed from.
func (e *Entity) VectorVersion() int64 { return e.vectorVersion }

// Stale reports whether the last re-embedding attempt failed permanently.
func (e *Entity) Stale() bool { return e.stale }

// UpdatedAt returns the last write time.
func (e *Entity) UpdatedAt() time.Time { return e.updatedAt }

// HasVectors reports whether any vectors were ever indexed.
func (e *Entity) HasVectors() bool { return e.vectorVersion > 0 }

// Searchable is true iff vectors exist and match the current text version.
func (e *Entity) Searchable() bool {
	return e.HasVectors() && !e.stale && e.vectorVersion == e.textVersion
}
