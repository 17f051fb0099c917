package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	"github.com/kailas-cloud/kindred/internal/domain/profile"
)

// Hash field names of kindred:entity:{id}.
const (
	fieldID            = "id"
	fieldProfile       = "profile"
	fieldCanonical     = "canonical"
	fieldTextHash      = "text_hash"
	fieldTextVersion   = "text_version"
	fieldVectorVersion = "vector_version"
	fieldStale         = "stale"
	fieldUpdatedAt     = "updated_at"
)

// buildTextFields converts a profile and its canonical text into hash fields.
// Version counters are not touched here.
func buildTextFields(p profile.Profile, canonical, textHash string, now time.Time) (map[string]string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	return map[string]string{
		fieldID:        p.ID,
		fieldProfile:   string(raw),
		fieldCanonical: canonical,
		fieldTextHash:  textHash,
		fieldUpdatedAt: strconv.FormatInt(now.UnixMilli(), 10),
	}, nil
}

// parseHashFields hydrates an Entity from HGETALL output.
func parseHashFields(id string, m map[string]string) (domentity.Entity, error) {
	var p profile.Profile
	if raw := m[fieldProfile]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return domentity.Entity{}, fmt.Errorf("unmarshal profile %s: %w", id, err)
		}
	}
	if p.ID == "" {
		p.ID = id
	}

	textVersion, _ := strconv.ParseInt(m[fieldTextVersion], 10, 64)
	vectorVersion, _ := strconv.ParseInt(m[fieldVectorVersion], 10, 64)
	updatedMS, _ := strconv.ParseInt(m[fieldUpdatedAt], 10, 64)

	return domentity.Reconstruct(
		id, p,
		m[fieldCanonical], m[fieldTextHash],
		textVersion, vectorVersion,
		m[fieldStale] == "1",
		time.UnixMilli(updatedMS).UTC(),
	), nil
}
