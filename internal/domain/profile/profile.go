package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/kailas-cloud/kindred/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxIDLength is the maximum entity identifier length.
const MaxIDLength = 128

// Profile holds the structured attributes of a person or project.
type Profile struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Bio       string   `json:"bio"`
	Location  string   `json:"location"`
	Skills    []string `json:"skills"`
	Interests []string `json:"interests"`
}

// ValidateID checks an entity identifier: ^[a-zA-Z0-9_-]+$, 1-128 chars.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("entity ID is required")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("entity ID too long (max %d)", MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("entity ID must be alphanumeric with underscores and hyphens")
	}
	return nil
}

// Normalize builds the canonical text blob for embedding.
// Fields are emitted in a fixed order (name, bio, location, skills, interests),
// one per line, each with a field-name prefix. Empty fields are omitted.
func Normalize(p Profile) (string, error) {
	lines := make([]string, 0, 5)

	if v := collapse(p.Name); v != "" {
		lines = append(lines, "Name: "+v)
	}
	if v := collapse(p.Bio); v != "" {
		lines = append(lines, "Bio: "+v)
	}
	if v := collapse(p.Location); v != "" {
		lines = append(lines, "Location: "+v)
	}
	if tags := cleanTags(p.Skills); len(tags) > 0 {
		lines = append(lines, "Skills: "+strings.Join(tags, ", "))
	}
	if tags := cleanTags(p.Interests); len(tags) > 0 {
		lines = append(lines, "Interests: "+strings.Join(tags, ", "))
	}

	if len(lines) == 0 {
		return "", &domain.InvalidProfileError{Reason: "all text fields are empty"}
	}
	return strings.Join(lines, "\n"), nil
}

// Hash returns the hex SHA-256 of canonical text, used to detect unchanged profiles.
func Hash(canonical string) string {
	h := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(h[:])
}

// Summary returns a single-line rendering of canonical text for prompts.
func Summary(canonical string, maxLen int) string {
	s := strings.ReplaceAll(canonical, "\n", "; ")
	if maxLen > 0 && len(s) > maxLen {
		// cut on a rune boundary
		cut := maxLen
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// collapse trims and folds internal whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanTags collapses each tag, drops empties and case-insensitive duplicates, keeps order.
func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = collapse(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
