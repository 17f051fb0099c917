package entity

import (
	"testing"
	"time"

	"github.com/kailas-cloud/kindred/internal/domain/profile"
)

func TestSearchable(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name          string
		textVersion   int64
		vectorVersion int64
		stale         bool
		want          bool
	}{
		{"never embedded", 1, 0, false, false},
		{"current", 3, 3, false, true},
		{"behind text", 4, 3, false, false},
		{"stale flag", 3, 3, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := Reconstruct("a", profile.Profile{ID: "a"}, "Name: A", "h",
				tc.textVersion, tc.vectorVersion, tc.stale, now)
			if got := e.Searchable(); got != tc.want {
				t.Errorf("Searchable() = %v, want %v", got, tc.want)
			}
		})
	}
}
