package profile

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/kindred/internal/domain"
)

func alice() Profile {
	return Profile{
		ID:       "alice",
		Name:     "Alice",
		Bio:      "backend engineer, Rust, Go",
		Location: "Berlin",
		Skills:   []string{"Rust", "Go"},
	}
}

func TestNormalize_FieldOrderAndPrefixes(t *testing.T) {
	got, err := Normalize(Profile{
		Name:      "Alice",
		Bio:       "backend engineer",
		Location:  "Berlin",
		Skills:    []string{"Rust", "Go"},
		Interests: []string{"climbing"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Name: Alice\nBio: backend engineer\nLocation: Berlin\nSkills: Rust, Go\nInterests: climbing"
	if got != want {
		t.Errorf("Normalize =\n%q\nwant\n%q", got, want)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	p := alice()
	first, err := Normalize(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 20 {
		got, err := Normalize(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != first {
			t.Fatalf("non-deterministic output: %q vs %q", got, first)
		}
	}
}

func TestNormalize_CollapsesWhitespaceAndDedupesTags(t *testing.T) {
	got, err := Normalize(Profile{
		Name:   "  Bob   Smith ",
		Skills: []string{"React", " react ", "", "CSS"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Name: Bob Smith\nSkills: React, CSS"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalize_OmitsEmptyFields(t *testing.T) {
	got, err := Normalize(Profile{Bio: "designer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Bio: designer" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_EmptyProfile(t *testing.T) {
	_, err := Normalize(Profile{ID: "x", Skills: []string{" ", ""}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrInvalidProfile) {
		t.Errorf("expected ErrInvalidProfile, got %v", err)
	}
	var ipe *domain.InvalidProfileError
	if !errors.As(err, &ipe) {
		t.Errorf("expected *InvalidProfileError, got %T", err)
	}
}

func TestHash_StableAndSensitive(t *testing.T) {
	a, _ := Normalize(alice())
	if Hash(a) != Hash(a) {
		t.Error("hash not stable")
	}
	p := alice()
	p.Skills = append(p.Skills, "Kubernetes")
	b, _ := Normalize(p)
	if Hash(a) == Hash(b) {
		t.Error("hash should change with content")
	}
	if len(Hash(a)) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(Hash(a)))
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"alice", false},
		{"user_42-a", false},
		{"", true},
		{"has space", true},
		{"semi;colon", true},
		{strings.Repeat("a", MaxIDLength+1), true},
	}
	for _, tc := range tests {
		err := ValidateID(tc.id)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateID(%q) err = %v, wantErr %v", tc.id, err, tc.wantErr)
		}
	}
}

func TestSummary(t *testing.T) {
	if got := Summary("Name: A\nBio: b", 0); got != "Name: A; Bio: b" {
		t.Errorf("got %q", got)
	}
	if got := Summary("Name: Alice", 6); got != "Name: ..." {
		t.Errorf("got %q", got)
	}
}
