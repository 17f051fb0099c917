package text

import (
	"reflect"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"disabled", "a b c", 0, "a b c"},
		{"under budget", "a b c", 5, "a b c"},
		{"exact budget", "a b c", 3, "a b c"},
		{"cut", "one two three four", 2, "one two"},
		{"keeps newlines between kept tokens", "Name: Alice\nBio: x y", 3, "Name: Alice\nBio:"},
		{"leading space", "  one two", 1, "  one"},
		{"empty", "", 3, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truncate(tc.in, tc.max); got != tc.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

func TestTruncate_Deterministic(t *testing.T) {
	in := "alpha beta gamma delta epsilon zeta"
	first := Truncate(in, 4)
	for range 10 {
		if got := Truncate(in, 4); got != first {
			t.Fatalf("non-deterministic truncate: %q vs %q", got, first)
		}
	}
	if CountTokens(first) != 4 {
		t.Errorf("expected 4 tokens, got %d", CountTokens(first))
	}
}

func TestWords(t *testing.T) {
	got := Words("Skills: Rust, Go, C++ and C#!")
	want := []string{"skills", "rust", "go", "c++", "and", "c#"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
	if Words("") != nil {
		t.Error("expected nil for empty input")
	}
}
