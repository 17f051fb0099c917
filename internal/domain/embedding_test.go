package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = text
	return s.result, s.err
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewInstructionEmbedder(inner, "query: ")

	result, err := emb.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "query: hello world" {
		t.Errorf("expected prepended text, got %q", inner.got)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(result.Embedding))
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	inner := &stubEmbedder{err: innerErr}
	emb := NewInstructionEmbedder(inner, "query: ")

	_, err := emb.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestInstructionEmbedder_EmptyInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.5}}}
	emb := NewInstructionEmbedder(inner, "")

	_, err := emb.Embed(context.Background(), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "test" {
		t.Errorf("expected 'test', got %q", inner.got)
	}
}

func TestSparseVector_Dot(t *testing.T) {
	a := NewSparseVector(map[uint32]float32{1: 2, 5: 1, 9: 3})
	b := NewSparseVector(map[uint32]float32{5: 4, 9: 1, 12: 7})

	if got := a.Dot(b); got != 7 {
		t.Errorf("Dot = %v, want 7", got)
	}
	if a.Dot(b) != b.Dot(a) {
		t.Error("Dot must be symmetric")
	}
	if got := a.Dot(SparseVector{}); got != 0 {
		t.Errorf("Dot with empty = %v, want 0", got)
	}
}

func TestNewSparseVector_SortsIndices(t *testing.T) {
	v := NewSparseVector(map[uint32]float32{30: 1, 2: 1, 17: 1})
	for i := 1; i < v.Len(); i++ {
		if v.Indices[i-1] >= v.Indices[i] {
			t.Fatalf("indices not ascending: %v", v.Indices)
		}
	}
	if !NewSparseVector(nil).IsEmpty() {
		t.Error("expected empty vector")
	}
}

func TestErrors_Unwrap(t *testing.T) {
	provider := errors.New("503 from provider")
	var err error = &EmbeddingTimeoutError{Kind: "sparse", Attempts: 3, Err: provider}
	if !errors.Is(err, ErrEmbeddingTimeout) || !errors.Is(err, provider) {
		t.Errorf("EmbeddingTimeoutError should unwrap to sentinel and cause: %v", err)
	}

	err = &RetrievalUnavailableError{DenseErr: errors.New("d"), SparseErr: errors.New("s")}
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Error("RetrievalUnavailableError should unwrap to sentinel")
	}
	if err.Error() != "retrieval unavailable (dense: d; sparse: s)" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
