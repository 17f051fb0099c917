package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidProfile signals a profile with nothing to embed.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrInvalidQuery signals an empty or malformed query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEntityNotFound signals a missing entity.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrEmbeddingTimeout signals that an embedder kept failing after retries.
	ErrEmbeddingTimeout = errors.New("embedding timeout")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrReasoningProviderError signals a reasoning provider failure.
	ErrReasoningProviderError = errors.New("reasoning provider error")
	// ErrRetrievalUnavailable signals that no retrieval path produced candidates.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrIndexUnavailable signals a vector index failure.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrSparseUnsupported is returned by dense-only indexes on sparse queries.
	ErrSparseUnsupported = errors.New("sparse queries not supported by index")
	// ErrSelfSwipe signals a swipe where actor and target are the same entity.
	ErrSelfSwipe = errors.New("cannot swipe on self")
	// ErrInvalidDirection signals an unknown swipe direction.
	ErrInvalidDirection = errors.New("invalid swipe direction")
)

// InvalidProfileError carries the reason a profile cannot be embedded.
type InvalidProfileError struct {
	Reason string
}

func (e *InvalidProfileError) Error() string {
	return ErrInvalidProfile.Error() + ": " + e.Reason
}

func (e *InvalidProfileError) Unwrap() error { return ErrInvalidProfile }

// EmbeddingTimeoutError is returned after the write path exhausted its retries.
type EmbeddingTimeoutError struct {
	Kind     string // dense | sparse
	Attempts int
	Err      error
}

func (e *EmbeddingTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s embedder failed after %d attempts: %v",
		ErrEmbeddingTimeout.Error(), e.Kind, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last provider error.
func (e *EmbeddingTimeoutError) Unwrap() []error { return []error{ErrEmbeddingTimeout, e.Err} }

// RetrievalUnavailableError is returned when both the dense and sparse paths failed.
type RetrievalUnavailableError struct {
	DenseErr  error
	SparseErr error
}

func (e *RetrievalUnavailableError) Error() string {
	var parts []string
	if e.DenseErr != nil {
		parts = append(parts, "dense: "+e.DenseErr.Error())
	}
	if e.SparseErr != nil {
		parts = append(parts, "sparse: "+e.SparseErr.Error())
	}
	return ErrRetrievalUnavailable.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *RetrievalUnavailableError) Unwrap() error { return ErrRetrievalUnavailable }
