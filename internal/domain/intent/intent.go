package intent

import "fmt"

// Intent is the classified purpose of a user's free-text input.
type Intent string

const (
	// Search asks for new candidates.
	Search Intent = "search"
	// Inquiry asks about already referenced candidates.
	Inquiry Intent = "inquiry"
	// Chat is open conversation, no retrieval.
	Chat Intent = "chat"
)

// Parse validates an intent string.
func Parse(s string) (Intent, error) {
	switch Intent(s) {
	case Search, Inquiry, Chat:
		return Intent(s), nil
	default:
		return "", fmt.Errorf("unknown intent %q", s)
	}
}

// Source identifies which mechanism produced a decision.
type Source string

const (
	// SourceReasoner marks decisions made by the external reasoning provider.
	SourceReasoner Source = "reasoner"
	// SourceHeuristic marks decisions made by the local keyword heuristic.
	SourceHeuristic Source = "heuristic"
)

// Query is the request-scoped input to the classifier and ranker.
type Query struct {
	Text          string
	ReferencedIDs []string
	Exclude       []string
	Language      string
	History       []string // prior conversation turns, oldest first, read-only
}

// Decision is the classifier output for one Query.
type Decision struct {
	Intent             Intent
	Confidence         float64
	NeedsClarification bool
	Degraded           bool // external reasoning failed, heuristic used
	Rationale          string
	Source             Source
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
