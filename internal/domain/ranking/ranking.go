package ranking

import "fmt"

// Strategy selects how dense and sparse score lists are combined.
type Strategy string

const (
	// StrategyRRF is reciprocal-rank fusion.
	StrategyRRF Strategy = "rrf"
	// StrategyDBSF is distribution-based score fusion (z-score standardization).
	StrategyDBSF Strategy = "dbsf"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRRF, StrategyDBSF:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown fusion strategy %q", s)
	}
}

// Entry is one fused candidate. DenseScore/SparseScore are the raw index
// similarities (0 when the candidate is absent from that list).
type Entry struct {
	EntityID    string  `json:"entity_id"`
	FusedScore  float64 `json:"fused_score"`
	DenseScore  float64 `json:"dense_score"`
	SparseScore float64 `json:"sparse_score"`
	DenseRank   int     `json:"dense_rank,omitempty"`  // 1-based, 0 = absent
	SparseRank  int     `json:"sparse_rank,omitempty"` // 1-based, 0 = absent
}

// Result is an ordered fusion output.
// Entries are sorted by FusedScore descending, ties by EntityID ascending.
type Result struct {
	Entries []Entry
	Partial bool // one of the two sub-queries failed
	// DenseFailed/SparseFailed record which path was lost when Partial is set.
	DenseFailed  bool
	SparseFailed bool
}

// ExplainedCandidate is a fused entry with a calibrated match score and rationale.
// MatchScore is an independent judgment, not a mapping of FusedScore.
type ExplainedCandidate struct {
	Entry
	MatchScore float64 `json:"match_score"`
	Rationale  string  `json:"rationale"`
	Explained  bool    `json:"explained"`
}

// Query is the search text handed to the explainer, with an optional
// language tag for the rationale.
type Query struct {
	Text     string
	Language string
}

// Explanation is a reasoning provider's judgment of one candidate.
type Explanation struct {
	Score     float64
	Rationale string
}

// FallbackRationale is attached to candidates that were not explained.
const FallbackRationale = "Ranked by profile similarity; no detailed explanation available."

// Unexplained reuses the fused score as match score, clamped to [0,1].
func Unexplained(e Entry) ExplainedCandidate {
	return ExplainedCandidate{
		Entry:      e,
		MatchScore: Clamp01(e.FusedScore),
		Rationale:  FallbackRationale,
	}
}

// Clamp01 bounds s to [0,1].
func Clamp01(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
