package chi

import (
	"time"

	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeInvalidProfile         ErrorCode = "invalid_profile"
	CodeInvalidQuery           ErrorCode = "invalid_query"
	CodeInvalidDirection       ErrorCode = "invalid_direction"
	CodeSelfSwipe              ErrorCode = "self_swipe"
	CodeNotFound               ErrorCode = "not_found"
	CodeEmbeddingTimeout       ErrorCode = "embedding_timeout"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeReasoningProviderError ErrorCode = "reasoning_provider_error"
	CodeRetrievalUnavailable   ErrorCode = "retrieval_unavailable"
	CodeIndexUnavailable       ErrorCode = "index_unavailable"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ProfileRequest is the body of PUT /v1/profiles/{id}.
type ProfileRequest struct {
	Name      string   `json:"name"`
	Bio       string   `json:"bio"`
	Location  string   `json:"location"`
	Skills    []string `json:"skills"`
	Interests []string `json:"interests"`
}

// ProfileUpsertResponse reports the write-path outcome.
type ProfileUpsertResponse struct {
	ID          string `json:"id"`
	TextVersion int64  `json:"text_version"`
	Searchable  bool   `json:"searchable"`
	Unchanged   bool   `json:"unchanged"`
}

// EntityResponse is the stored state of one profile.
type EntityResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	Location      string    `json:"location,omitempty"`
	Skills        []string  `json:"skills,omitempty"`
	Interests     []string  `json:"interests,omitempty"`
	TextVersion   int64     `json:"text_version"`
	VectorVersion int64     `json:"vector_version"`
	Searchable    bool      `json:"searchable"`
	Stale         bool      `json:"stale"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func entityToResponse(e *domentity.Entity) EntityResponse {
	p := e.Profile()
	return EntityResponse{
		ID:            e.ID(),
		Name:          p.Name,
		Bio:           p.Bio,
		Location:      p.Location,
		Skills:        p.Skills,
		Interests:     p.Interests,
		TextVersion:   e.TextVersion(),
		VectorVersion: e.VectorVersion(),
		Searchable:    e.Searchable(),
		Stale:         e.Stale(),
		UpdatedAt:     e.UpdatedAt().UTC(),
	}
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Text     string   `json:"text"`
	Exclude  []string `json:"exclude"`
	Limit    int      `json:"limit"`
	Language string   `json:"language"`
}

// SearchResponse is an ordered list of explained candidates.
type SearchResponse struct {
	Results        []ranking.ExplainedCandidate `json:"results"`
	Partial        bool                         `json:"partial"`
	ExplainedCount int                          `json:"explained_count"`
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	Text          string   `json:"text"`
	ReferencedIDs []string `json:"referenced_ids"`
	Exclude       []string `json:"exclude"`
	Limit         int      `json:"limit"`
	Language      string   `json:"language"`
	History       []string `json:"history"`
}

// IntentResponse is the classifier decision.
type IntentResponse struct {
	Intent             string  `json:"intent"`
	Confidence         float64 `json:"confidence"`
	NeedsClarification bool    `json:"needs_clarification"`
	Degraded           bool    `json:"degraded"`
	Rationale          string  `json:"rationale,omitempty"`
	Source             string  `json:"source"`
}

// MessageResponse carries the decision plus search results or an answer.
type MessageResponse struct {
	Intent         IntentResponse  `json:"intent"`
	Search         *SearchResponse `json:"search,omitempty"`
	Answer         string          `json:"answer,omitempty"`
	AnswerDegraded bool            `json:"answer_degraded,omitempty"`
}

// SwipeRequest is the body of POST /v1/swipes.
type SwipeRequest struct {
	ActorID   string `json:"actor_id"`
	TargetID  string `json:"target_id"`
	Direction string `json:"direction"`
}

// SwipeResponse is the swipe outcome.
type SwipeResponse struct {
	Direction string    `json:"direction"`
	Matched   bool      `json:"matched"`
	MatchID   string    `json:"match_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
