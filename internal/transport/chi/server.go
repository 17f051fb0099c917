// Package chi exposes the HTTP API over a chi router.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	domintent "github.com/kailas-cloud/kindred/internal/domain/intent"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
	logpkg "github.com/kailas-cloud/kindred/internal/logger"
	"github.com/kailas-cloud/kindred/internal/metrics"
	healthuc "github.com/kailas-cloud/kindred/internal/usecase/health"
	messageuc "github.com/kailas-cloud/kindred/internal/usecase/message"
	searchuc "github.com/kailas-cloud/kindred/internal/usecase/search"
)

const maxBodyBytes = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server holds the HTTP handlers.
type Server struct {
	profiles      ProfileService
	search        SearchService
	messages      MessageService
	swipes        SwipeService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	profiles ProfileService,
	search SearchService,
	messages MessageService,
	swipes SwipeService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		profiles: profiles,
		search:   search,
		messages: messages,
		swipes:   swipes,
		health:   health,
		logger:   logger,
	}
	// order matters: EmbeddingTimeoutError also matches the provider error it wraps
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidProfile, http.StatusBadRequest, CodeInvalidProfile),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrInvalidDirection, http.StatusBadRequest, CodeInvalidDirection),
		sentinelHandler(domain.ErrSelfSwipe, http.StatusUnprocessableEntity, CodeSelfSwipe),
		sentinelHandler(domain.ErrEntityNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrEmbeddingTimeout, http.StatusBadGateway, CodeEmbeddingTimeout),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrReasoningProviderError, http.StatusBadGateway, CodeReasoningProviderError),
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, CodeRetrievalUnavailable),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, CodeIndexUnavailable),
	}
	return s
}

// Router builds the chi router with the middleware stack and all routes.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Put("/profiles/{id}", s.UpsertProfile)
		r.Get("/profiles/{id}", s.GetProfile)
		r.Post("/search", s.Search)
		r.Post("/messages", s.Message)
		r.Post("/swipes", s.Swipe)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// UpsertProfile handles PUT /v1/profiles/{id}.
func (s *Server) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.profiles.Upsert(r.Context(), domprofile.Profile{
		ID:        chi.URLParam(r, "id"),
		Name:      req.Name,
		Bio:       req.Bio,
		Location:  req.Location,
		Skills:    req.Skills,
		Interests: req.Interests,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileUpsertResponse{
		ID:          res.ID,
		TextVersion: res.TextVersion,
		Searchable:  res.Searchable,
		Unchanged:   res.Unchanged,
	})
}

// GetProfile handles GET /v1/profiles/{id}.
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	e, err := s.profiles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entityToResponse(&e))
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.search.Search(r.Context(), searchuc.Request{
		Text:     req.Text,
		Exclude:  req.Exclude,
		Limit:    req.Limit,
		Language: req.Language,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchToResponse(res))
}

// Message handles POST /v1/messages.
func (s *Server) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.messages.Handle(r.Context(), messageuc.Request{
		Query: domintent.Query{
			Text:          req.Text,
			ReferencedIDs: req.ReferencedIDs,
			Exclude:       req.Exclude,
			Language:      req.Language,
			History:       req.History,
		},
		Limit: req.Limit,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	d := res.Decision
	resp := MessageResponse{
		Intent: IntentResponse{
			Intent:             string(d.Intent),
			Confidence:         d.Confidence,
			NeedsClarification: d.NeedsClarification,
			Degraded:           d.Degraded,
			Rationale:          d.Rationale,
			Source:             string(d.Source),
		},
		Answer:         res.Answer,
		AnswerDegraded: res.AnswerDegraded,
	}
	if res.Search != nil {
		sr := searchToResponse(*res.Search)
		resp.Search = &sr
	}
	writeJSON(w, http.StatusOK, resp)
}

// Swipe handles POST /v1/swipes.
func (s *Server) Swipe(w http.ResponseWriter, r *http.Request) {
	var req SwipeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.swipes.Record(r.Context(), req.ActorID, req.TargetID, req.Direction)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SwipeResponse{
		Direction: string(out.Direction),
		Matched:   out.Matched,
		MatchID:   out.MatchID,
		CreatedAt: out.CreatedAt.UTC(),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func searchToResponse(res searchuc.Response) SearchResponse {
	results := res.Results
	if results == nil {
		results = []ranking.ExplainedCandidate{}
	}
	return SearchResponse{Results: results, Partial: res.Partial, ExplainedCount: res.ExplainedCount}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			logpkg.FromContextOr(r.Context(), s.logger).Info("Request failed", zap.Error(err))
			return
		}
	}
	logpkg.FromContextOr(r.Context(), s.logger).Error("Unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// Invalid-input errors carry their detail; the rest expose only the sentinel text.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if status < http.StatusInternalServerError {
			msg = clientMessage(err)
		}
		writeError(w, status, code, msg)
		return true
	}
}

// clientMessage prefers the typed error's own text over the wrapping chain.
func clientMessage(err error) string {
	var ip *domain.InvalidProfileError
	if errors.As(err, &ip) {
		return ip.Error()
	}
	return err.Error()
}
