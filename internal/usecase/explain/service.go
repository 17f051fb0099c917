// Package explain asks the reasoning provider for a calibrated match score and
// rationale for the top fused candidates, with bounded concurrency.
package explain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
	"github.com/kailas-cloud/kindred/internal/metrics"
)

var tracer = otel.Tracer("kindred/usecase/explain")

// Reasoner scores one candidate summary against the query.
type Reasoner interface {
	Explain(ctx context.Context, q ranking.Query, candidate string) (ranking.Explanation, error)
}

// EntityReader loads candidate profiles. Missing ids are skipped.
type EntityReader interface {
	GetMany(ctx context.Context, ids []string) ([]domentity.Entity, error)
}

// Config bounds the explanation fan-out.
type Config struct {
	TopK        int
	Concurrency int
	RatePerSec  float64
	Burst       int
	Timeout     time.Duration // per candidate
	SummaryLen  int
}

// Service explains fused candidates.
type Service struct {
	reasoner Reasoner
	entities EntityReader
	cfg      Config
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New creates an explainer.
func New(reasoner Reasoner, entities EntityReader, cfg Config, logger *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Concurrency
	}
	if cfg.SummaryLen <= 0 {
		cfg.SummaryLen = 600
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reasoner: reasoner,
		entities: entities,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		logger:   logger,
	}
}

// Explain returns one ExplainedCandidate per entry, in the same order.
// Only the top K entries are sent to the reasoner; the rest, and any entry
// whose call fails or times out, carry the fused score with Explained=false.
func (s *Service) Explain(ctx context.Context, q ranking.Query, entries []ranking.Entry) []ranking.ExplainedCandidate {
	out := make([]ranking.ExplainedCandidate, len(entries))
	for i, e := range entries {
		out[i] = ranking.Unexplained(e)
	}
	k := min(s.cfg.TopK, len(entries))
	if k == 0 {
		return out
	}

	ctx, span := tracer.Start(ctx, "search.explain")
	defer span.End()
	span.SetAttributes(attribute.Int("explain.candidates", k))

	summaries, err := s.summaries(ctx, entries[:k])
	if err != nil {
		s.logger.Warn("Candidate profiles unavailable, skipping explanation", zap.Error(err))
		metrics.ExplainTotal.WithLabelValues("fallback").Add(float64(k))
		return out
	}

	pool, err := ants.NewPool(s.cfg.Concurrency)
	if err != nil {
		s.logger.Error("Failed to create explain pool", zap.Error(err))
		metrics.ExplainTotal.WithLabelValues("fallback").Add(float64(k))
		return out
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range k {
		summary, ok := summaries[entries[i].EntityID]
		if !ok {
			metrics.ExplainTotal.WithLabelValues("fallback").Inc()
			continue
		}
		wg.Add(1)
		// each task writes only its own slot
		if err := pool.Submit(func() {
			defer wg.Done()
			out[i] = s.explainOne(ctx, q, entries[i], summary)
		}); err != nil {
			wg.Done()
			metrics.ExplainTotal.WithLabelValues("fallback").Inc()
		}
	}
	wg.Wait()

	explained := 0
	for i := range k {
		if out[i].Explained {
			explained++
		}
	}
	span.SetAttributes(attribute.Int("explain.explained", explained))
	if explained < k {
		s.logger.Warn("Some candidates not explained",
			zap.Int("requested", k),
			zap.Int("explained", explained),
		)
	}
	return out
}

func (s *Service) explainOne(
	ctx context.Context, q ranking.Query, e ranking.Entry, summary string,
) ranking.ExplainedCandidate {
	if err := s.limiter.Wait(ctx); err != nil {
		metrics.ExplainTotal.WithLabelValues("fallback").Inc()
		return ranking.Unexplained(e)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	ex, err := s.reasoner.Explain(ctx, q, summary)
	if err != nil {
		s.logger.Debug("Candidate explanation failed",
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
		metrics.ExplainTotal.WithLabelValues("fallback").Inc()
		return ranking.Unexplained(e)
	}
	metrics.ExplainTotal.WithLabelValues("explained").Inc()
	return ranking.ExplainedCandidate{
		Entry:      e,
		MatchScore: ranking.Clamp01(ex.Score),
		Rationale:  ex.Rationale,
		Explained:  true,
	}
}

func (s *Service) summaries(ctx context.Context, entries []ranking.Entry) (map[string]string, error) {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.EntityID
	}
	ents, err := s.entities.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	out := make(map[string]string, len(ents))
	for _, ent := range ents {
		out[ent.ID()] = domprofile.Summary(ent.Canonical(), s.cfg.SummaryLen)
	}
	return out, nil
}
