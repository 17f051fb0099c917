// Package message routes a conversational message by intent: search runs
// retrieval, inquiry answers from referenced profiles, chat returns only the
// decision.
package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domentity "github.com/kailas-cloud/kindred/internal/domain/entity"
	domintent "github.com/kailas-cloud/kindred/internal/domain/intent"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	"github.com/kailas-cloud/kindred/internal/usecase/search"
)

// Classifier decides the intent of a query.
type Classifier interface {
	Classify(ctx context.Context, q domintent.Query) domintent.Decision
}

// Searcher runs hybrid search.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (search.Response, error)
}

// Answerer answers questions about profiles. May be nil.
type Answerer interface {
	Answer(ctx context.Context, q domintent.Query, profiles []string) (string, error)
}

// EntityReader loads referenced profiles.
type EntityReader interface {
	GetMany(ctx context.Context, ids []string) ([]domentity.Entity, error)
}

// Request is one conversational turn.
type Request struct {
	Query domintent.Query
	Limit int
}

// Response carries the decision and, depending on intent, results or an answer.
type Response struct {
	Decision       domintent.Decision
	Search         *search.Response
	Answer         string
	AnswerDegraded bool
}

const summaryLen = 400

// Service dispatches messages.
type Service struct {
	classifier    Classifier
	searcher      Searcher
	answerer      Answerer
	entities      EntityReader
	answerTimeout time.Duration
	logger        *zap.Logger
}

// New creates a message dispatcher.
func New(
	classifier Classifier, searcher Searcher, answerer Answerer, entities EntityReader,
	answerTimeout time.Duration, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		classifier:    classifier,
		searcher:      searcher,
		answerer:      answerer,
		entities:      entities,
		answerTimeout: answerTimeout,
		logger:        logger,
	}
}

// Handle classifies req.Query and acts on the decision.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	d := s.classifier.Classify(ctx, req.Query)
	resp := Response{Decision: d}

	switch d.Intent {
	case domintent.Search:
		res, err := s.searcher.Search(ctx, search.Request{
			Text:     req.Query.Text,
			Exclude:  req.Query.Exclude,
			Limit:    req.Limit,
			Language: req.Query.Language,
		})
		if err != nil {
			return Response{}, fmt.Errorf("search: %w", err)
		}
		resp.Search = &res
	case domintent.Inquiry:
		answer, degraded, err := s.answer(ctx, req.Query)
		if err != nil {
			return Response{}, err
		}
		resp.Answer, resp.AnswerDegraded = answer, degraded
	}
	return resp, nil
}

func (s *Service) answer(ctx context.Context, q domintent.Query) (string, bool, error) {
	ents, err := s.entities.GetMany(ctx, q.ReferencedIDs)
	if err != nil {
		return "", false, fmt.Errorf("load referenced profiles: %w", err)
	}
	if len(ents) == 0 {
		return "None of the referenced profiles are available.", true, nil
	}

	summaries := make([]string, len(ents))
	for i := range ents {
		summaries[i] = domprofile.Summary(ents[i].Canonical(), summaryLen)
	}

	if s.answerer != nil {
		actx := ctx
		if s.answerTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, s.answerTimeout)
			defer cancel()
		}
		text, err := s.answerer.Answer(actx, q, summaries)
		if err == nil {
			return text, false, nil
		}
		s.logger.Warn("Inquiry answer failed, returning profile summaries", zap.Error(err))
	}
	return "Here is what the referenced profiles say:\n" + strings.Join(summaries, "\n"), true, nil
}
