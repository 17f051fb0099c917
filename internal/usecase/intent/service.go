// Package intent classifies free-text messages as search, inquiry or chat.
// The reasoning provider decides; a keyword heuristic stands in when it is
// absent or failing.
package intent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domintent "github.com/kailas-cloud/kindred/internal/domain/intent"
	"github.com/kailas-cloud/kindred/internal/metrics"
)

var tracer = otel.Tracer("kindred/usecase/intent")

// Reasoner classifies one query.
type Reasoner interface {
	Classify(ctx context.Context, q domintent.Query) (domintent.Decision, error)
}

// Classifier never fails: a reasoner error yields the heuristic decision
// with Degraded set.
type Classifier struct {
	reasoner  Reasoner
	threshold float64
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClassifier creates a classifier. reasoner may be nil (heuristic only).
func NewClassifier(reasoner Reasoner, threshold float64, timeout time.Duration, logger *zap.Logger) *Classifier {
	if threshold <= 0 {
		threshold = 0.6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{reasoner: reasoner, threshold: threshold, timeout: timeout, logger: logger}
}

// Classify returns the decision for q.
func (c *Classifier) Classify(ctx context.Context, q domintent.Query) domintent.Decision {
	ctx, span := tracer.Start(ctx, "intent.classify")
	defer span.End()

	d := c.decide(ctx, q)
	d.Confidence = domintent.ClampConfidence(d.Confidence)
	d.NeedsClarification = d.Confidence < c.threshold

	span.SetAttributes(
		attribute.String("intent", string(d.Intent)),
		attribute.String("intent.source", string(d.Source)),
		attribute.Float64("intent.confidence", d.Confidence),
		attribute.Bool("intent.degraded", d.Degraded),
	)
	metrics.IntentDecisionsTotal.WithLabelValues(
		string(d.Intent), string(d.Source), metrics.BoolLabel(d.Degraded),
	).Inc()
	return d
}

func (c *Classifier) decide(ctx context.Context, q domintent.Query) domintent.Decision {
	if c.reasoner == nil {
		return Heuristic(q)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	d, err := c.reasoner.Classify(ctx, q)
	if err != nil {
		c.logger.Warn("Intent reasoner failed, using heuristic", zap.Error(err))
		d = Heuristic(q)
		d.Degraded = true
		return d
	}
	return d
}
