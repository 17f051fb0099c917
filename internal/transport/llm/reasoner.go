// Package llm turns reasoning prompts into typed decisions over a JSON-mode completer.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/domain/intent"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
)

// Completer is a single-shot JSON chat call (openai.ChatCompleter, langchain.Completer).
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Provider() string
}

// Reasoner implements classify, explain and answer on top of a Completer.
type Reasoner struct {
	completer  Completer
	historyMax int
	logger     *zap.Logger
}

// NewReasoner creates a reasoner. historyMax bounds how many prior turns go into prompts.
func NewReasoner(c Completer, historyMax int, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyMax <= 0 {
		historyMax = 6
	}
	return &Reasoner{completer: c, historyMax: historyMax, logger: logger}
}

const classifySystem = `You route messages in a people-matching app.
Classify the user's latest message as one of:
- "search": the user wants new candidates (roles, skills, locations, "find", "looking for").
- "inquiry": the user asks about candidates they already have in view (referenced profiles).
- "chat": anything else.
Reply with JSON only: {"intent": "...", "confidence": 0.0-1.0, "rationale": "..."}`

type classifyReply struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// Classify asks the provider for intent, confidence and rationale.
func (r *Reasoner) Classify(ctx context.Context, q intent.Query) (intent.Decision, error) {
	var b strings.Builder
	if h := tail(q.History, r.historyMax); len(h) > 0 {
		b.WriteString("Previous turns:\n")
		for _, turn := range h {
			b.WriteString("- ")
			b.WriteString(turn)
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "Referenced profiles in view: %d\n", len(q.ReferencedIDs))
	if q.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", q.Language)
	}
	b.WriteString("Message: ")
	b.WriteString(q.Text)

	var reply classifyReply
	if err := r.call(ctx, "classify", classifySystem, b.String(), &reply); err != nil {
		return intent.Decision{}, err
	}

	in, err := intent.Parse(strings.ToLower(strings.TrimSpace(reply.Intent)))
	if err != nil {
		return intent.Decision{}, fmt.Errorf("classify reply: %w: %w", err, domain.ErrReasoningProviderError)
	}
	if reply.Confidence == nil {
		return intent.Decision{}, fmt.Errorf("classify reply without confidence: %w", domain.ErrReasoningProviderError)
	}
	return intent.Decision{
		Intent:     in,
		Confidence: intent.ClampConfidence(*reply.Confidence),
		Rationale:  reply.Rationale,
		Source:     intent.SourceReasoner,
	}, nil
}

const explainSystem = `You judge how well a candidate profile fits a search request.
Reply with JSON only: {"score": 0.0-1.0, "rationale": "one or two short sentences"}`

type explainReply struct {
	Score     *float64 `json:"score"`
	Rationale string   `json:"rationale"`
}

// Explain scores one candidate summary against the query text. A language
// tag asks for the rationale in that language.
func (r *Reasoner) Explain(ctx context.Context, q ranking.Query, candidate string) (ranking.Explanation, error) {
	var b strings.Builder
	b.WriteString("Request: ")
	b.WriteString(q.Text)
	b.WriteString("\nCandidate: ")
	b.WriteString(candidate)
	if q.Language != "" {
		fmt.Fprintf(&b, "\nWrite the rationale in language: %s", q.Language)
	}
	user := b.String()

	var reply explainReply
	if err := r.call(ctx, "explain", explainSystem, user, &reply); err != nil {
		return ranking.Explanation{}, err
	}
	if reply.Score == nil || strings.TrimSpace(reply.Rationale) == "" {
		return ranking.Explanation{}, fmt.Errorf("incomplete explain reply: %w", domain.ErrReasoningProviderError)
	}
	return ranking.Explanation{
		Score:     ranking.Clamp01(*reply.Score),
		Rationale: strings.TrimSpace(reply.Rationale),
	}, nil
}

const answerSystem = `You answer questions about the candidate profiles listed below.
Use only facts present in the profiles. If the answer is not there, say so.
Reply with JSON only: {"answer": "..."}`

type answerReply struct {
	Answer string `json:"answer"`
}

// Answer responds to a question about referenced profiles.
func (r *Reasoner) Answer(ctx context.Context, q intent.Query, profiles []string) (string, error) {
	var b strings.Builder
	for i, p := range profiles {
		fmt.Fprintf(&b, "Profile %d: %s\n", i+1, p)
	}
	if h := tail(q.History, r.historyMax); len(h) > 0 {
		b.WriteString("Previous turns:\n")
		for _, turn := range h {
			b.WriteString("- ")
			b.WriteString(turn)
			b.WriteByte('\n')
		}
	}
	b.WriteString("Question: ")
	b.WriteString(q.Text)

	var reply answerReply
	if err := r.call(ctx, "answer", answerSystem, b.String(), &reply); err != nil {
		return "", err
	}
	if strings.TrimSpace(reply.Answer) == "" {
		return "", fmt.Errorf("empty answer: %w", domain.ErrReasoningProviderError)
	}
	return strings.TrimSpace(reply.Answer), nil
}

func (r *Reasoner) call(ctx context.Context, op, system, user string, out any) error {
	raw, err := r.completer.Complete(ctx, system, user)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	body := ExtractJSON(raw)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		r.logger.Warn("unparseable reasoning reply",
			zap.String("op", op),
			zap.String("provider", r.completer.Provider()),
			zap.String("reply", truncate(raw, 200)),
			zap.Error(err),
		)
		return fmt.Errorf("%s: decode reply: %w: %w", op, err, domain.ErrReasoningProviderError)
	}
	return nil
}

// ExtractJSON strips markdown fences and surrounding prose, returning the
// outermost {...} object of s. s is returned trimmed when no object is found.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func tail(turns []string, n int) []string {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
