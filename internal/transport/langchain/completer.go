// Package langchain runs reasoning prompts through langchaingo models (Ollama by default).
package langchain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/metrics"
)

// Config holds the Ollama connection settings.
type Config struct {
	ServerURL string
	Model     string
	MaxTokens int
}

// Completer adapts an llms.Model to the reasoning completer contract.
type Completer struct {
	model     llms.Model
	provider  string
	maxTokens int
}

// NewOllama creates a completer backed by a local Ollama server in JSON format mode.
func NewOllama(cfg Config) (*Completer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	opts := []ollama.Option{
		ollama.WithModel(cfg.Model),
		ollama.WithFormat("json"),
	}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return New(llm, "ollama", cfg.MaxTokens), nil
}

// New wraps any langchaingo model.
func New(model llms.Model, provider string, maxTokens int) *Completer {
	return &Completer{model: model, provider: provider, maxTokens: maxTokens}
}

// Provider returns the provider label used in metrics.
func (c *Completer) Provider() string { return c.provider }

// Complete sends a system and a human message and returns the first choice.
func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	opts := []llms.CallOption{llms.WithTemperature(0.0), llms.WithJSONMode()}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, content, opts...)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.ReasoningDuration.WithLabelValues(c.provider, "complete", "error").Observe(elapsed)
		return "", fmt.Errorf("generate content: %w: %w", err, domain.ErrReasoningProviderError)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		metrics.ReasoningDuration.WithLabelValues(c.provider, "complete", "error").Observe(elapsed)
		return "", fmt.Errorf("no choices returned: %w", domain.ErrReasoningProviderError)
	}
	metrics.ReasoningDuration.WithLabelValues(c.provider, "complete", "success").Observe(elapsed)
	return resp.Choices[0].Content, nil
}
