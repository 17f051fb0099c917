package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/metrics"
)

// ChatCompleter sends a system+user prompt and returns the JSON content of the first choice.
type ChatCompleter struct {
	client    *openai.Client
	model     string
	provider  string
	maxTokens int
	logger    *zap.Logger
}

// NewChatCompleter creates a completer for reasoning calls.
func NewChatCompleter(cfg *Config, maxTokens int) *ChatCompleter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatCompleter{
		client:    newClient(cfg),
		model:     cfg.Model,
		provider:  cfg.Provider,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Provider returns the provider label used in metrics.
func (c *ChatCompleter) Provider() string { return c.provider }

// Complete runs one deterministic JSON-mode chat completion.
func (c *ChatCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.ReasoningDuration.WithLabelValues(c.provider, "complete", "error").Observe(elapsed)
		return "", parseAPIError("chat", err, domain.ErrReasoningProviderError)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.ReasoningDuration.WithLabelValues(c.provider, "complete", "error").Observe(elapsed)
		return "", fmt.Errorf("empty chat response: %w", domain.ErrReasoningProviderError)
	}
	metrics.ReasoningDuration.WithLabelValues(c.provider, "complete", "success").Observe(elapsed)

	c.logger.Debug("chat completion",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
