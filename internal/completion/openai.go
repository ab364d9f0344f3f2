package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAIClient answers through the OpenAI chat completions API. It has no
// document retrieval and no server-side memory, so RAG options and LastK are
// ignored.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Result, error) {
	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: req.System,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: req.Query,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			User: req.SessionID,
		},
	)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", ErrInvalidResponse)
	}

	c.logger.Debug("OpenAI completion received",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return &Result{Text: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
}
