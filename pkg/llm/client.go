package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/atelier-ops/link-engine/pkg/logging"
)

// Config holds configuration for creating a classification client.
type Config struct {
	Endpoint  string // Base URL, e.g. "https://api.openai.com/v1"
	Model     string // Model name
	APIKey    string // Optional for local endpoints
	BodyLimit int    // Max body runes included in the prompt (0 = no limit)
}

// Client classifies messages through an OpenAI-compatible endpoint.
type Client struct {
	client    *openai.Client
	endpoint  string
	model     string
	bodyLimit int
	logger    *zap.Logger
}

// NewClient creates a new OpenAI-compatible classification client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		bodyLimit: cfg.BodyLimit,
		logger:    logger.Named("llm"),
	}, nil
}

// ClassifyMessage implements Classifier.
// Temperature is pinned to zero: classification should be as deterministic as
// the model allows.
func (c *Client) ClassifyMessage(ctx context.Context, req *ClassifyRequest) (*ClassifyResult, error) {
	prompt := BuildClassifyPrompt(req, c.bodyLimit)

	c.logger.Debug("Classification request",
		zap.String("model", c.model),
		zap.String("sender", req.Sender),
		zap.Int("projects", len(req.Projects)),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("Classification request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, ClassifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeEmpty, "no choices in response", true, nil)
	}

	raw := resp.Choices[0].Message.Content
	codes := ParseProjectCodes(raw, req.Projects)

	c.logger.Info("Classification completed",
		zap.String("sender", req.Sender),
		zap.Int("codes", len(codes)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &ClassifyResult{
		ProjectCodes:     codes,
		Raw:              raw,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}
