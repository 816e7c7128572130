package llm

import (
	"context"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/atelier-ops/link-engine/pkg/logging"
)

// AnthropicClient classifies messages through the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	bodyLimit int
	logger    *zap.Logger
}

// NewAnthropicClient creates a classification client backed by Anthropic.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, NewError(ErrorTypeModel, "model is required", false, nil)
	}
	if cfg.APIKey == "" {
		return nil, NewError(ErrorTypeAuth, "API key is required", false, nil)
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(cfg.APIKey),
		model:     cfg.Model,
		bodyLimit: cfg.BodyLimit,
		logger:    logger.Named("llm"),
	}, nil
}

// ClassifyMessage implements Classifier.
func (c *AnthropicClient) ClassifyMessage(ctx context.Context, req *ClassifyRequest) (*ClassifyResult, error) {
	prompt := classifySystemMessage + "\n\n" + BuildClassifyPrompt(req, c.bodyLimit)

	c.logger.Debug("Classification request",
		zap.String("model", c.model),
		zap.String("sender", req.Sender),
		zap.Int("projects", len(req.Projects)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: 256,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("Classification request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, ClassifyError(err)
	}

	raw := ""
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			raw = *block.Text
			break
		}
	}
	if raw == "" {
		return nil, NewError(ErrorTypeEmpty, "no text content in response", true, nil)
	}

	codes := ParseProjectCodes(raw, req.Projects)

	c.logger.Info("Classification completed",
		zap.String("sender", req.Sender),
		zap.Int("codes", len(codes)),
		zap.Duration("elapsed", time.Since(start)))

	return &ClassifyResult{
		ProjectCodes:     codes,
		Raw:              raw,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the API endpoint identifier.
func (c *AnthropicClient) GetEndpoint() string {
	return "anthropic"
}
