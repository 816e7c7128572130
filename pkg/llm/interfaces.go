// Package llm provides the email-to-project classification client.
package llm

import (
	"context"

	"github.com/atelier-ops/link-engine/pkg/models"
)

// ClassifyRequest carries the message metadata and the enumerated project list
// presented to the model.
type ClassifyRequest struct {
	Sender  string
	Subject string
	Body    string

	// Projects is the full known project list. The model may only answer with
	// codes from this list; anything else is discarded during parsing.
	Projects []models.Project
}

// ClassifyResult is the parsed model response.
type ClassifyResult struct {
	// ProjectCodes are the validated codes the model returned. Empty means the
	// model answered NONE (or nothing parseable, which is treated the same).
	ProjectCodes []string

	// Raw is the unparsed model output, kept as evidence.
	Raw string

	PromptTokens     int
	CompletionTokens int
}

// Classifier is the interface the linker depends on.
// Use this for dependency injection to enable mocking in tests.
type Classifier interface {
	// ClassifyMessage asks the model which projects a message concerns.
	ClassifyMessage(ctx context.Context, req *ClassifyRequest) (*ClassifyResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure implementations satisfy Classifier at compile time.
var (
	_ Classifier = (*Client)(nil)
	_ Classifier = (*AnthropicClient)(nil)
	_ Classifier = (*MockClassifier)(nil)
)
