package llm

import "context"

// MockClassifier is a configurable mock for testing classification behavior.
// Set the function field to control behavior in tests.
type MockClassifier struct {
	// ClassifyMessageFunc is called when ClassifyMessage is invoked.
	// If nil, returns an empty result (NONE) and nil error.
	ClassifyMessageFunc func(ctx context.Context, req *ClassifyRequest) (*ClassifyResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// ClassifyMessageCalls counts invocations for verification.
	ClassifyMessageCalls int
}

// NewMockClassifier creates a new mock with sensible defaults.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// ClassifyMessage implements Classifier.
func (m *MockClassifier) ClassifyMessage(ctx context.Context, req *ClassifyRequest) (*ClassifyResult, error) {
	m.ClassifyMessageCalls++
	if m.ClassifyMessageFunc != nil {
		return m.ClassifyMessageFunc(ctx, req)
	}
	return &ClassifyResult{Raw: "NONE"}, nil
}

// GetModel implements Classifier.
func (m *MockClassifier) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements Classifier.
func (m *MockClassifier) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// Reset clears call tracking.
func (m *MockClassifier) Reset() {
	m.ClassifyMessageCalls = 0
}
