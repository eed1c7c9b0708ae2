package mock

import "github.com/poiesic/vellum/ai"

// MockProvider is a test double for ai.AIProvider.
type MockProvider struct {
	extractor  *MockKnowledgeExtractor
	classifier *MockClassifier
	closed     bool
}

// NewMockProvider creates a new mock provider with default mock services.
// Use GetMockExtractor()/GetMockClassifier() to reach the concrete types.
func NewMockProvider() *MockProvider {
	return NewMockProviderWithServices(NewMockKnowledgeExtractor(), NewMockClassifier())
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
func NewMockProviderWithServices(extractor *MockKnowledgeExtractor, classifier *MockClassifier) *MockProvider {
	return &MockProvider{
		extractor:  extractor,
		classifier: classifier,
	}
}

// KnowledgeExtractor returns the mock knowledge extractor.
func (p *MockProvider) KnowledgeExtractor() ai.KnowledgeExtractor {
	return p.extractor
}

// Classifier returns the mock classifier.
func (p *MockProvider) Classifier() ai.Classifier {
	return p.classifier
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockExtractor returns the underlying mock extractor for test assertions.
func (p *MockProvider) GetMockExtractor() *MockKnowledgeExtractor {
	return p.extractor
}

// GetMockClassifier returns the underlying mock classifier for test assertions.
func (p *MockProvider) GetMockClassifier() *MockClassifier {
	return p.classifier
}
