package mock

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/vellum/ai"
)

// MockClassifier is a test double for ai.Classifier.
type MockClassifier struct {
	// ClassifyFunc overrides the default behavior when set.
	ClassifyFunc func(ctx context.Context, text string) (string, error)

	// Categories are matched by the default behavior.
	Categories []string

	mu        sync.Mutex
	callCount int
}

// NewMockClassifier creates a mock classifier over ai.DefaultCategories.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{Categories: slices.Clone(ai.DefaultCategories)}
}

// Classify returns the first category whose name appears in text, or the
// last category when none does.
func (m *MockClassifier) Classify(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.ClassifyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(m.Categories) == 0 {
		return "", ai.ErrUnknownCategory
	}

	lower := strings.ToLower(text)
	for _, c := range m.Categories {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c, nil
		}
	}
	return m.Categories[len(m.Categories)-1], nil
}

// CallCount returns the number of times Classify was called.
func (m *MockClassifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and custom function.
func (m *MockClassifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.ClassifyFunc = nil
}
