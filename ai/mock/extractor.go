package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/vellum/ai"
)

// MockKnowledgeExtractor is a test double for ai.KnowledgeExtractor.
type MockKnowledgeExtractor struct {
	// ExtractKnowledgeFunc overrides the default behavior when set.
	ExtractKnowledgeFunc func(ctx context.Context, text string) (*ai.Knowledge, error)

	mu        sync.Mutex
	callCount int
}

// NewMockKnowledgeExtractor creates a mock extractor with default behavior.
func NewMockKnowledgeExtractor() *MockKnowledgeExtractor {
	return &MockKnowledgeExtractor{}
}

// ExtractKnowledge returns deterministic knowledge derived from text.
// Default behavior: the first non-empty line is the title, the remaining
// lines are key points and the first three words become tags.
func (m *MockKnowledgeExtractor) ExtractKnowledge(ctx context.Context, text string) (*ai.Knowledge, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.ExtractKnowledgeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, ai.ErrEmptyResponse
	}

	k := &ai.Knowledge{
		Title:     lines[0],
		Summary:   "Summary of " + lines[0],
		KeyPoints: lines[1:],
	}
	for i, word := range strings.Fields(lines[0]) {
		if i >= 3 {
			break
		}
		k.Tags = append(k.Tags, strings.Trim(word, ".,!?;:\"'()[]{}"))
	}
	k.Normalize()
	return k, nil
}

// CallCount returns the number of times ExtractKnowledge was called.
func (m *MockKnowledgeExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and custom function.
func (m *MockKnowledgeExtractor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.ExtractKnowledgeFunc = nil
}
