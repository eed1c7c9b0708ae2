package openai

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/vellum/ai"
	"github.com/tmc/langchaingo/llms"
)

// maxClassifyChars bounds how much of a document is sent for classification.
const maxClassifyChars = 4000

// Classifier implements ai.Classifier using an OpenAI-compatible chat API.
type Classifier struct {
	client     llms.Model
	categories []string
	attempts   int
	logger     *slog.Logger
}

func newClassifier(config *ai.Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := newClient(config.ClassifierHost, config.APIKey, config.ClassifierModel)
	if err != nil {
		return nil, err
	}
	return newClassifierWithClient(client, config.Categories, config.ParseAttempts), nil
}

func newClassifierWithClient(client llms.Model, categories []string, attempts int) *Classifier {
	return &Classifier{
		client:     client,
		categories: slices.Clone(categories),
		attempts:   max(attempts, 1),
		logger:     slog.Default().With("component", "openai-classifier"),
	}
}

// NewClassifier creates a document classifier from config.
func NewClassifier(config *ai.Config) (ai.Classifier, error) {
	return newClassifier(config)
}

// Classify asks the model for the best matching category. Answers outside the
// configured categories are retried, then reported as ai.ErrUnknownCategory.
func (c *Classifier) Classify(ctx context.Context, text string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, classifierSystemPrompt(c.categories)),
		llms.TextParts(llms.ChatMessageTypeHuman, truncateRunes(text, maxClassifyChars)),
	}

	var answer string
	for attempt := 1; attempt <= c.attempts; attempt++ {
		response, err := c.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithMaxTokens(16))
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return "", err
		}
		if len(response.Choices) < 1 {
			return "", ai.ErrEmptyResponse
		}

		answer = cleanResponse(response.Choices[0].Content)
		if category, ok := ai.MatchCategory(answer, c.categories); ok {
			c.logger.Debug("classified document", "category", category, "attempt", attempt)
			return category, nil
		}
		c.logger.Warn("classifier answered outside category list", "attempt", attempt, "answer", answer)
	}
	return "", fmt.Errorf("%w: %q", ai.ErrUnknownCategory, answer)
}
