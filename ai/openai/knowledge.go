package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/vellum/ai"
	"github.com/tmc/langchaingo/llms"
)

// KnowledgeExtractor implements ai.KnowledgeExtractor using an
// OpenAI-compatible chat API in JSON mode.
type KnowledgeExtractor struct {
	client   llms.Model
	attempts int
	logger   *slog.Logger
}

func newKnowledgeExtractor(config *ai.Config) (*KnowledgeExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := newClient(config.KnowledgeHost, config.APIKey, config.KnowledgeModel)
	if err != nil {
		return nil, err
	}
	return newKnowledgeExtractorWithClient(client, config.ParseAttempts), nil
}

func newKnowledgeExtractorWithClient(client llms.Model, attempts int) *KnowledgeExtractor {
	return &KnowledgeExtractor{
		client:   client,
		attempts: max(attempts, 1),
		logger:   slog.Default().With("component", "openai-knowledge"),
	}
}

// NewKnowledgeExtractor creates a knowledge extractor from config.
func NewKnowledgeExtractor(config *ai.Config) (ai.KnowledgeExtractor, error) {
	return newKnowledgeExtractor(config)
}

// ExtractKnowledge sends text to the model and parses the structured reply.
// Malformed JSON is retried up to the configured number of attempts; transport
// errors are returned immediately.
func (e *KnowledgeExtractor) ExtractKnowledge(ctx context.Context, text string) (*ai.Knowledge, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, knowledgeSystemPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return nil, err
		}
		if len(response.Choices) < 1 {
			return nil, ai.ErrEmptyResponse
		}

		var k ai.Knowledge
		if err := decodeJSON(response.Choices[0].Content, &k); err != nil {
			lastErr = err
			e.logger.Warn("error parsing knowledge response", "attempt", attempt, "err", err)
			continue
		}
		k.Normalize()
		if k.Empty() {
			lastErr = ai.ErrEmptyResponse
			e.logger.Warn("knowledge response had no content", "attempt", attempt)
			continue
		}

		e.logger.Debug("extracted knowledge",
			"title", k.Title,
			"key_points", len(k.KeyPoints),
			"tags", len(k.Tags))
		return &k, nil
	}

	e.logger.Error("failed to parse knowledge response after retries", "err", lastErr)
	return nil, fmt.Errorf("%w after %d attempts: %w", ai.ErrMalformedResponse, e.attempts, lastErr)
}
