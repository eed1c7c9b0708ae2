// Package openai implements the ai services against OpenAI-compatible chat
// APIs (OpenAI itself, Ollama, LocalAI, vLLM) using langchaingo.
//
//	cfg := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	k, err := provider.KnowledgeExtractor().ExtractKnowledge(ctx, conversationText)
//	category, err := provider.Classifier().Classify(ctx, markdown)
//
// Knowledge responses are requested in JSON mode against a schema reflected
// from ai.Knowledge. Responses that fail to parse are retried up to
// Config.ParseAttempts times.
package openai
