// Package mock provides deterministic test doubles for the ai services.
//
// Each mock has an exported func field that overrides its default behavior,
// a CallCount for assertions and a Reset:
//
//	extractor := mock.NewMockKnowledgeExtractor()
//	extractor.ExtractKnowledgeFunc = func(ctx context.Context, text string) (*ai.Knowledge, error) {
//	    return nil, errors.New("model unavailable")
//	}
//
// # Default Behavior
//
//   - MockKnowledgeExtractor: first line becomes the title, later lines key points
//   - MockClassifier: first category named in the text, else the last category
//   - MockProvider: aggregates one of each
package mock
