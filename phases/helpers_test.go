package phases

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/vellum/ai"
	"github.com/poiesic/vellum/ai/mock"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/pipeline"
	"github.com/poiesic/vellum/providers/simplified"
	"github.com/poiesic/vellum/storage"
	"github.com/poiesic/vellum/storage/badger"
	"github.com/stretchr/testify/require"
)

type repos struct {
	docs        storage.DocumentRepository
	checkpoints storage.CheckpointRepository
}

func newRepos(t *testing.T) repos {
	t.Helper()
	docs, checkpoints, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return repos{docs: docs, checkpoints: checkpoints}
}

// writeExport writes one simplified conversation per name, each holding a
// single user message of the given text.
func writeExport(t *testing.T, dir string, texts map[string]string) {
	t.Helper()
	for name, text := range texts {
		writeExportConversation(t, filepath.Join(dir, name), simplified.Conversation{
			ConversationID: strings.TrimSuffix(name, ".json"),
			Title:          "Thread " + name,
			Messages: []simplified.Message{
				{Role: "user", Text: text},
			},
		})
	}
}

func writeExportConversation(t *testing.T, path string, conv simplified.Conversation) {
	t.Helper()
	data, err := json.Marshal(conv)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// knowledgeEcho returns an extractor whose documents are titled after the
// first word of the conversation text.
func knowledgeEcho() *mock.MockKnowledgeExtractor {
	m := mock.NewMockKnowledgeExtractor()
	m.ExtractKnowledgeFunc = func(_ context.Context, text string) (*ai.Knowledge, error) {
		words := strings.Fields(strings.TrimPrefix(text, "user: "))
		title := "Empty"
		if len(words) > 0 {
			title = "About " + words[0]
		}
		return &ai.Knowledge{
			Title:     title,
			Summary:   "A conversation.",
			KeyPoints: []string{"point"},
			Tags:      []string{"test"},
		}, nil
	}
	return m
}

func runPhase(t *testing.T, sessionDir string, phaseType core.PhaseType, hooks pipeline.Hooks) *pipeline.RunResult {
	t.Helper()
	phase, err := pipeline.OpenPhase(sessionDir, phaseType)
	require.NoError(t, err)
	result, err := pipeline.NewOrchestrator(pipeline.WithSessionID("test")).Run(context.Background(), phase, hooks)
	require.NoError(t, err)
	return result
}

func outcomeFor(result *pipeline.RunResult, source string) (pipeline.ItemOutcome, bool) {
	for _, o := range result.Outcomes {
		if o.SourcePath == source {
			return o, true
		}
	}
	return pipeline.ItemOutcome{}, false
}
