package phases

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/poiesic/vellum/ai/mock"
	"github.com/poiesic/vellum/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrganize(t *testing.T, r repos, input, output string, classifier *mock.MockClassifier) *Organize {
	t.Helper()
	o, err := NewOrganize(OrganizeOptions{
		InputPath:     input,
		OutputDir:     output,
		Classifier:    classifier,
		Checkpoints:   r.checkpoints,
		Documents:     r.docs,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})
	require.NoError(t, err)
	return o
}

func writeMarkdown(t *testing.T, path string, fm *FrontMatter, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data := []byte(body)
	if fm != nil {
		var err error
		data, err = RenderMarkdown(*fm, body)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestNewOrganize_RequiresCollaborators(t *testing.T) {
	r := newRepos(t)

	_, err := NewOrganize(OrganizeOptions{OutputDir: "x", Checkpoints: r.checkpoints})
	assert.ErrorIs(t, err, ErrServiceRequired)
	_, err = NewOrganize(OrganizeOptions{OutputDir: "x", Classifier: mock.NewMockClassifier()})
	assert.ErrorIs(t, err, ErrRepositoryRequired)
	_, err = NewOrganize(OrganizeOptions{Classifier: mock.NewMockClassifier(), Checkpoints: r.checkpoints})
	assert.ErrorIs(t, err, ErrOutputDirRequired)
}

func TestOrganize_FilesDocumentsByCategory(t *testing.T) {
	input, output := t.TempDir(), t.TempDir()
	r := newRepos(t)
	ctx := context.Background()

	indexed := &core.Document{
		ItemID:     core.GenerateFileID([]byte("x"), "x.json"),
		SourcePath: "x.json",
		Title:      "Paper notes",
	}
	require.NoError(t, r.docs.PutDocuments(ctx, indexed))

	writeMarkdown(t, filepath.Join(input, "paper.md"),
		&FrontMatter{Title: "Paper notes", Tags: []string{"research"}, ItemID: indexed.ItemID},
		"# Paper notes\n\nA summary of a cache paper.")
	writeMarkdown(t, filepath.Join(input, "sub", "plain.md"), nil, "just some text")
	writeMarkdown(t, filepath.Join(input, ".obsidian", "skip.md"), nil, "hidden")
	require.NoError(t, os.WriteFile(filepath.Join(input, "image.png"), []byte{1}, 0o644))

	classifier := mock.NewMockClassifier()
	result := runPhase(t, t.TempDir(), core.PhaseOrganize, newTestOrganize(t, r, input, output, classifier))
	require.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, classifier.CallCount())

	paper, ok := outcomeFor(result, "paper.md")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(output, "research", "paper.md"), paper.OutputPath)

	data, err := os.ReadFile(paper.OutputPath)
	require.NoError(t, err)
	fm, body, err := ParseMarkdown(string(data))
	require.NoError(t, err)
	assert.Equal(t, "research", fm.Category)
	assert.Equal(t, "Paper notes", fm.Title)
	assert.Contains(t, body, "cache paper")

	plain, ok := outcomeFor(result, "sub/plain.md")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(output, "misc", "sub", "plain.md"), plain.OutputPath)
	data, err = os.ReadFile(plain.OutputPath)
	require.NoError(t, err)
	fm, _, err = ParseMarkdown(string(data))
	require.NoError(t, err)
	assert.Equal(t, "plain", fm.Title)

	doc, err := r.docs.GetDocument(ctx, indexed.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "research", doc.Category)
	ids, err := r.docs.GetDocumentsByCategory(ctx, "research")
	require.NoError(t, err)
	assert.Equal(t, []core.FileID{indexed.ItemID}, ids)
}

func TestOrganize_CheckpointsSkipClassifier(t *testing.T) {
	input := t.TempDir()
	r := newRepos(t)
	writeMarkdown(t, filepath.Join(input, "idea.md"), &FrontMatter{Title: "An idea"}, "ideas for later")

	classifier := mock.NewMockClassifier()
	first := runPhase(t, t.TempDir(), core.PhaseOrganize, newTestOrganize(t, r, input, t.TempDir(), classifier))
	require.Equal(t, 1, first.Processed)

	output := t.TempDir()
	second := runPhase(t, t.TempDir(), core.PhaseOrganize, newTestOrganize(t, r, input, output, classifier))
	require.Equal(t, 1, second.Processed)
	assert.Equal(t, 1, classifier.CallCount())
	assert.FileExists(t, filepath.Join(output, "ideas", "idea.md"))
}

func TestOrganize_SkipsOutputInsideInput(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(input, "organized")
	r := newRepos(t)
	writeMarkdown(t, filepath.Join(input, "a.md"), nil, "journal entry")
	writeMarkdown(t, filepath.Join(output, "misc", "old.md"), nil, "already filed")

	result := runPhase(t, t.TempDir(), core.PhaseOrganize, newTestOrganize(t, r, input, output, mock.NewMockClassifier()))
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, "a.md", result.Outcomes[0].SourcePath)
}

func TestOrganize_ClassifierFailureIsPerItem(t *testing.T) {
	input := t.TempDir()
	r := newRepos(t)
	writeMarkdown(t, filepath.Join(input, "a.md"), nil, "journal entry")
	writeMarkdown(t, filepath.Join(input, "b.md"), nil, "boom")

	classifier := mock.NewMockClassifier()
	classifier.ClassifyFunc = func(_ context.Context, text string) (string, error) {
		if text == "boom" {
			return "", assert.AnError
		}
		return "journal", nil
	}

	result := runPhase(t, t.TempDir(), core.PhaseOrganize, newTestOrganize(t, r, input, t.TempDir(), classifier))
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)
	failed, ok := outcomeFor(result, "b.md")
	require.True(t, ok)
	assert.Equal(t, "classify", failed.Step)
}

func TestOrganize_SameNameInDifferentFolders(t *testing.T) {
	input, output := t.TempDir(), t.TempDir()
	writeMarkdown(t, filepath.Join(input, "2024", "notes.md"), nil, "last year")
	writeMarkdown(t, filepath.Join(input, "2025", "notes.md"), nil, "this year")

	result := runPhase(t, t.TempDir(), core.PhaseOrganize, newTestOrganize(t, newRepos(t), input, output, mock.NewMockClassifier()))
	require.Equal(t, 2, result.Processed)

	for dir, body := range map[string]string{"2024": "last year", "2025": "this year"} {
		data, err := os.ReadFile(filepath.Join(output, "misc", dir, "notes.md"))
		require.NoError(t, err)
		assert.Contains(t, string(data), body)
	}
}

func TestClassifyText_TruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", maxClassifyBody-1) + "é" + "tail"
	text := classifyText(FrontMatter{}, body)
	assert.True(t, utf8.ValidString(text))
	assert.Equal(t, strings.Repeat("a", maxClassifyBody-1), text)

	short := "naïve café"
	assert.Equal(t, short, classifyText(FrontMatter{}, short))
	assert.Equal(t, "Title: T\n\nbody", classifyText(FrontMatter{Title: "T"}, "body"))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	assert.Equal(t, "a", truncateUTF8("a日本", 3))
	assert.Equal(t, "a日", truncateUTF8("a日本", 4))
	assert.Equal(t, "", truncateUTF8("日本", 1))
	assert.Equal(t, "short", truncateUTF8("short", 10))
}
