package phases

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/vellum/ai"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/fsutil"
	"github.com/poiesic/vellum/pipeline"
	"github.com/poiesic/vellum/storage"
)

// maxClassifyBody bounds the body text sent with the title and tags.
const maxClassifyBody = 3000

// OrganizeOptions configures the Organize phase.
type OrganizeOptions struct {
	// InputPath is the directory of markdown documents to organize.
	InputPath string

	// OutputDir receives one folder per category.
	OutputDir string

	// Classifier picks a category per document. Required.
	Classifier ai.Classifier

	// Checkpoints stores chosen categories. Required.
	Checkpoints storage.CheckpointRepository

	// Documents, when set, has the category of indexed documents updated.
	Documents storage.DocumentRepository

	RetryAttempts int
	RetryDelay    time.Duration
}

// Organize implements pipeline.Hooks for the organize phase.
type Organize struct {
	opts   OrganizeOptions
	retry  retryPolicy
	logger *slog.Logger
}

var _ pipeline.Hooks = (*Organize)(nil)

// NewOrganize validates opts and builds the organize hooks.
func NewOrganize(opts OrganizeOptions) (*Organize, error) {
	switch {
	case opts.Classifier == nil:
		return nil, fmt.Errorf("%w: classifier", ErrServiceRequired)
	case opts.Checkpoints == nil:
		return nil, fmt.Errorf("%w: checkpoints", ErrRepositoryRequired)
	case opts.OutputDir == "":
		return nil, ErrOutputDirRequired
	}
	return &Organize{
		opts:   opts,
		retry:  newRetryPolicy(opts.RetryAttempts, opts.RetryDelay),
		logger: slog.Default().With("component", "organize"),
	}, nil
}

// Extract yields every markdown document under the input directory.
// Documents are never chunked.
func (o *Organize) Extract(ctx context.Context, sc *pipeline.StageContext) iter.Seq2[*core.ProcessingItem, error] {
	return sc.Process(ctx, o.discover(ctx), validateStep, pipeline.WriteDumpStep)
}

func (o *Organize) discover(ctx context.Context) iter.Seq2[*core.ProcessingItem, error] {
	return func(yield func(*core.ProcessingItem, error) bool) {
		root := o.opts.InputPath
		if root == "" {
			yield(nil, ErrInputRequired)
			return
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() && filepath.Clean(path) == filepath.Clean(o.opts.OutputDir) {
				return filepath.SkipDir
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			item := core.NewProcessingItem(filepath.ToSlash(rel), content)
			if fm, _, err := ParseMarkdown(item.Content); err == nil {
				item.Metadata.Title = fm.Title
			}
			if !yield(item, nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Transform classifies each document, restoring checkpointed categories
// instead when one exists.
func (o *Organize) Transform(ctx context.Context, sc *pipeline.StageContext, in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	return sc.Process(ctx, in,
		restoreCheckpointStep(o.opts.Checkpoints),
		pipeline.StepDef{Name: "classify", Run: o.classify},
		saveCheckpointStep(o.opts.Checkpoints),
	)
}

func (o *Organize) classify(ctx context.Context, _ *pipeline.StageContext, item *core.ProcessingItem) error {
	fm, body, err := ParseMarkdown(item.Content)
	if err != nil && !errors.Is(err, ErrNoFrontMatter) {
		return err
	}

	var category string
	err = o.retry.do(ctx, func() error {
		var callErr error
		category, callErr = o.opts.Classifier.Classify(ctx, classifyText(fm, body))
		return callErr
	})
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	if fm.Title == "" {
		fm.Title = strings.TrimSuffix(filepath.Base(item.SourcePath), filepath.Ext(item.SourcePath))
	}
	fm.Category = category
	doc, err := RenderMarkdown(fm, body)
	if err != nil {
		return err
	}
	item.TransformedContent = string(doc)
	item.Metadata.Category = category
	item.Metadata.Title = fm.Title
	return nil
}

func classifyText(fm FrontMatter, body string) string {
	var b strings.Builder
	if fm.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", fm.Title)
	}
	if len(fm.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(fm.Tags, ", "))
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(truncateUTF8(body, maxClassifyBody))
	return b.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Load files each document into its category folder.
func (o *Organize) Load(ctx context.Context, sc *pipeline.StageContext, in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	steps := []pipeline.StepDef{
		loadResumeStep,
		{Name: "file_document", Run: o.fileDocument},
	}
	if o.opts.Documents != nil {
		steps = append(steps, pipeline.StepDef{Name: "index_category", Run: o.indexCategory})
	}
	return sc.Process(ctx, in, steps...)
}

// DocumentPath is where item is filed: its path relative to the input
// directory, under its category folder.
func (o *Organize) DocumentPath(item *core.ProcessingItem) string {
	rel := filepath.FromSlash(item.SourcePath)
	if !filepath.IsLocal(rel) {
		rel = filepath.Base(rel)
	}
	return filepath.Join(o.opts.OutputDir, item.Metadata.Category, rel)
}

func (o *Organize) fileDocument(_ context.Context, _ *pipeline.StageContext, item *core.ProcessingItem) error {
	if item.Metadata.Category == "" || item.TransformedContent == "" {
		return fmt.Errorf("%w: no category", pipeline.ErrMissingStageData)
	}
	path := o.DocumentPath(item)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, []byte(item.TransformedContent), 0o644); err != nil {
		return err
	}
	item.OutputPath = path
	return nil
}

// indexCategory records the category on documents produced by an import.
// Documents unknown to the repository are left alone.
func (o *Organize) indexCategory(ctx context.Context, _ *pipeline.StageContext, item *core.ProcessingItem) error {
	fm, _, err := ParseMarkdown(item.TransformedContent)
	if err != nil || !fm.ItemID.Valid() {
		return nil
	}
	doc, err := o.opts.Documents.GetDocument(ctx, fm.ItemID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if doc.Category == item.Metadata.Category {
		return nil
	}
	doc.Category = item.Metadata.Category
	return o.opts.Documents.PutDocuments(ctx, doc)
}
