package phases

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/vellum/ai"
	"github.com/poiesic/vellum/chunking"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/fsutil"
	"github.com/poiesic/vellum/pipeline"
	"github.com/poiesic/vellum/providers"
	"github.com/poiesic/vellum/storage"
)

// ImportOptions configures the Import phase.
type ImportOptions struct {
	// InputPath is the export file or directory handed to the provider.
	InputPath string

	// OutputDir receives one markdown document per item.
	OutputDir string

	// Provider discovers and parses the export. Required.
	Provider providers.Extractor

	// Knowledge summarizes each conversation. Required.
	Knowledge ai.KnowledgeExtractor

	// Documents indexes written documents. Required.
	Documents storage.DocumentRepository

	// Checkpoints stores Transform output. Required.
	Checkpoints storage.CheckpointRepository

	// ChunkOptions are passed to chunking.NewChunker after the provider's
	// chunk formatter.
	ChunkOptions []chunking.Option

	// Targets restricts Extract to these source paths. Empty means all.
	Targets []string

	// RetryAttempts and RetryDelay control backoff around model calls.
	RetryAttempts int
	RetryDelay    time.Duration
}

// Import implements pipeline.Hooks for the import phase.
type Import struct {
	opts    ImportOptions
	chunker *chunking.Chunker
	retry   retryPolicy
	targets map[string]bool

	// parseErrs holds per-item chunking failures until the validate step
	// reports them.
	parseErrs map[core.FileID]error
	logger    *slog.Logger
}

var _ pipeline.Hooks = (*Import)(nil)

// NewImport validates opts and builds the import hooks.
func NewImport(opts ImportOptions) (*Import, error) {
	switch {
	case opts.Provider == nil:
		return nil, ErrProviderRequired
	case opts.Knowledge == nil:
		return nil, fmt.Errorf("%w: knowledge extractor", ErrServiceRequired)
	case opts.Documents == nil:
		return nil, fmt.Errorf("%w: documents", ErrRepositoryRequired)
	case opts.Checkpoints == nil:
		return nil, fmt.Errorf("%w: checkpoints", ErrRepositoryRequired)
	case opts.OutputDir == "":
		return nil, ErrOutputDirRequired
	}

	chunkOpts := append([]chunking.Option{chunking.WithFormatter(opts.Provider.FormatChunk)}, opts.ChunkOptions...)
	chunker, err := chunking.NewChunker(chunkOpts...)
	if err != nil {
		return nil, err
	}

	var targets map[string]bool
	if len(opts.Targets) > 0 {
		targets = make(map[string]bool, len(opts.Targets))
		for _, t := range opts.Targets {
			targets[filepath.ToSlash(t)] = true
		}
	}

	return &Import{
		opts:      opts,
		chunker:   chunker,
		retry:     newRetryPolicy(opts.RetryAttempts, opts.RetryDelay),
		targets:   targets,
		parseErrs: make(map[core.FileID]error),
		logger:    slog.Default().With("component", "import", "provider", opts.Provider.Name()),
	}, nil
}

// Extract discovers raw items, splits oversized conversations and dumps
// every item.
func (im *Import) Extract(ctx context.Context, sc *pipeline.StageContext) iter.Seq2[*core.ProcessingItem, error] {
	if im.opts.InputPath == "" {
		return func(yield func(*core.ProcessingItem, error) bool) {
			yield(nil, ErrInputRequired)
		}
	}
	raw := im.opts.Provider.DiscoverRawItems(ctx, im.opts.InputPath)
	return sc.Process(ctx, im.chunked(im.targeted(raw)),
		pipeline.StepDef{Name: "validate", Run: im.validate},
		pipeline.WriteDumpStep,
	)
}

func (im *Import) targeted(in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	if im.targets == nil {
		return in
	}
	return func(yield func(*core.ProcessingItem, error) bool) {
		for item, err := range in {
			if err == nil && !im.targets[item.SourcePath] {
				continue
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

// chunked expands each raw item into its chunks. Items that cannot be parsed
// pass through whole so validate can fail them individually.
func (im *Import) chunked(in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	return func(yield func(*core.ProcessingItem, error) bool) {
		for item, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, out := range im.split(item) {
				if !yield(out, nil) {
					return
				}
			}
		}
	}
}

func (im *Import) split(item *core.ProcessingItem) []*core.ProcessingItem {
	conv, err := im.opts.Provider.BuildConversationForChunking(item)
	if err != nil {
		im.parseErrs[item.ItemID] = err
		return []*core.ProcessingItem{item}
	}
	if conv == nil {
		return []*core.ProcessingItem{item}
	}
	chunks, err := im.chunker.Split(item, conv)
	if err != nil {
		im.parseErrs[item.ItemID] = err
		return []*core.ProcessingItem{item}
	}
	if len(chunks) > 1 || chunks[0].IsChunked() {
		im.logger.Debug("conversation chunked", "source", item.SourcePath, "chunks", len(chunks))
	}
	return chunks
}

func (im *Import) validate(_ context.Context, _ *pipeline.StageContext, item *core.ProcessingItem) error {
	if err, ok := im.parseErrs[item.ItemID]; ok {
		delete(im.parseErrs, item.ItemID)
		return err
	}
	return core.ValidateItem(item)
}

// Transform summarizes each item with the knowledge extractor, restoring
// checkpointed output instead when one exists.
func (im *Import) Transform(ctx context.Context, sc *pipeline.StageContext, in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	return sc.Process(ctx, in,
		restoreCheckpointStep(im.opts.Checkpoints),
		pipeline.StepDef{Name: "extract_knowledge", Run: im.extractKnowledge},
		saveCheckpointStep(im.opts.Checkpoints),
	)
}

func (im *Import) extractKnowledge(ctx context.Context, sc *pipeline.StageContext, item *core.ProcessingItem) error {
	text, err := im.promptText(item)
	if err != nil {
		return err
	}

	var k *ai.Knowledge
	err = im.retry.do(ctx, func() error {
		var callErr error
		k, callErr = im.opts.Knowledge.ExtractKnowledge(ctx, text)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("extract knowledge: %w", err)
	}
	if k.Title == "" {
		k.Title = item.Metadata.Title
	}

	fm := FrontMatter{
		Title:   k.Title,
		Summary: k.Summary,
		Tags:    k.Tags,
		Source:  item.SourcePath,
		ItemID:  item.ItemID,
	}
	if item.Chunk != nil {
		index := item.Chunk.Index
		fm.ParentItemID = item.Chunk.ParentItemID
		fm.ChunkIndex = &index
		fm.TotalChunks = item.Chunk.Total
	}
	doc, err := RenderMarkdown(fm, knowledgeBody(k))
	if err != nil {
		return err
	}

	item.TransformedContent = string(doc)
	item.Metadata.Title = k.Title
	if sc.Debug {
		before, after := len(item.Content), len(item.TransformedContent)
		sc.Logger.Debug("knowledge extracted",
			"item_id", item.ItemID,
			"before_chars", before,
			"after_chars", after,
			"diff_ratio", float64(after)/float64(max(before, 1)))
	}
	return nil
}

// promptText renders the item as plain "role: text" blocks for the model.
func (im *Import) promptText(item *core.ProcessingItem) (string, error) {
	conv, err := im.opts.Provider.BuildConversationForChunking(item)
	if err != nil {
		return "", err
	}
	if conv == nil {
		return item.Content, nil
	}
	text, err := chunking.FormatPlain(conv)
	if err != nil {
		return "", err
	}
	if item.Chunk != nil {
		return fmt.Sprintf("(part %d of %d)\n\n%s", item.Chunk.Index+1, item.Chunk.Total, text), nil
	}
	return string(text), nil
}

// Load writes each document to disk and indexes it.
func (im *Import) Load(ctx context.Context, sc *pipeline.StageContext, in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	return sc.Process(ctx, in,
		loadResumeStep,
		pipeline.StepDef{Name: "write_document", Run: im.writeDocument},
		pipeline.StepDef{Name: "index_document", Run: im.indexDocument},
	)
}

// DocumentPath is where the markdown document of item is written.
func (im *Import) DocumentPath(item *core.ProcessingItem) string {
	name := fmt.Sprintf("%s-%s.md", slugify(item.Metadata.Title, 60), item.ItemID)
	return filepath.Join(im.opts.OutputDir, name)
}

func (im *Import) writeDocument(_ context.Context, _ *pipeline.StageContext, item *core.ProcessingItem) error {
	if item.TransformedContent == "" {
		return fmt.Errorf("%w: no transformed content", pipeline.ErrMissingStageData)
	}
	if err := os.MkdirAll(im.opts.OutputDir, 0o755); err != nil {
		return err
	}
	path := im.DocumentPath(item)
	if err := fsutil.WriteFileAtomic(path, []byte(item.TransformedContent), 0o644); err != nil {
		return err
	}
	item.OutputPath = path
	return nil
}

func (im *Import) indexDocument(ctx context.Context, _ *pipeline.StageContext, item *core.ProcessingItem) error {
	fm, body, err := ParseMarkdown(item.TransformedContent)
	if err != nil {
		return err
	}
	doc := &core.Document{
		ItemID:     item.ItemID,
		SourcePath: item.SourcePath,
		Title:      fm.Title,
		Summary:    fm.Summary,
		Tags:       fm.Tags,
		Body:       body,
		Category:   fm.Category,
	}
	if item.Chunk != nil {
		doc.ParentItemID = item.Chunk.ParentItemID
		doc.ChunkIndex = item.Chunk.Index
		doc.TotalChunks = item.Chunk.Total
	}
	return im.opts.Documents.PutDocuments(ctx, doc)
}
