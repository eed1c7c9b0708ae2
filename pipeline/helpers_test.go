package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/ledger"
)

func testItems(paths ...string) []*core.ProcessingItem {
	items := make([]*core.ProcessingItem, len(paths))
	for i, p := range paths {
		items[i] = core.NewProcessingItem(p, []byte("content of "+p))
	}
	return items
}

// source streams fresh copies of items.
func source(items []*core.ProcessingItem) iter.Seq2[*core.ProcessingItem, error] {
	return func(yield func(*core.ProcessingItem, error) bool) {
		for _, item := range items {
			c := *item
			if !yield(&c, nil) {
				return
			}
		}
	}
}

func testStageContext(t *testing.T, stage *Stage) *StageContext {
	t.Helper()
	return &StageContext{
		Phase:     core.PhaseImport,
		Stage:     stage.Type,
		SessionID: "test-session",
		Ledger:    ledger.NewWriter(filepath.Join(t.TempDir(), ledger.FileName), "test-session", core.PhaseImport),
		Logger:    slog.Default(),
		stage:     stage,
	}
}

func drain(seq iter.Seq2[*core.ProcessingItem, error]) ([]*core.ProcessingItem, error) {
	var out []*core.ProcessingItem
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// testHooks is a configurable phase implementation that records the order in
// which stages touch items.
type testHooks struct {
	items []*core.ProcessingItem

	failTransform map[string]bool
	crashAfter    int
	// interrupt, when set, is called by the first transform call, which
	// then returns the context's error.
	interrupt context.CancelFunc

	calls          []string
	extractCalls   int
	transformCalls map[string]int
}

func newTestHooks(items []*core.ProcessingItem) *testHooks {
	return &testHooks{
		items:          items,
		failTransform:  make(map[string]bool),
		transformCalls: make(map[string]int),
	}
}

func (h *testHooks) Extract(ctx context.Context, sc *StageContext) iter.Seq2[*core.ProcessingItem, error] {
	h.extractCalls++
	return sc.Process(ctx, source(h.items),
		StepDef{Name: "validate", Run: func(_ context.Context, _ *StageContext, item *core.ProcessingItem) error {
			h.calls = append(h.calls, "extract:"+item.SourcePath)
			return core.ValidateItem(item)
		}},
		WriteDumpStep,
	)
}

func (h *testHooks) Transform(ctx context.Context, sc *StageContext, in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	seen := 0
	return sc.Process(ctx, h.crashing(in, &seen),
		StepDef{Name: "resume", Run: func(_ context.Context, sc *StageContext, item *core.ProcessingItem) error {
			if sc.IsCompleted(item) {
				return Skip("completed_in_prior_run")
			}
			return nil
		}},
		StepDef{Name: "extract_knowledge", Run: func(ctx context.Context, _ *StageContext, item *core.ProcessingItem) error {
			h.calls = append(h.calls, "transform:"+item.SourcePath)
			h.transformCalls[item.SourcePath]++
			if h.interrupt != nil {
				h.interrupt()
				return ctx.Err()
			}
			if h.failTransform[item.SourcePath] {
				return errors.New("knowledge service unavailable")
			}
			item.TransformedContent = "summary of " + item.SourcePath
			return nil
		}},
	)
}

func (h *testHooks) Load(ctx context.Context, sc *StageContext, in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	return sc.Process(ctx, in,
		StepDef{Name: "resume", Run: func(_ context.Context, sc *StageContext, item *core.ProcessingItem) error {
			if sc.IsCompleted(item) {
				item.Filter("already_loaded")
				return Skip("already_loaded")
			}
			return nil
		}},
		StepDef{Name: "write_document", Run: func(_ context.Context, _ *StageContext, item *core.ProcessingItem) error {
			h.calls = append(h.calls, "load:"+item.SourcePath)
			item.OutputPath = item.SourcePath + ".md"
			return nil
		}},
	)
}

// crashing yields an error instead of the item after crashAfter items when
// crashAfter is positive.
func (h *testHooks) crashing(in iter.Seq2[*core.ProcessingItem, error], seen *int) iter.Seq2[*core.ProcessingItem, error] {
	if h.crashAfter <= 0 {
		return in
	}
	return func(yield func(*core.ProcessingItem, error) bool) {
		for item, err := range in {
			if err == nil {
				if *seen >= h.crashAfter {
					yield(nil, fmt.Errorf("transform hook exploded on %s", item.SourcePath))
					return
				}
				*seen++
			}
			if !yield(item, err) {
				return
			}
		}
	}
}
