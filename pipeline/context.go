package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/ledger"
)

// StageContext is passed into every stage hook. It carries the run settings,
// the resume cache for the stage, and the ledger.
type StageContext struct {
	Phase     core.PhaseType
	Stage     core.StageType
	SessionID string
	Debug     bool

	// Limit caps the number of extracted items when positive.
	Limit int

	// Completed holds the items that already succeeded at this stage in a
	// previous run. It is nil when resume is disabled.
	Completed *ledger.CompletedItemsCache

	Ledger *ledger.Writer

	// Dump receives extracted items. It is only set for the Extract stage.
	Dump *DumpWriter

	Logger *slog.Logger

	stage *Stage
}

// Process runs steps over in for the stage this context belongs to.
func (sc *StageContext) Process(ctx context.Context, in iter.Seq2[*core.ProcessingItem, error], steps ...StepDef) iter.Seq2[*core.ProcessingItem, error] {
	if sc.stage == nil {
		return failed(ErrMissingStageData)
	}
	return sc.stage.Process(ctx, sc, in, steps...)
}

// LogItem appends one ledger record for item at this context's stage.
func (sc *StageContext) LogItem(item *core.ProcessingItem, step string, status ledger.Status, timing time.Duration) error {
	rec := ledger.NewRecord(item, sc.Stage, step, status, timing)
	if sc.Stage == core.StageTransform && status == ledger.StatusSuccess {
		rec = rec.WithChars(len(item.Content), len(item.TransformedContent))
	}
	return sc.Ledger.Append(rec)
}

// IsCompleted reports whether item already succeeded at this stage.
func (sc *StageContext) IsCompleted(item *core.ProcessingItem) bool {
	return sc.Completed.Contains(item.ItemID)
}

// failed returns a stream that yields err once.
func failed(err error) iter.Seq2[*core.ProcessingItem, error] {
	return func(yield func(*core.ProcessingItem, error) bool) {
		yield(nil, err)
	}
}
