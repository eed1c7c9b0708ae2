package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLedger(t *testing.T, sc *StageContext) []ledger.Record {
	t.Helper()
	var recs []ledger.Record
	for rec := range ledger.Records(sc.Ledger.Path(), nil) {
		recs = append(recs, rec)
	}
	return recs
}

func TestStage_ProcessRecordsOneOutcomePerItem(t *testing.T) {
	stage := NewStage(core.StageTransform, nil)
	sc := testStageContext(t, stage)
	items := testItems("a.json", "b.json", "c.json")

	steps := []StepDef{
		{Name: "first", Run: func(context.Context, *StageContext, *core.ProcessingItem) error { return nil }},
		{Name: "second", Run: func(_ context.Context, _ *StageContext, item *core.ProcessingItem) error {
			if item.SourcePath == "b.json" {
				return errors.New("bad item")
			}
			item.TransformedContent = "ok"
			return nil
		}},
	}

	out, err := drain(stage.Process(context.Background(), sc, source(items), steps...))
	require.NoError(t, err)
	require.Len(t, out, 3, "item failures must not stop the stream")

	assert.Equal(t, core.ItemProcessing, out[0].Status)
	assert.Equal(t, core.ItemFailed, out[1].Status)
	assert.Equal(t, "second", out[1].CurrentStep)
	assert.Equal(t, "bad item", out[1].Error)

	recs := readLedger(t, sc)
	require.Len(t, recs, 3)
	assert.Equal(t, ledger.StatusSuccess, recs[0].Status)
	assert.Equal(t, "second", recs[0].Step)
	require.NotNil(t, recs[0].AfterChars)
	assert.Equal(t, 2, *recs[0].AfterChars)
	assert.Equal(t, ledger.StatusFailed, recs[1].Status)
	assert.Equal(t, "bad item", recs[1].Error)

	assert.Equal(t, 3, stage.Items)
	assert.Equal(t, 1, stage.ItemsFailed)
	assert.Equal(t, StageCompleted, stage.Status)
	require.Len(t, stage.Steps, 2)
	assert.Equal(t, StepCompleted, stage.Steps[1].Status)
	assert.Equal(t, 2, stage.Steps[1].ItemsProcessed)
	assert.Equal(t, 1, stage.Steps[1].ItemsFailed)
}

func TestStage_SkipSignal(t *testing.T) {
	stage := NewStage(core.StageTransform, nil)
	sc := testStageContext(t, stage)
	items := testItems("a.json", "b.json")
	sc.Completed = ledger.NewCompletedItemsCache(core.StageTransform, items[0].ItemID)

	ran := 0
	out, err := drain(stage.Process(context.Background(), sc, source(items),
		StepDef{Name: "resume", Run: func(_ context.Context, sc *StageContext, item *core.ProcessingItem) error {
			if sc.IsCompleted(item) {
				return Skip("completed_in_prior_run")
			}
			return nil
		}},
		StepDef{Name: "work", Run: func(context.Context, *StageContext, *core.ProcessingItem) error {
			ran++
			return nil
		}},
	))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, ran, "skipped items run no further steps")
	assert.Equal(t, core.ItemProcessing, out[0].Status)

	recs := readLedger(t, sc)
	require.Len(t, recs, 2)
	assert.Equal(t, ledger.StatusSkipped, recs[0].Status)
	assert.Equal(t, "completed_in_prior_run", recs[0].SkippedReason)
	assert.Equal(t, ledger.StatusSuccess, recs[1].Status)
	assert.Equal(t, 1, stage.ItemsSkipped)
}

func TestStage_LoadCompletesItems(t *testing.T) {
	stage := NewStage(core.StageLoad, nil)
	sc := testStageContext(t, stage)

	out, err := drain(stage.Process(context.Background(), sc, source(testItems("a.json")),
		StepDef{Name: "write_document", Run: func(context.Context, *StageContext, *core.ProcessingItem) error { return nil }},
	))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, core.ItemCompleted, out[0].Status)
}

func TestStage_PassesThroughTerminalItems(t *testing.T) {
	stage := NewStage(core.StageLoad, nil)
	sc := testStageContext(t, stage)
	items := testItems("failed.json", "filtered.json")
	items[0].Fail("extract_knowledge", errors.New("earlier failure"))
	items[1].Filter("duplicate")

	calls := 0
	out, err := drain(stage.Process(context.Background(), sc, source(items),
		StepDef{Name: "write_document", Run: func(context.Context, *StageContext, *core.ProcessingItem) error {
			calls++
			return nil
		}},
	))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Zero(t, calls)
	assert.Equal(t, core.ItemFailed, out[0].Status)
	assert.Equal(t, core.ItemFiltered, out[1].Status)
	assert.Empty(t, readLedger(t, sc))
}

func TestStage_StreamErrorIsCrash(t *testing.T) {
	stage := NewStage(core.StageTransform, nil)
	sc := testStageContext(t, stage)
	boom := errors.New("disk gone")

	in := func(yield func(*core.ProcessingItem, error) bool) {
		if !yield(testItems("a.json")[0], nil) {
			return
		}
		yield(nil, boom)
	}

	out, err := drain(stage.Process(context.Background(), sc, in,
		StepDef{Name: "noop", Run: func(context.Context, *StageContext, *core.ProcessingItem) error { return nil }},
	))
	require.Error(t, err)
	assert.Len(t, out, 1)
	assert.ErrorIs(t, err, boom)

	var crash *CrashError
	require.ErrorAs(t, err, &crash)
	assert.Equal(t, core.StageTransform, crash.Stage)
	assert.Equal(t, StageRunning, stage.Status, "a crashed stage is not finalized")
}

func TestStage_CancellationIsCrash(t *testing.T) {
	stage := NewStage(core.StageTransform, nil)
	sc := testStageContext(t, stage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	out, err := drain(stage.Process(ctx, sc, source(testItems("a.json", "b.json", "c.json")),
		StepDef{Name: "call_model", Run: func(ctx context.Context, _ *StageContext, item *core.ProcessingItem) error {
			calls++
			if item.SourcePath == "b.json" {
				cancel()
				return ctx.Err()
			}
			return nil
		}},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var crash *CrashError
	require.ErrorAs(t, err, &crash)
	assert.Equal(t, core.StageTransform, crash.Stage)

	assert.Len(t, out, 1)
	assert.Equal(t, 2, calls, "no item runs after cancellation")
	assert.Zero(t, stage.ItemsFailed)
	recs := readLedger(t, sc)
	require.Len(t, recs, 1, "the interrupted item leaves no ledger record")
	assert.Equal(t, ledger.StatusSuccess, recs[0].Status)
}

func TestStage_CancelledBeforeFirstItem(t *testing.T) {
	stage := NewStage(core.StageLoad, nil)
	sc := testStageContext(t, stage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := 0
	out, err := drain(stage.Process(ctx, sc, source(testItems("a.json")),
		StepDef{Name: "write", Run: func(context.Context, *StageContext, *core.ProcessingItem) error {
			ran++
			return nil
		}},
	))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ran)
	assert.Empty(t, out)
	assert.Empty(t, readLedger(t, sc))
}

func TestStage_StatusDerivation(t *testing.T) {
	tests := []struct {
		name string
		fail func(path string, step string) bool
		want StageStatus
	}{
		{
			name: "all steps completed",
			fail: func(string, string) bool { return false },
			want: StageCompleted,
		},
		{
			name: "every item fails the first step",
			fail: func(_ string, step string) bool { return step == "one" },
			want: StageFailed,
		},
		{
			name: "second step fails for every item",
			fail: func(_ string, step string) bool { return step == "two" },
			want: StagePartial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := NewStage(core.StageTransform, nil)
			sc := testStageContext(t, stage)
			run := func(name string) StepDef {
				return StepDef{Name: name, Run: func(_ context.Context, _ *StageContext, item *core.ProcessingItem) error {
					if tt.fail(item.SourcePath, name) {
						return errors.New("fail")
					}
					return nil
				}}
			}
			_, err := drain(stage.Process(context.Background(), sc, source(testItems("a.json", "b.json")), run("one"), run("two")))
			require.NoError(t, err)
			assert.Equal(t, tt.want, stage.Status)
		})
	}
}

func TestStage_EmptyInput(t *testing.T) {
	stage := NewStage(core.StageLoad, nil)
	sc := testStageContext(t, stage)

	out, err := drain(stage.Process(context.Background(), sc, source(nil),
		StepDef{Name: "write_document", Run: func(context.Context, *StageContext, *core.ProcessingItem) error { return nil }},
	))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, StageCompleted, stage.Status)
	assert.Equal(t, StepSkipped, stage.Steps[0].Status)
}

func TestStage_MarkSkipped(t *testing.T) {
	stage := NewStage(core.StageExtract, nil)
	stage.tracker("validate")
	stage.MarkSkipped("restored from extract output")
	stage.Finish()

	assert.Equal(t, StageSkipped, stage.Status)
	assert.Equal(t, StepSkipped, stage.Steps[0].Status)
	assert.Equal(t, "Skipped: restored from extract output", stage.Steps[0].Error)
}
