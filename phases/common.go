package phases

import (
	"context"
	"errors"
	"time"

	"github.com/poiesic/vellum/ai"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/pipeline"
	"github.com/poiesic/vellum/storage"
)

const (
	// DefaultRetryAttempts is how often a model call is tried per item.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the backoff before the second attempt.
	DefaultRetryDelay = 500 * time.Millisecond
)

// Skip reasons recorded in the ledger.
const (
	ReasonCompletedInPriorRun = "completed_in_prior_run"
	ReasonRestoredCheckpoint  = "restored_from_checkpoint"
	ReasonAlreadyLoaded       = "already_loaded"
)

// retryPolicy wraps model calls in pipeline.RetryWithBackoff.
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

func newRetryPolicy(attempts int, delay time.Duration) retryPolicy {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return retryPolicy{attempts: attempts, delay: delay}
}

// do retries op. Malformed or unmatched model replies were already retried
// by the AI client, so they fail the item at once.
func (p retryPolicy) do(ctx context.Context, op func() error) error {
	return pipeline.RetryWithBackoff(ctx, func() error {
		err := op()
		if errors.Is(err, ai.ErrMalformedResponse) || errors.Is(err, ai.ErrUnknownCategory) {
			return pipeline.Permanent(err)
		}
		return err
	}, p.attempts, p.delay)
}

// restoreCheckpointStep restores Transform output persisted by an earlier
// run and skips the rest of the stage. Items without a checkpoint continue.
func restoreCheckpointStep(repo storage.CheckpointRepository) pipeline.StepDef {
	return pipeline.StepDef{
		Name: "restore_checkpoint",
		Run: func(ctx context.Context, sc *pipeline.StageContext, item *core.ProcessingItem) error {
			cp, err := repo.LoadCheckpoint(ctx, item.ItemID, core.StageTransform)
			if err != nil {
				return err
			}
			completed := sc.IsCompleted(item)
			if cp == nil {
				if completed {
					sc.Logger.Warn("transform completed in a prior run but left no checkpoint",
						"item_id", item.ItemID, "source", item.SourcePath)
				}
				return nil
			}

			item.TransformedContent = cp.TransformedContent
			if cp.Title != "" {
				item.Metadata.Title = cp.Title
			}
			if cp.Category != "" {
				item.Metadata.Category = cp.Category
			}
			if completed {
				return pipeline.Skip(ReasonCompletedInPriorRun)
			}
			return pipeline.Skip(ReasonRestoredCheckpoint)
		},
	}
}

// saveCheckpointStep persists the Transform output of the item.
func saveCheckpointStep(repo storage.CheckpointRepository) pipeline.StepDef {
	return pipeline.StepDef{
		Name: "checkpoint",
		Run: func(ctx context.Context, _ *pipeline.StageContext, item *core.ProcessingItem) error {
			return repo.SaveCheckpoint(ctx, &core.TransformCheckpoint{
				ItemID:             item.ItemID,
				Stage:              core.StageTransform,
				TransformedContent: item.TransformedContent,
				Title:              item.Metadata.Title,
				Category:           item.Metadata.Category,
			})
		},
	}
}

// loadResumeStep filters items the Load stage already finished.
var loadResumeStep = pipeline.StepDef{
	Name: "resume",
	Run: func(_ context.Context, sc *pipeline.StageContext, item *core.ProcessingItem) error {
		if !sc.IsCompleted(item) {
			return nil
		}
		item.Filter(ReasonAlreadyLoaded)
		return pipeline.Skip(ReasonAlreadyLoaded)
	},
}

// validateStep checks the item shape at the end of discovery.
var validateStep = pipeline.StepDef{
	Name: "validate",
	Run: func(_ context.Context, _ *pipeline.StageContext, item *core.ProcessingItem) error {
		return core.ValidateItem(item)
	},
}
