// Package pipeline implements the Phase, Stage and Step state machine.
//
// A phase runs a fixed template: Extract, Transform, Load. Each stage is a
// lazy pull stream of items (iter.Seq2), so one item finishes every step of
// a stage before the next is pulled. Stages append one ledger record per
// item outcome, which lets a later run skip completed work:
//
//   - Extract is restored from committed data-dump files when they exist.
//   - Transform and Load receive a CompletedItemsCache built from the ledger.
//
// Per-item failures are recorded and the stream continues. An error yielded
// by a stream is a crash; the orchestrator returns it as a *CrashError and
// leaves recording the crash to the caller.
//
// Example usage:
//
//	phase, err := pipeline.OpenPhase(sessionDir, core.PhaseImport)
//	if err != nil {
//	    return err
//	}
//	orch := pipeline.NewOrchestrator(pipeline.WithSessionID(id))
//	result, err := orch.Run(ctx, phase, hooks)
package pipeline
