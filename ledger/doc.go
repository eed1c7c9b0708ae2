// Package ledger implements the append-only stage ledger.
//
// Each line of pipeline_stages.jsonl records the outcome of one item at one
// stage. The ledger is the source of truth for resume decisions: a
// CompletedItemsCache is rebuilt from it at the start of every run, and the
// session summaries are derived from it.
//
// Reading tolerates partial writes. Lines that do not parse or
// lack item_id, status or stage are skipped, never fatal.
package ledger
