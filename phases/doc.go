// Package phases implements the pipeline hooks for the two fixed phases.
//
// Import turns provider exports into knowledge documents: conversations are
// discovered, chunked and dumped during Extract, summarized by an
// ai.KnowledgeExtractor during Transform, and written as markdown plus a
// DocumentRepository record during Load.
//
// Organize files finished markdown documents into category folders using an
// ai.Classifier.
//
// Both phases checkpoint Transform output in a CheckpointRepository so that
// re-running over the same content never calls a model twice.
package phases
