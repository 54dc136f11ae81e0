// Package ingestion drives a document from upload to searchable guidelines.
//
// A Workflow is a small, fixed state machine:
//
//	Extract -> Persist -> StampEmbeddings -> Done
//	        \-> SummarizeOnly ------------/
//
// Extract asks the document-understanding collaborator for an
// ExtractionResult. A result with IsValid false, or an extraction error,
// takes the SummarizeOnly branch and nothing is written. Persist replaces
// everything stored for the portfolio in one transaction. StampEmbeddings
// backfills missing vectors; its failure is reported but never undoes the
// persisted data. Every run ends in Done with a human-readable summary.
//
// Watcher feeds a Workflow (through a handler) from an inbox directory.
package ingestion
