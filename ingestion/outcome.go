package ingestion

import (
	"fmt"
	"strings"

	"github.com/poiesic/guidelines/core"
)

// Outcome is everything one workflow run produced.
type Outcome struct {
	Name       string
	Trace      []State // states visited, ending with StateDone
	Extraction *core.ExtractionResult
	ExtractErr error
	Persisted  *core.PersistResult
	PersistErr error
	Backfill   *core.BackfillResult
	StampErr   error
	Summary    string
}

// Succeeded reports whether the document was valid and persisted.
// Embedding failures do not count against success.
func (o *Outcome) Succeeded() bool {
	return o.Extraction != nil && o.Extraction.IsValid && o.PersistErr == nil && o.Persisted != nil
}

// Visited reports whether the run passed through s.
func (o *Outcome) Visited(s State) bool {
	for _, t := range o.Trace {
		if t == s {
			return true
		}
	}
	return false
}

// Result is the ingest entrypoint envelope.
type Result struct {
	IsValid             bool     `json:"is_valid"`
	ValidationSummary   string   `json:"validation_summary"`
	PortfolioID         string   `json:"portfolio_id,omitempty"`
	DocID               string   `json:"doc_id,omitempty"`
	GuidelinesCount     int      `json:"guidelines_count,omitempty"`
	EmbeddingsGenerated int      `json:"embeddings_generated,omitempty"`
	WasReingested       bool     `json:"was_reingested,omitempty"`
	Summary             string   `json:"summary"`
	Error               string   `json:"error,omitempty"`
	Trace               []string `json:"trace"`
}

// Result renders the outcome as the ingest envelope.
func (o *Outcome) Result() Result {
	r := Result{Summary: o.Summary}
	for _, s := range o.Trace {
		r.Trace = append(r.Trace, s.String())
	}
	if o.Extraction != nil {
		r.IsValid = o.Extraction.IsValid
		r.ValidationSummary = o.Extraction.ValidationSummary
	}
	if o.Persisted != nil {
		r.PortfolioID = o.Persisted.PortfolioID
		r.DocID = o.Persisted.DocID
		r.GuidelinesCount = o.Persisted.GuidelinesSaved
		r.WasReingested = o.Persisted.WasReingested
	}
	if o.Backfill != nil {
		r.EmbeddingsGenerated = o.Backfill.Embedded
	}
	if o.PersistErr != nil {
		r.Error = o.PersistErr.Error()
	}
	return r
}

// summarize renders the final narrative. It must produce text for every
// combination of upstream failures.
func summarize(o *Outcome) string {
	validation := ""
	if o.Extraction != nil {
		validation = strings.TrimSpace(o.Extraction.ValidationSummary)
	}

	if o.Extraction == nil || !o.Extraction.IsValid {
		if validation == "" {
			validation = "The document is not a valid investment guideline document."
		}
		return fmt.Sprintf("Failed to ingest '%s'. Reason: %s", o.Name, validation)
	}
	if o.PersistErr != nil {
		return fmt.Sprintf("Failed to ingest '%s'. Reason: %s Saving the guidelines failed and no changes were made: %v",
			o.Name, validation, o.PersistErr)
	}

	var sb strings.Builder
	saved := 0
	if o.Persisted != nil {
		saved = o.Persisted.GuidelinesSaved
	}
	fmt.Fprintf(&sb, "Successfully ingested '%s'.", o.Name)
	if validation != "" {
		sb.WriteString(" ")
		sb.WriteString(validation)
	}
	fmt.Fprintf(&sb, " Found and saved %d guidelines.", saved)

	if o.Persisted != nil && o.Persisted.WasReingested {
		fmt.Fprintf(&sb, " Existing data for portfolio '%s' was replaced (%d previous guidelines removed).",
			o.Persisted.PortfolioID, o.Persisted.PreviousGuidelines)
	}

	switch {
	case o.StampErr != nil:
		fmt.Fprintf(&sb, " Embeddings could not be generated (%v); they will be retried on the next backfill.", o.StampErr)
	case o.Backfill != nil && o.Backfill.Failed > 0:
		fmt.Fprintf(&sb, " Generated %d embeddings; %d guidelines will be retried on the next backfill.",
			o.Backfill.Embedded, o.Backfill.Failed)
	case o.Backfill != nil:
		fmt.Fprintf(&sb, " Generated %d embeddings.", o.Backfill.Embedded)
	}
	return sb.String()
}
