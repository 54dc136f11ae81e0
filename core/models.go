package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	return IDFromBytes([]byte(text))
}

// IDFromBytes generates a deterministic ID from raw bytes using BLAKE2b hashing.
// Used to fingerprint uploaded documents.
func IDFromBytes(data []byte) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// RuleIDFromContent derives a stable rule identifier for a guideline the
// extractor returned without one.
func RuleIDFromContent(docID, section, text string) string {
	return IDFromContent(docID + "|" + section + "|" + text).String()
}

// Portfolio identifies the investment entity a document belongs to.
type Portfolio struct {
	ID        string    `json:"portfolio_id"`
	Name      string    `json:"portfolio_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is one ingested policy document. Each document belongs to exactly one portfolio.
type Document struct {
	ID          string    `json:"doc_id"`
	PortfolioID string    `json:"portfolio_id"`
	Name        string    `json:"doc_name"`
	Date        string    `json:"doc_date,omitempty"` // YYYY-MM-DD
	Digest      string    `json:"digest_text,omitempty"`
	SourceName  string    `json:"source_name,omitempty"` // Declared file name at upload
	Fingerprint ID        `json:"fingerprint,omitempty"` // BLAKE2b of the uploaded bytes
	CreatedAt   time.Time `json:"created_at"`
}

// Guideline is one atomic, provenance-tagged rule extracted from a document.
// (PortfolioID, RuleID) is unique across the store.
//
// Nullable columns are represented by zero values: empty strings for
// Subsection and Provenance, 0 for Page, and an empty Embedding until the
// backfill stamps one.
type Guideline struct {
	PortfolioID    string          `json:"portfolio_id"`
	RuleID         string          `json:"rule_id"`
	DocID          string          `json:"doc_id"`
	Part           string          `json:"part,omitempty"`
	Section        string          `json:"section,omitempty"`
	Subsection     string          `json:"subsection,omitempty"`
	Text           string          `json:"text"`
	Page           int             `json:"page,omitempty"`
	Provenance     string          `json:"provenance,omitempty"`
	StructuredData json.RawMessage `json:"structured_data,omitempty"`
	Embedding      []float32       `json:"embedding,omitempty"`
}

// HasEmbedding reports whether the backfill has stamped a vector on the guideline.
func (g *Guideline) HasEmbedding() bool {
	return len(g.Embedding) > 0
}

// ExtractionResult is the structured output of the document-understanding step.
type ExtractionResult struct {
	IsValid           bool         `json:"is_valid"`
	ValidationSummary string       `json:"validation_summary"`
	Portfolio         Portfolio    `json:"portfolio"`
	Document          Document     `json:"document"`
	Guidelines        []*Guideline `json:"guidelines"`
	Digest            string       `json:"human_readable_digest,omitempty"`
}

// PersistResult reports the outcome of a transactional replace for one portfolio.
type PersistResult struct {
	PortfolioID        string `json:"portfolio_id"`
	DocID              string `json:"doc_id"`
	GuidelinesSaved    int    `json:"guidelines_saved"`
	PortfolioCreated   bool   `json:"portfolio_created"`   // false when a portfolio row with the same id existed
	DocumentCreated    bool   `json:"document_created"`    // false when a document row with the same id existed
	WasReingested      bool   `json:"was_reingested"`      // true when prior data for the portfolio was replaced
	PreviousGuidelines int    `json:"previous_guidelines"` // guidelines deleted by the replace
}

// SaveResult reports per-entity success counts for a tolerant batch save.
type SaveResult struct {
	PortfolioSaved   bool
	DocumentSaved    bool
	GuidelinesSaved  int
	GuidelinesFailed int
	Errors           []string
}

// BackfillResult reports the outcome of an embedding backfill run.
type BackfillResult struct {
	Candidates     int      `json:"candidates"`                 // guidelines without an embedding when the run started
	Embedded       int      `json:"embedded"`                   // guidelines that received a vector
	Failed         int      `json:"failed"`                     // guidelines in skipped batches
	SkippedRuleIDs []string `json:"skipped_rule_ids,omitempty"` // portfolio_id/rule_id of guidelines in skipped batches
}

// EmbeddingUpdate assigns a vector to one guideline. When Text is set the
// vector is only stored if the guideline still has that text and no
// embedding, so a re-ingest that lands while the vector is computed is not
// stamped with the old text's vector.
type EmbeddingUpdate struct {
	PortfolioID string
	RuleID      string
	Text        string
	Vector      []float32
}

// Matches reports whether u may be written onto g.
func (u EmbeddingUpdate) Matches(g *Guideline) bool {
	if u.Text == "" {
		return true
	}
	return g.Text == u.Text && !g.HasEmbedding()
}

// Plan is the structured output of the query planner.
type Plan struct {
	SearchQuery        string `json:"search_query"`
	SummaryInstruction string `json:"summary_instruction"`
	TopK               int    `json:"top_k"`
}

// SearchResult is a guideline joined to its portfolio at query time.
// Similarity is nil for results of a non-semantic text search.
type SearchResult struct {
	Rank          int      `json:"rank"`
	Similarity    *float32 `json:"similarity,omitempty"`
	PortfolioID   string   `json:"portfolio_id"`
	PortfolioName string   `json:"portfolio_name"`
	RuleID        string   `json:"rule_id"`
	DocID         string   `json:"doc_id"`
	Text          string   `json:"guideline_text"`
	Provenance    string   `json:"provenance,omitempty"`
	Page          int      `json:"page,omitempty"`
}

// Turn is one (query, response) exchange of a conversation.
type Turn struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}
