package guidelines

import (
	"errors"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/ingestion"
	"github.com/poiesic/guidelines/session"
	"github.com/poiesic/guidelines/storage"
)

// Status is the success flag and error every result carries. NotFound
// marks an unknown session or portfolio, as opposed to a failure.
type Status struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	NotFound bool   `json:"not_found,omitempty"`
}

func ok() Status {
	return Status{Success: true}
}

func failed(err error) Status {
	return Status{
		Error:    err.Error(),
		NotFound: errors.Is(err, session.ErrNotFound) || errors.Is(err, storage.ErrNotFound),
	}
}

// IngestResult is the outcome of Ingest. Summary is always set.
type IngestResult struct {
	Success bool `json:"success"`
	ingestion.Result
}

// QueryResult is the outcome of Query and Chat.
type QueryResult struct {
	Status
	Response     string               `json:"response,omitempty"`
	SessionID    string               `json:"session_id,omitempty"`
	Plan         *core.Plan           `json:"plan,omitempty"`
	Results      []*core.SearchResult `json:"results,omitempty"`
	NoResults    bool                 `json:"no_results,omitempty"`
	TextFallback bool                 `json:"text_fallback,omitempty"`
}

// SessionResult is the outcome of CreateSession.
type SessionResult struct {
	Status
	SessionID string `json:"session_id,omitempty"`
	Created   bool   `json:"created,omitempty"`
}

// SessionInfoResult is the outcome of SessionInfo.
type SessionInfoResult struct {
	Status
	Session *session.Session `json:"session,omitempty"`
}

// HistoryResult is the outcome of SessionHistory.
type HistoryResult struct {
	Status
	SessionID    string      `json:"session_id,omitempty"`
	Interactions []core.Turn `json:"interactions,omitempty"`
}

// ContextResult is the outcome of UpdateSessionContext.
type ContextResult struct {
	Status
	Context map[string]any `json:"context,omitempty"`
}

// SessionStatsResult is the outcome of SessionStats.
type SessionStatsResult struct {
	Status
	Stats session.Stats `json:"stats"`
}

// PlanResult is the outcome of PlanQuery.
type PlanResult struct {
	Status
	Plan *core.Plan `json:"plan,omitempty"`
}

// GuidelinesResult is the outcome of SearchGuidelines.
type GuidelinesResult struct {
	Status
	Results []*core.SearchResult `json:"results"`
	Count   int                  `json:"count"`
}

// SummaryResult is the outcome of Summarize.
type SummaryResult struct {
	Status
	Summary string `json:"summary,omitempty"`
}

// ExtractResult is the outcome of ExtractFromDocument. A document the model
// could not read still yields an invalid Extraction.
type ExtractResult struct {
	Status
	Extraction *core.ExtractionResult `json:"extraction,omitempty"`
}

// PersistenceResult is the outcome of Persist.
type PersistenceResult struct {
	Status
	Persisted *core.PersistResult `json:"persisted,omitempty"`
}

// BackfillResult is the outcome of BackfillEmbeddings.
type BackfillResult struct {
	Status
	Backfill *core.BackfillResult `json:"backfill,omitempty"`
}

// DocumentSummary describes one source document of a portfolio.
type DocumentSummary struct {
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	DocDate string `json:"doc_date,omitempty"`
}

// PortfolioSummary describes a portfolio and its documents.
type PortfolioSummary struct {
	PortfolioID     string            `json:"portfolio_id"`
	PortfolioName   string            `json:"portfolio_name"`
	GuidelinesCount int               `json:"guidelines_count"`
	DocumentsCount  int               `json:"documents_count"`
	Documents       []DocumentSummary `json:"documents"`
}

// PortfolioSummaryResult is the outcome of PortfolioSummary.
type PortfolioSummaryResult struct {
	Status
	Portfolio *PortfolioSummary `json:"portfolio,omitempty"`
}

// PortfolioCount is one line of the system statistics.
type PortfolioCount struct {
	PortfolioID     string `json:"portfolio_id"`
	PortfolioName   string `json:"portfolio_name"`
	GuidelinesCount int    `json:"guidelines_count"`
}

// SystemStats describes the whole store and the session store.
type SystemStats struct {
	TotalPortfolios   int               `json:"total_portfolios"`
	TotalGuidelines   int               `json:"total_guidelines"`
	MissingEmbeddings int               `json:"missing_embeddings"`
	NeedsEmbeddings   bool              `json:"needs_embeddings"`
	Portfolios        []PortfolioCount  `json:"portfolios"`
	Sessions          session.Stats     `json:"sessions"`
	Providers         []ai.ProviderName `json:"providers,omitempty"`
}

// SystemStatsResult is the outcome of SystemStats.
type SystemStatsResult struct {
	Status
	Stats *SystemStats `json:"stats,omitempty"`
}
