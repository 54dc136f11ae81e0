package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/poiesic/guidelines"
	"github.com/poiesic/guidelines/core"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question     string   `json:"question" jsonschema:"the question about investment guidelines"`
	PortfolioIDs []string `json:"portfolio_ids,omitempty" jsonschema:"restrict the search to these portfolios (ignored when session_id is set)"`
	SessionID    string   `json:"session_id,omitempty" jsonschema:"continue this conversation; an unknown id starts a new one"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Response     string         `json:"response"`
	SessionID    string         `json:"session_id,omitempty"`
	NoResults    bool           `json:"no_results"`
	TextFallback bool           `json:"text_fallback"`
	Sources      []SourceOutput `json:"sources"`
}

// SourceOutput is one retrieved guideline.
type SourceOutput struct {
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

// PlanInput is the input schema for the plan_query tool.
type PlanInput struct {
	Query     string `json:"query" jsonschema:"the user query to plan"`
	SessionID string `json:"session_id,omitempty" jsonschema:"use this conversation's history to resolve references"`
}

// PlanOutput is the output schema for the plan_query tool.
type PlanOutput struct {
	SearchQuery        string `json:"search_query"`
	SummaryInstruction string `json:"summary_instruction"`
	TopK               int    `json:"top_k"`
}

// SearchInput is the input schema for the search_guidelines tool.
type SearchInput struct {
	Query        string   `json:"query" jsonschema:"the search query"`
	PortfolioIDs []string `json:"portfolio_ids,omitempty" jsonschema:"restrict the search to these portfolios"`
	TopK         int      `json:"top_k,omitempty" jsonschema:"maximum number of results to return (default 7)"`
}

// SearchOutput is the output schema for the search_guidelines tool.
type SearchOutput struct {
	Results []SourceOutput `json:"results"`
	Count   int            `json:"count"`
}

// SummarizeInput is the input schema for the summarize tool.
type SummarizeInput struct {
	Question string   `json:"question" jsonschema:"what the summary should answer"`
	Sources  []string `json:"sources" jsonschema:"guideline texts with their provenance"`
}

// SummarizeOutput is the output schema for the summarize tool.
type SummarizeOutput struct {
	Summary string `json:"summary"`
}

// ExtractInput is the input schema for the extract_from_document tool.
type ExtractInput struct {
	Data     string `json:"data_base64" jsonschema:"the document bytes, base64 encoded"`
	FileName string `json:"file_name,omitempty" jsonschema:"the document's file name, used to detect its type"`
}

// ExtractionOutput is an extraction result. It is both the output of
// extract_from_document and the input of persist.
type ExtractionOutput struct {
	IsValid           bool              `json:"is_valid"`
	ValidationSummary string            `json:"validation_summary"`
	PortfolioID       string            `json:"portfolio_id,omitempty"`
	PortfolioName     string            `json:"portfolio_name,omitempty"`
	DocID             string            `json:"doc_id,omitempty"`
	DocName           string            `json:"doc_name,omitempty"`
	DocDate           string            `json:"doc_date,omitempty" jsonschema:"YYYY-MM-DD"`
	Digest            string            `json:"human_readable_digest,omitempty"`
	Guidelines        []GuidelineOutput `json:"guidelines"`
}

// GuidelineOutput is one extracted guideline.
type GuidelineOutput struct {
	RuleID         string `json:"rule_id"`
	Part           string `json:"part,omitempty"`
	Section        string `json:"section,omitempty"`
	Subsection     string `json:"subsection,omitempty"`
	Text           string `json:"text"`
	Page           int    `json:"page,omitempty"`
	Provenance     string `json:"provenance,omitempty"`
	StructuredData string `json:"structured_data,omitempty" jsonschema:"JSON object with machine-readable limits"`
}

// PersistInput is the input schema for the persist tool.
type PersistInput struct {
	Extraction ExtractionOutput `json:"extraction" jsonschema:"a valid extraction as returned by extract_from_document"`
}

// PersistOutput is the output schema for the persist tool.
type PersistOutput struct {
	PortfolioID        string `json:"portfolio_id"`
	DocID              string `json:"doc_id"`
	GuidelinesSaved    int    `json:"guidelines_saved"`
	WasReingested      bool   `json:"was_reingested"`
	PreviousGuidelines int    `json:"previous_guidelines"`
}

// BackfillInput is the input schema for the backfill_embeddings tool.
type BackfillInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of guidelines to embed (default all)"`
}

// BackfillOutput is the output schema for the backfill_embeddings tool.
type BackfillOutput struct {
	Candidates     int      `json:"candidates"`
	Embedded       int      `json:"embedded"`
	Failed         int      `json:"failed"`
	SkippedRuleIDs []string `json:"skipped_rule_ids,omitempty"`
}

// PortfolioInput is the input schema for the portfolio_summary tool.
type PortfolioInput struct {
	PortfolioID string `json:"portfolio_id" jsonschema:"the portfolio to summarize"`
}

// PortfolioOutput is the output schema for the portfolio_summary tool.
type PortfolioOutput struct {
	PortfolioID     string           `json:"portfolio_id"`
	PortfolioName   string           `json:"portfolio_name"`
	GuidelinesCount int              `json:"guidelines_count"`
	DocumentsCount  int              `json:"documents_count"`
	Documents       []DocumentOutput `json:"documents"`
}

// DocumentOutput is one document of a portfolio.
type DocumentOutput struct {
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	DocDate string `json:"doc_date,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question about investment guidelines, citing the provenance of every rule used",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "plan_query",
		Description: "Turn a user query into a search query, a summary instruction and a result count",
	}, s.handlePlan)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_guidelines",
		Description: "Find the stored guidelines most relevant to a query",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "summarize",
		Description: "Summarize guideline texts into an answer that cites their provenance",
	}, s.handleSummarize)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "extract_from_document",
		Description: "Validate an investment policy document and extract its guidelines without saving them",
	}, s.handleExtract)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "persist",
		Description: "Save an extraction, replacing all earlier data of its portfolio",
	}, s.handlePersist)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "backfill_embeddings",
		Description: "Generate embeddings for guidelines that do not have one yet",
	}, s.handleBackfill)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "portfolio_summary",
		Description: "Describe one portfolio: its name, documents and guideline count",
	}, s.handlePortfolioSummary)
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskOutput{}, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	var res guidelines.QueryResult
	if input.SessionID != "" {
		res = s.agent.Chat(ctx, input.Question, input.SessionID)
	} else {
		res = s.agent.Query(ctx, input.Question, input.PortfolioIDs)
	}
	if err := statusErr(res.Status); err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		Response:     res.Response,
		SessionID:    res.SessionID,
		NoResults:    res.NoResults,
		TextFallback: res.TextFallback,
		Sources:      sources(res.Results),
	}, nil
}

func (s *Server) handlePlan(ctx context.Context, _ *mcp.CallToolRequest, input PlanInput) (*mcp.CallToolResult, PlanOutput, error) {
	res := s.agent.PlanQuery(ctx, input.Query, input.SessionID)
	if err := statusErr(res.Status); err != nil {
		return nil, PlanOutput{}, err
	}
	return nil, PlanOutput{
		SearchQuery:        res.Plan.SearchQuery,
		SummaryInstruction: res.Plan.SummaryInstruction,
		TopK:               res.Plan.TopK,
	}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	res := s.agent.SearchGuidelines(ctx, input.Query, input.PortfolioIDs, input.TopK)
	if err := statusErr(res.Status); err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, SearchOutput{Results: sources(res.Results), Count: res.Count}, nil
}

func (s *Server) handleSummarize(ctx context.Context, _ *mcp.CallToolRequest, input SummarizeInput) (*mcp.CallToolResult, SummarizeOutput, error) {
	res := s.agent.Summarize(ctx, input.Question, input.Sources)
	if err := statusErr(res.Status); err != nil {
		return nil, SummarizeOutput{}, err
	}
	return nil, SummarizeOutput{Summary: res.Summary}, nil
}

// handleExtract reports a document the extractor could not read as an
// invalid extraction rather than a tool error.
func (s *Server) handleExtract(ctx context.Context, _ *mcp.CallToolRequest, input ExtractInput) (*mcp.CallToolResult, ExtractionOutput, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(input.Data))
	if err != nil {
		return nil, ExtractionOutput{}, fmt.Errorf("%w: data_base64: %w", ErrInvalidInput, err)
	}
	res := s.agent.ExtractFromDocument(ctx, data, input.FileName)
	if res.Extraction == nil {
		return nil, ExtractionOutput{}, statusErr(res.Status)
	}
	if !res.Success {
		s.logger.Warn("extraction failed", "file_name", input.FileName, "err", res.Error)
	}
	return nil, extractionOutput(res.Extraction), nil
}

func (s *Server) handlePersist(ctx context.Context, _ *mcp.CallToolRequest, input PersistInput) (*mcp.CallToolResult, PersistOutput, error) {
	if !input.Extraction.IsValid {
		return nil, PersistOutput{}, fmt.Errorf("%w: only a valid extraction can be persisted", ErrInvalidInput)
	}
	result, err := extractionResult(input.Extraction)
	if err != nil {
		return nil, PersistOutput{}, err
	}
	res := s.agent.Persist(ctx, result)
	if err := statusErr(res.Status); err != nil {
		return nil, PersistOutput{}, err
	}
	p := res.Persisted
	return nil, PersistOutput{
		PortfolioID:        p.PortfolioID,
		DocID:              p.DocID,
		GuidelinesSaved:    p.GuidelinesSaved,
		WasReingested:      p.WasReingested,
		PreviousGuidelines: p.PreviousGuidelines,
	}, nil
}

func (s *Server) handleBackfill(ctx context.Context, _ *mcp.CallToolRequest, input BackfillInput) (*mcp.CallToolResult, BackfillOutput, error) {
	res := s.agent.BackfillEmbeddings(ctx, input.Limit)
	if err := statusErr(res.Status); err != nil {
		return nil, BackfillOutput{}, err
	}
	b := res.Backfill
	return nil, BackfillOutput{
		Candidates:     b.Candidates,
		Embedded:       b.Embedded,
		Failed:         b.Failed,
		SkippedRuleIDs: b.SkippedRuleIDs,
	}, nil
}

func (s *Server) handlePortfolioSummary(ctx context.Context, _ *mcp.CallToolRequest, input PortfolioInput) (*mcp.CallToolResult, PortfolioOutput, error) {
	res := s.agent.PortfolioSummary(ctx, input.PortfolioID)
	if err := statusErr(res.Status); err != nil {
		return nil, PortfolioOutput{}, err
	}
	p := res.Portfolio
	out := PortfolioOutput{
		PortfolioID:     p.PortfolioID,
		PortfolioName:   p.PortfolioName,
		GuidelinesCount: p.GuidelinesCount,
		DocumentsCount:  p.DocumentsCount,
		Documents:       make([]DocumentOutput, len(p.Documents)),
	}
	for i, d := range p.Documents {
		out.Documents[i] = DocumentOutput(d)
	}
	return nil, out, nil
}

func sources(results []*core.SearchResult) []SourceOutput {
	out := make([]SourceOutput, len(results))
	for i, r := range results {
		out[i] = SourceOutput{
			Rank:          r.Rank,
			Similarity:    r.Similarity,
			PortfolioID:   r.PortfolioID,
			PortfolioName: r.PortfolioName,
			RuleID:        r.RuleID,
			DocID:         r.DocID,
			Text:          r.Text,
			Provenance:    r.Provenance,
			Page:          r.Page,
		}
	}
	return out
}

func extractionOutput(r *core.ExtractionResult) ExtractionOutput {
	out := ExtractionOutput{
		IsValid:           r.IsValid,
		ValidationSummary: r.ValidationSummary,
		PortfolioID:       r.Portfolio.ID,
		PortfolioName:     r.Portfolio.Name,
		DocID:             r.Document.ID,
		DocName:           r.Document.Name,
		DocDate:           r.Document.Date,
		Digest:            r.Digest,
		Guidelines:        make([]GuidelineOutput, len(r.Guidelines)),
	}
	for i, g := range r.Guidelines {
		out.Guidelines[i] = GuidelineOutput{
			RuleID:         g.RuleID,
			Part:           g.Part,
			Section:        g.Section,
			Subsection:     g.Subsection,
			Text:           g.Text,
			Page:           g.Page,
			Provenance:     g.Provenance,
			StructuredData: string(g.StructuredData),
		}
	}
	return out
}

func extractionResult(in ExtractionOutput) (*core.ExtractionResult, error) {
	r := &core.ExtractionResult{
		IsValid:           in.IsValid,
		ValidationSummary: in.ValidationSummary,
		Portfolio:         core.Portfolio{ID: in.PortfolioID, Name: in.PortfolioName},
		Document: core.Document{
			ID:          in.DocID,
			PortfolioID: in.PortfolioID,
			Name:        in.DocName,
			Date:        in.DocDate,
			Digest:      in.Digest,
		},
		Digest:     in.Digest,
		Guidelines: make([]*core.Guideline, len(in.Guidelines)),
	}
	for i, g := range in.Guidelines {
		var structured json.RawMessage
		if g.StructuredData != "" {
			if !json.Valid([]byte(g.StructuredData)) {
				return nil, fmt.Errorf("%w: rule %s: structured_data is not valid JSON", ErrInvalidInput, g.RuleID)
			}
			structured = json.RawMessage(g.StructuredData)
		}
		r.Guidelines[i] = &core.Guideline{
			PortfolioID:    in.PortfolioID,
			RuleID:         g.RuleID,
			DocID:          in.DocID,
			Part:           g.Part,
			Section:        g.Section,
			Subsection:     g.Subsection,
			Text:           g.Text,
			Page:           g.Page,
			Provenance:     g.Provenance,
			StructuredData: structured,
		}
	}
	return r, nil
}
