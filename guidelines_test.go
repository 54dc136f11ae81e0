package guidelines

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/ai/mock"
	"github.com/poiesic/guidelines/config"
	"github.com/poiesic/guidelines/ingestion"
	"github.com/poiesic/guidelines/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var p1Guidelines = []map[string]any{
	{
		"rule_id": "P1_EQ_01", "part": "Part I", "section": "Asset Allocation",
		"text": "Equity exposure must stay between 40% and 60% of net assets.",
		"page": 3, "provenance": "Part I, Section 1.2",
	},
	{
		"rule_id": "P1_DER_01", "part": "Part I", "section": "Derivatives",
		"text": "Derivatives may be used only to hedge currency and interest rate risk.",
		"page": 5, "provenance": "Part I, Section 4.1",
	},
	{
		"rule_id": "P1_ESG_01", "part": "Part II", "section": "Exclusions",
		"text": "Issuers deriving more than 10% of revenue from thermal coal are excluded.",
		"page": 9, "provenance": "Part II, Section 2.3",
	},
}

func extractionJSON(t *testing.T, valid bool, portfolioID string, rules []map[string]any) string {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"is_valid_document":     valid,
		"validation_summary":    fmt.Sprintf("Investment policy statement for %s.", portfolioID),
		"portfolio_id":          portfolioID,
		"portfolio_name":        portfolioID + " Pension Fund",
		"doc_id":                portfolioID + "_2024-06-30",
		"doc_name":              "Investment Policy Statement",
		"doc_date":              "2024-06-30",
		"guidelines":            rules,
		"human_readable_digest": "Digest.",
	})
	require.NoError(t, err)
	return string(out)
}

// generatorFunc adapts a function to ai.Generator.
type generatorFunc func(ctx context.Context, req ai.Request) *ai.Response

func (f generatorFunc) Generate(ctx context.Context, req ai.Request) *ai.Response {
	return f(ctx, req)
}

// extracting answers extraction prompts with extraction and everything
// else like the mock provider.
func extracting(extraction string) generatorFunc {
	return func(ctx context.Context, req ai.Request) *ai.Response {
		content := mock.Respond(&req)
		if strings.Contains(req.Prompt, "is_valid_document") {
			content = extraction
		}
		return &ai.Response{Content: content, Success: true, ProviderUsed: ai.ProviderMock}
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "store")
	cfg.WorkerPoolSize = 2
	return cfg
}

func newTestAgent(t *testing.T, opts ...Option) *Agent {
	t.Helper()
	a, err := New(context.Background(), testConfig(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

var pdf = []byte("%PDF-1.4\n% investment policy statement\n")

func TestNew(t *testing.T) {
	t.Run("defaults to the mock provider", func(t *testing.T) {
		a := newTestAgent(t)
		assert.NotNil(t, a.Repository())
		assert.NotNil(t, a.Sessions())
		assert.Equal(t, config.EngineBadger, a.Config().Storage)

		stats := a.SystemStats(context.Background())
		require.True(t, stats.Success, stats.Error)
		assert.Equal(t, []ai.ProviderName{ai.ProviderMock}, stats.Stats.Providers)
		assert.Zero(t, stats.Stats.TotalPortfolios)
	})

	t.Run("sqlite engine", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage = config.EngineSQLite
		a, err := New(context.Background(), cfg)
		require.NoError(t, err)
		defer a.Close()

		res := a.Ingest(context.Background(), pdf, "mock.pdf")
		assert.True(t, res.Success, res.Summary)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))
		cfg := testConfig(t)
		cfg.DataDir = tmpFile

		a, err := New(context.Background(), cfg)
		assert.Error(t, err)
		assert.Nil(t, a)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Embedding.BatchSize = 0
		_, err := New(context.Background(), cfg)
		assert.Error(t, err)
	})
}

func TestOpenRepository_UnknownEngine(t *testing.T) {
	_, err := OpenRepository("postgres", t.TempDir())
	assert.ErrorIs(t, err, storage.ErrUnknownEngine)
}

func TestAgent_CloseTwice(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestAgent_EndToEnd(t *testing.T) {
	a := newTestAgent(t, WithGenerator(extracting(extractionJSON(t, true, "P1", p1Guidelines))))
	ctx := context.Background()

	ingested := a.Ingest(ctx, pdf, "p1-ips.pdf")
	require.True(t, ingested.Success, ingested.Summary)
	assert.True(t, ingested.IsValid)
	assert.Equal(t, "P1", ingested.PortfolioID)
	assert.Equal(t, 3, ingested.GuidelinesCount)
	assert.Equal(t, 3, ingested.EmbeddingsGenerated)
	assert.False(t, ingested.WasReingested)
	assert.Contains(t, ingested.Summary, "Successfully ingested 'p1-ips.pdf'.")

	answer := a.Query(ctx, "restrictions on derivatives", []string{"P1"})
	require.True(t, answer.Success, answer.Error)
	assert.NotEmpty(t, answer.Response)
	assert.False(t, answer.NoResults)

	cited := false
	for _, g := range p1Guidelines {
		if strings.Contains(answer.Response, g["provenance"].(string)) {
			cited = true
		}
	}
	assert.True(t, cited, "answer cites no provenance: %s", answer.Response)
	for _, r := range answer.Results {
		assert.Equal(t, "P1", r.PortfolioID)
		require.NotNil(t, r.Similarity)
		assert.GreaterOrEqual(t, *r.Similarity, config.Default().Search.SimilarityThreshold)
	}
}

func TestAgent_ReingestReplaces(t *testing.T) {
	first := extractionJSON(t, true, "P1", p1Guidelines)
	second := extractionJSON(t, true, "P1", p1Guidelines[:1])
	current := first
	gen := generatorFunc(func(ctx context.Context, req ai.Request) *ai.Response {
		return extracting(current)(ctx, req)
	})
	a := newTestAgent(t, WithGenerator(gen))
	ctx := context.Background()

	require.True(t, a.Ingest(ctx, pdf, "v1.pdf").Success)
	current = second
	res := a.Ingest(ctx, pdf, "v2.pdf")
	require.True(t, res.Success, res.Summary)
	assert.True(t, res.WasReingested)
	assert.Contains(t, res.Summary, "was replaced")

	guidelines, err := a.Repository().ListGuidelines(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, guidelines, 1)
	assert.Equal(t, "P1_EQ_01", guidelines[0].RuleID)
}

func TestAgent_InvalidDocumentSkipsPersistence(t *testing.T) {
	a := newTestAgent(t, WithGenerator(extracting(extractionJSON(t, false, "", nil))))
	ctx := context.Background()

	res := a.Ingest(ctx, pdf, "menu.pdf")
	assert.False(t, res.Success)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Summary, "Failed to ingest 'menu.pdf'.")
	assert.NotContains(t, res.Trace, ingestion.StatePersist.String())

	stats := a.SystemStats(ctx)
	require.True(t, stats.Success)
	assert.Zero(t, stats.Stats.TotalPortfolios)
}

func TestAgent_IngestEmptyDocument(t *testing.T) {
	a := newTestAgent(t)
	res := a.Ingest(context.Background(), nil, "empty.pdf")
	assert.False(t, res.Success)
	assert.Contains(t, res.Summary, "Failed to ingest 'empty.pdf'.")

	res = a.IngestFile(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestAgent_Chat(t *testing.T) {
	a := newTestAgent(t)
	ctx := context.Background()
	require.True(t, a.Ingest(ctx, pdf, "mock.pdf").Success)

	first := a.Chat(ctx, "what are the equity limits?", "")
	require.True(t, first.Success, first.Error)
	require.NotEmpty(t, first.SessionID)

	second := a.Chat(ctx, "and for derivatives in this fund?", first.SessionID)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, first.SessionID, second.SessionID)

	history := a.SessionHistory(first.SessionID, 0)
	require.True(t, history.Success)
	require.Len(t, history.Interactions, 2)
	assert.Equal(t, "what are the equity limits?", history.Interactions[0].Query)

	fresh := a.Chat(ctx, "derivatives", "expired-or-unknown")
	require.True(t, fresh.Success, fresh.Error)
	assert.NotEqual(t, "expired-or-unknown", fresh.SessionID)
}

func TestAgent_ChatScopedBySessionContext(t *testing.T) {
	current := extractionJSON(t, true, "P1", p1Guidelines)
	gen := generatorFunc(func(ctx context.Context, req ai.Request) *ai.Response {
		return extracting(current)(ctx, req)
	})
	a := newTestAgent(t, WithGenerator(gen))
	ctx := context.Background()

	require.True(t, a.Ingest(ctx, pdf, "p1.pdf").Success)
	current = extractionJSON(t, true, "P2", p1Guidelines)
	require.True(t, a.Ingest(ctx, pdf, "p2.pdf").Success)

	created := a.CreateSession(map[string]any{ContextPortfolioIDs: []any{"P2"}})
	require.True(t, created.Success)

	res := a.Chat(ctx, "restrictions on derivatives", created.SessionID)
	require.True(t, res.Success, res.Error)
	require.NotEmpty(t, res.Results)
	for _, r := range res.Results {
		assert.Equal(t, "P2", r.PortfolioID)
	}
}

func TestAgent_SessionEntrypoints(t *testing.T) {
	a := newTestAgent(t)

	created := a.CreateSession(map[string]any{"user": "analyst"})
	require.True(t, created.Success)
	assert.True(t, created.Created)
	id := created.SessionID

	info := a.SessionInfo(id)
	require.True(t, info.Success)
	assert.Equal(t, id, info.Session.ID)
	assert.Equal(t, "analyst", info.Session.Context["user"])

	updated := a.UpdateSessionContext(id, map[string]any{"topic": "ESG"})
	require.True(t, updated.Success)
	assert.Equal(t, map[string]any{"user": "analyst", "topic": "ESG"}, updated.Context)

	stats := a.SessionStats()
	require.True(t, stats.Success)
	assert.Equal(t, 1, stats.Stats.Total)
	assert.Equal(t, 100, stats.Stats.Capacity)

	assert.True(t, a.DeleteSession(id).Success)

	missing := a.SessionInfo(id)
	assert.False(t, missing.Success)
	assert.True(t, missing.NotFound)
	assert.True(t, a.DeleteSession(id).NotFound)
	assert.True(t, a.SessionHistory(id, 5).NotFound)
	assert.True(t, a.UpdateSessionContext(id, map[string]any{"x": 1}).NotFound)
}

func TestAgent_ToolEntrypoints(t *testing.T) {
	a := newTestAgent(t)
	ctx := context.Background()

	plan := a.PlanQuery(ctx, "what are the derivative rules? give me the top 5", "")
	require.True(t, plan.Success, plan.Error)
	assert.Equal(t, 5, plan.Plan.TopK)
	assert.True(t, a.PlanQuery(ctx, "derivatives", "no-such-session").NotFound)

	extracted := a.ExtractFromDocument(ctx, pdf, "mock.pdf")
	require.True(t, extracted.Success, extracted.Error)
	require.True(t, extracted.Extraction.IsValid)
	assert.Equal(t, "mock_portfolio_001", extracted.Extraction.Portfolio.ID)
	assert.Len(t, extracted.Extraction.Guidelines, 3)

	empty := a.ExtractFromDocument(ctx, nil, "empty.pdf")
	assert.False(t, empty.Success)
	require.NotNil(t, empty.Extraction)
	assert.False(t, empty.Extraction.IsValid)

	assert.False(t, a.Persist(ctx, nil).Success)
	persisted := a.Persist(ctx, extracted.Extraction)
	require.True(t, persisted.Success, persisted.Error)
	assert.Equal(t, 3, persisted.Persisted.GuidelinesSaved)

	stats := a.SystemStats(ctx)
	require.True(t, stats.Success)
	assert.Equal(t, 3, stats.Stats.MissingEmbeddings)
	assert.True(t, stats.Stats.NeedsEmbeddings)

	backfill := a.BackfillEmbeddings(ctx, 0)
	require.True(t, backfill.Success, backfill.Error)
	assert.Equal(t, 3, backfill.Backfill.Embedded)

	found := a.SearchGuidelines(ctx, "derivatives hedging", []string{"mock_portfolio_001"}, 2)
	require.True(t, found.Success, found.Error)
	assert.Equal(t, 2, found.Count)
	assert.Equal(t, 1, found.Results[0].Rank)

	summary := a.Summarize(ctx, "May derivatives be used?", []string{
		"Guideline: Derivatives may be used only for hedging purposes. (Provenance: Part I, Section 2.1, page 2)",
	})
	require.True(t, summary.Success, summary.Error)
	assert.Contains(t, summary.Summary, "Part I, Section 2.1")
	assert.False(t, a.Summarize(ctx, "May derivatives be used?", nil).Success)
}

func TestAgent_PortfolioSummaryAndStats(t *testing.T) {
	a := newTestAgent(t)
	ctx := context.Background()

	missing := a.PortfolioSummary(ctx, "mock_portfolio_001")
	assert.False(t, missing.Success)
	assert.True(t, missing.NotFound)

	require.True(t, a.Ingest(ctx, pdf, "mock.pdf").Success)

	summary := a.PortfolioSummary(ctx, "mock_portfolio_001")
	require.True(t, summary.Success, summary.Error)
	assert.Equal(t, "Mock Test Portfolio", summary.Portfolio.PortfolioName)
	assert.Equal(t, 3, summary.Portfolio.GuidelinesCount)
	assert.Equal(t, 1, summary.Portfolio.DocumentsCount)
	assert.Equal(t, "2024-01-01", summary.Portfolio.Documents[0].DocDate)

	stats := a.SystemStats(ctx)
	require.True(t, stats.Success)
	assert.Equal(t, 1, stats.Stats.TotalPortfolios)
	assert.Equal(t, 3, stats.Stats.TotalGuidelines)
	assert.False(t, stats.Stats.NeedsEmbeddings)
	assert.Equal(t, []PortfolioCount{{PortfolioID: "mock_portfolio_001", PortfolioName: "Mock Test Portfolio", GuidelinesCount: 3}}, stats.Stats.Portfolios)
}

func TestAgent_Watch(t *testing.T) {
	a := newTestAgent(t)
	inbox := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, inbox, ingestion.WithDebounce(50*time.Millisecond))
	}()

	// the watcher needs a moment to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "ips.pdf"), pdf, 0o644))

	assert.Eventually(t, func() bool {
		n, err := a.Repository().CountGuidelines(context.Background(), "")
		return err == nil && n == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestResults_JSON(t *testing.T) {
	res := IngestResult{Success: true, Result: ingestion.Result{IsValid: true, Summary: "ok", GuidelinesCount: 2}}
	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": true, "is_valid": true, "validation_summary": "", "guidelines_count": 2, "summary": "ok", "trace": null}`, string(out))

	q := QueryResult{Status: failed(fmt.Errorf("wrapped: %w", storage.ErrNotFound))}
	out, err = json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": false, "error": "wrapped: record not found", "not_found": true}`, string(out))
}
