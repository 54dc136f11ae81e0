package mcpserver

import (
	"context"

	"github.com/poiesic/guidelines"
	"github.com/poiesic/guidelines/core"
)

// fakeAgent returns canned envelopes and records what it was asked.
type fakeAgent struct {
	query     guidelines.QueryResult
	plan      guidelines.PlanResult
	search    guidelines.GuidelinesResult
	summary   guidelines.SummaryResult
	extract   guidelines.ExtractResult
	persist   guidelines.PersistenceResult
	backfill  guidelines.BackfillResult
	portfolio guidelines.PortfolioSummaryResult
	stats     guidelines.SystemStatsResult

	calls     []string
	data      []byte
	persisted *core.ExtractionResult
	scope     []string
	topK      int
}

func (f *fakeAgent) Query(_ context.Context, _ string, ids []string) guidelines.QueryResult {
	f.calls = append(f.calls, "query")
	f.scope = ids
	return f.query
}

func (f *fakeAgent) Chat(_ context.Context, _, _ string) guidelines.QueryResult {
	f.calls = append(f.calls, "chat")
	return f.query
}

func (f *fakeAgent) PlanQuery(context.Context, string, string) guidelines.PlanResult {
	f.calls = append(f.calls, "plan")
	return f.plan
}

func (f *fakeAgent) SearchGuidelines(_ context.Context, _ string, ids []string, topK int) guidelines.GuidelinesResult {
	f.calls = append(f.calls, "search")
	f.scope = ids
	f.topK = topK
	return f.search
}

func (f *fakeAgent) Summarize(context.Context, string, []string) guidelines.SummaryResult {
	f.calls = append(f.calls, "summarize")
	return f.summary
}

func (f *fakeAgent) ExtractFromDocument(_ context.Context, data []byte, _ string) guidelines.ExtractResult {
	f.calls = append(f.calls, "extract")
	f.data = data
	return f.extract
}

func (f *fakeAgent) Persist(_ context.Context, r *core.ExtractionResult) guidelines.PersistenceResult {
	f.calls = append(f.calls, "persist")
	f.persisted = r
	return f.persist
}

func (f *fakeAgent) BackfillEmbeddings(context.Context, int) guidelines.BackfillResult {
	f.calls = append(f.calls, "backfill")
	return f.backfill
}

func (f *fakeAgent) PortfolioSummary(context.Context, string) guidelines.PortfolioSummaryResult {
	f.calls = append(f.calls, "portfolio")
	return f.portfolio
}

func (f *fakeAgent) SystemStats(context.Context) guidelines.SystemStatsResult {
	f.calls = append(f.calls, "stats")
	return f.stats
}
