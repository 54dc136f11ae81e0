package mcpserver

import (
	"context"
	"fmt"

	"github.com/poiesic/guidelines"
	"github.com/poiesic/guidelines/core"
)

// Agent is the set of agent entrypoints the server exposes.
type Agent interface {
	Query(ctx context.Context, text string, portfolioIDs []string) guidelines.QueryResult
	Chat(ctx context.Context, text, sessionID string) guidelines.QueryResult
	PlanQuery(ctx context.Context, text, sessionID string) guidelines.PlanResult
	SearchGuidelines(ctx context.Context, text string, portfolioIDs []string, topK int) guidelines.GuidelinesResult
	Summarize(ctx context.Context, question string, sources []string) guidelines.SummaryResult
	ExtractFromDocument(ctx context.Context, data []byte, name string) guidelines.ExtractResult
	Persist(ctx context.Context, result *core.ExtractionResult) guidelines.PersistenceResult
	BackfillEmbeddings(ctx context.Context, limit int) guidelines.BackfillResult
	PortfolioSummary(ctx context.Context, portfolioID string) guidelines.PortfolioSummaryResult
	SystemStats(ctx context.Context) guidelines.SystemStatsResult
}

var _ Agent = (*guidelines.Agent)(nil)

// statusErr turns a failed entrypoint status into a tool error.
func statusErr(s guidelines.Status) error {
	switch {
	case s.Success:
		return nil
	case s.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, s.Error)
	default:
		return fmt.Errorf("%w: %s", ErrToolFailed, s.Error)
	}
}
