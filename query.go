package guidelines

import (
	"context"
	"errors"

	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/search"
	"github.com/poiesic/guidelines/session"
)

// ContextPortfolioIDs is the session context key that scopes Chat to a set
// of portfolios. Its value is a string or a list of strings.
const ContextPortfolioIDs = "portfolio_ids"

// Query answers text without session state. An empty portfolioIDs searches
// every portfolio.
func (a *Agent) Query(ctx context.Context, text string, portfolioIDs []string) QueryResult {
	return a.answer(ctx, text, portfolioIDs, "")
}

// Chat answers text inside a session. An empty, unknown or expired
// sessionID starts a new session, whose id is returned.
func (a *Agent) Chat(ctx context.Context, text, sessionID string) QueryResult {
	var scope []string
	sess, err := a.sessions.Get(sessionID)
	switch {
	case sessionID == "" || errors.Is(err, session.ErrNotFound):
		if sessionID != "" {
			a.logger.Info("session not found, starting a new one", "session_id", sessionID)
		}
		sessionID = a.sessions.Create(nil)
	case err != nil:
		return QueryResult{Status: failed(err), SessionID: sessionID}
	default:
		scope = portfolioScope(sess.Context[ContextPortfolioIDs])
	}
	return a.answer(ctx, text, scope, sessionID)
}

func (a *Agent) answer(ctx context.Context, text string, portfolioIDs []string, sessionID string) QueryResult {
	answer, err := runTask(ctx, a.pool, func(ctx context.Context) (*search.Answer, error) {
		return a.retriever.Answer(ctx, text, portfolioIDs, sessionID)
	})
	if err != nil {
		a.logger.Error("query failed", "query", text, "session_id", sessionID, "err", err)
		return QueryResult{Status: failed(err), SessionID: sessionID}
	}
	return QueryResult{
		Status:       ok(),
		Response:     answer.Text,
		SessionID:    sessionID,
		Plan:         answer.Plan,
		Results:      answer.Results,
		NoResults:    answer.NoResults,
		TextFallback: answer.TextFallback,
	}
}

func portfolioScope(v any) []string {
	switch ids := v.(type) {
	case string:
		if ids != "" {
			return []string{ids}
		}
	case []string:
		return ids
	case []any:
		var out []string
		for _, id := range ids {
			if s, ok := id.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// PlanQuery runs the planner alone. With a sessionID the session's history
// and context inform the plan.
func (a *Agent) PlanQuery(ctx context.Context, text, sessionID string) PlanResult {
	var (
		history    []core.Turn
		sessionCtx map[string]any
	)
	if sessionID != "" {
		h, err := a.sessions.History(sessionID, 0)
		if err != nil {
			return PlanResult{Status: failed(err)}
		}
		history = h
		if sessionCtx, err = a.sessions.Context(sessionID); err != nil {
			return PlanResult{Status: failed(err)}
		}
	}
	plan, err := runTask(ctx, a.pool, func(ctx context.Context) (*core.Plan, error) {
		return a.retriever.Planner().PlanWithContext(ctx, text, history, sessionCtx)
	})
	if err != nil {
		return PlanResult{Status: failed(err)}
	}
	return PlanResult{Status: ok(), Plan: plan}
}

// SearchGuidelines runs retrieval alone. topK <= 0 uses the default.
func (a *Agent) SearchGuidelines(ctx context.Context, text string, portfolioIDs []string, topK int) GuidelinesResult {
	results, err := runTask(ctx, a.pool, func(ctx context.Context) ([]*core.SearchResult, error) {
		return a.retriever.Search(ctx, text, portfolioIDs, topK)
	})
	if err != nil {
		return GuidelinesResult{Status: failed(err), Results: []*core.SearchResult{}}
	}
	return GuidelinesResult{Status: ok(), Results: results, Count: len(results)}
}

// Summarize answers question from already formatted sources.
func (a *Agent) Summarize(ctx context.Context, question string, sources []string) SummaryResult {
	text, err := runTask(ctx, a.pool, func(ctx context.Context) (string, error) {
		return a.retriever.Summarizer().Summarize(ctx, question, sources)
	})
	if err != nil {
		return SummaryResult{Status: failed(err)}
	}
	return SummaryResult{Status: ok(), Summary: text}
}
