// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

const (
	// DefaultThreshold is the minimum cosine similarity of a semantic hit.
	DefaultThreshold float32 = 0.5

	// NoResultsMessage answers a question nothing in the store matches.
	NoResultsMessage = "No relevant guidelines were found for your query."

	// Session context keys written after every answered turn.
	ContextLastSearchQuery  = "last_search_query"
	ContextLastPortfolioIDs = "last_portfolio_ids"
)

// SessionStore is the part of the session store the retriever uses.
type SessionStore interface {
	History(id string, limit int) ([]core.Turn, error)
	Context(id string) (map[string]any, error)
	AddTurn(id, query, response string) error
	UpdateContext(id string, update map[string]any) (map[string]any, error)
}

// Answer is the outcome of one question.
type Answer struct {
	Text         string               `json:"response"`
	Plan         *core.Plan           `json:"plan"`
	Results      []*core.SearchResult `json:"results"`
	NoResults    bool                 `json:"no_results"`
	TextFallback bool                 `json:"text_fallback,omitempty"`
	SessionID    string               `json:"session_id,omitempty"`
}

// Retriever composes planning, search and summarization.
type Retriever struct {
	repo       storage.GuidelineRepository
	embedder   ai.Embedder
	planner    *Planner
	summarizer *Summarizer
	sessions   SessionStore
	threshold  float32
	monitor    Monitor
	logger     *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithThreshold sets the minimum similarity of a semantic hit.
// Default is DefaultThreshold.
func WithThreshold(threshold float32) Option {
	return func(r *Retriever) error {
		if threshold < -1 || threshold > 1 {
			return fmt.Errorf("similarity threshold must be within [-1, 1], got %v", threshold)
		}
		r.threshold = threshold
		return nil
	}
}

// WithSessions attaches a session store so answers can use and record
// conversation history.
func WithSessions(sessions SessionStore) Option {
	return func(r *Retriever) error {
		r.sessions = sessions
		return nil
	}
}

// WithMonitor sets a monitor that observes every answer.
func WithMonitor(m Monitor) Option {
	return func(r *Retriever) error {
		if m == nil {
			m = &noopMonitor{}
		}
		r.monitor = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "retriever")
		return nil
	}
}

// NewRetriever creates a Retriever.
func NewRetriever(repo storage.GuidelineRepository, embedder ai.Embedder, planner *Planner, summarizer *Summarizer, opts ...Option) (*Retriever, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if planner == nil {
		return nil, ErrPlannerRequired
	}
	if summarizer == nil {
		return nil, ErrSummarizerRequired
	}
	r := &Retriever{
		repo:       repo,
		embedder:   embedder,
		planner:    planner,
		summarizer: summarizer,
		threshold:  DefaultThreshold,
		monitor:    &noopMonitor{},
		logger:     slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Planner returns the retriever's planner.
func (r *Retriever) Planner() *Planner { return r.planner }

// Summarizer returns the retriever's summarizer.
func (r *Retriever) Summarizer() *Summarizer { return r.summarizer }

// Answer plans, searches and summarizes one question. With a non-empty
// sessionID the session's history and context inform the plan and the turn is
// recorded; an unknown session is an error wrapping session.ErrNotFound.
func (r *Retriever) Answer(ctx context.Context, query string, portfolioIDs []string, sessionID string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	start := time.Now()
	r.monitor.Start(query)

	var (
		history    []core.Turn
		sessionCtx map[string]any
	)
	if sessionID != "" && r.sessions != nil {
		h, err := r.sessions.History(sessionID, 0)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		history = h
		if sessionCtx, err = r.sessions.Context(sessionID); err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
	}

	plan, err := r.planner.PlanWithContext(ctx, query, history, sessionCtx)
	if err != nil {
		return nil, err
	}
	r.monitor.AfterPlan(plan)

	results, fallback, err := r.search(ctx, plan.SearchQuery, portfolioIDs, plan.TopK)
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		Plan:         plan,
		Results:      results,
		TextFallback: fallback,
		SessionID:    sessionID,
	}
	if len(results) == 0 {
		answer.NoResults = true
		answer.Text = NoResultsMessage
	} else {
		sources := make([]string, len(results))
		for i, res := range results {
			sources[i] = FormatSource(res)
		}
		text, err := r.summarizer.Summarize(ctx, plan.SummaryInstruction, sources)
		if err != nil {
			return nil, err
		}
		answer.Text = text
		r.monitor.AfterSummary(text)
	}

	if sessionID != "" && r.sessions != nil {
		r.record(sessionID, query, plan, portfolioIDs, answer.Text)
	}

	r.logger.Info("query answered",
		"query", query,
		"results", len(results),
		"text_fallback", fallback,
		"session_id", sessionID,
		"duration", time.Since(start))
	r.monitor.Finish(answer)
	return answer, nil
}

// Search runs the retrieval step alone: semantic search over the embedded
// query, or keyword matching when the query cannot be embedded.
func (r *Retriever) Search(ctx context.Context, query string, portfolioIDs []string, topK int) ([]*core.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = r.planner.coldTopK
	}
	results, _, err := r.search(ctx, query, portfolioIDs, min(topK, MaxTopK))
	return results, err
}

func (r *Retriever) search(ctx context.Context, query string, portfolioIDs []string, topK int) ([]*core.SearchResult, bool, error) {
	vector, err := r.embedder.EmbedText(ctx, query)
	if err == nil && len(vector) == 0 {
		err = fmt.Errorf("embedder returned an empty vector")
	}
	r.monitor.AfterEmbedding(len(vector), err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		r.logger.Warn("query embedding failed, falling back to keyword search", "err", err)
		results, err := r.textSearch(ctx, query, portfolioIDs, topK)
		if err != nil {
			return nil, true, fmt.Errorf("keyword search: %w", err)
		}
		r.monitor.AfterSearch(results, true)
		return results, true, nil
	}

	results, err := r.repo.SemanticSearch(ctx, vector, portfolioIDs, topK, r.threshold)
	if err != nil {
		return nil, false, fmt.Errorf("semantic search: %w", err)
	}
	r.monitor.AfterSearch(results, false)
	return results, false, nil
}

// textSearch matches each content word of query as a substring and ranks
// guidelines by how many words they contain.
func (r *Retriever) textSearch(ctx context.Context, query string, portfolioIDs []string, topK int) ([]*core.SearchResult, error) {
	words := keywords(query)
	if len(words) == 0 {
		return r.repo.SearchByText(ctx, query, portfolioIDs, topK)
	}

	type hit struct {
		result *core.SearchResult
		count  int
	}
	byKey := make(map[string]*hit)
	for _, w := range words {
		matches, err := r.repo.SearchByText(ctx, w, portfolioIDs, 0)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			key := m.PortfolioID + "\x00" + m.RuleID
			if _, ok := byKey[key]; !ok {
				byKey[key] = &hit{result: m, count: keywordHits(m.Text, words)}
			}
		}
	}

	hits := make([]*hit, 0, len(byKey))
	for _, h := range byKey {
		hits = append(hits, h)
	}
	slices.SortFunc(hits, func(a, b *hit) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.result.PortfolioID, b.result.PortfolioID); c != 0 {
			return c
		}
		return cmp.Compare(a.result.RuleID, b.result.RuleID)
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	results := make([]*core.SearchResult, len(hits))
	for i, h := range hits {
		h.result.Rank = i + 1
		h.result.Similarity = nil
		results[i] = h.result
	}
	return results, nil
}

func (r *Retriever) record(sessionID, query string, plan *core.Plan, portfolioIDs []string, response string) {
	if err := r.sessions.AddTurn(sessionID, query, response); err != nil {
		r.logger.Warn("could not record turn", "session_id", sessionID, "err", err)
		return
	}
	update := map[string]any{
		ContextLastSearchQuery:  plan.SearchQuery,
		ContextLastPortfolioIDs: slices.Clone(portfolioIDs),
	}
	if _, err := r.sessions.UpdateContext(sessionID, update); err != nil {
		r.logger.Warn("could not update session context", "session_id", sessionID, "err", err)
	}
}
