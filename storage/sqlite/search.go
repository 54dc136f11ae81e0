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

package sqlite

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// portfolioFilter renders an IN clause for a non-empty id list.
func portfolioFilter(column string, ids []string) (string, []any) {
	if len(ids) == 0 {
		return "", nil
	}
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return fmt.Sprintf(" AND %s IN (%s)", column, placeholders), args
}

const joinedColumns = `g.portfolio_id, g.rule_id, g.doc_id, g.part, g.section, g.subsection,
	g.text, g.page, g.provenance, g.structured_data, g.embedding,
	COALESCE(NULLIF(p.portfolio_name, ''), g.portfolio_id)`

type joinedRow struct {
	guideline     *core.Guideline
	portfolioName string
}

func (r *Repository) queryJoined(ctx context.Context, query string, args ...any) ([]joinedRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []joinedRow
	for rows.Next() {
		var name string
		g, err := scanGuideline(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &name)...)
		}))
		if err != nil {
			return nil, err
		}
		out = append(out, joinedRow{guideline: g, portfolioName: name})
	}
	return out, rows.Err()
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

func toResult(g *core.Guideline, portfolioName string) *core.SearchResult {
	return &core.SearchResult{
		PortfolioID:   g.PortfolioID,
		PortfolioName: portfolioName,
		RuleID:        g.RuleID,
		DocID:         g.DocID,
		Text:          g.Text,
		Provenance:    g.Provenance,
		Page:          g.Page,
	}
}

// SearchByText performs a case-insensitive substring match over guideline
// text. SQLite's lower() folds ASCII only, so matching happens in Go over
// the scoped rows to fold Unicode the same way the badger engine does.
func (r *Repository) SearchByText(ctx context.Context, query string, portfolioIDs []string, limit int) ([]*core.SearchResult, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, fmt.Errorf("%w: empty text query", storage.ErrInvalidQuery)
	}

	filter, args := portfolioFilter("g.portfolio_id", portfolioIDs)
	if filter != "" {
		filter = " WHERE" + strings.TrimPrefix(filter, " AND")
	}
	rows, err := r.queryJoined(ctx, `
		SELECT `+joinedColumns+`
		FROM guidelines g JOIN portfolios p ON p.portfolio_id = g.portfolio_id`+filter+`
		ORDER BY g.portfolio_id, g.rule_id
	`, args...)
	if err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0)
	for _, row := range rows {
		if !strings.Contains(strings.ToLower(row.guideline.Text), needle) {
			continue
		}
		res := toResult(row.guideline, row.portfolioName)
		res.Rank = len(results) + 1
		results = append(results, res)
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

// SemanticSearch loads the embedded guidelines in scope and ranks them by
// cosine similarity to vector.
func (r *Repository) SemanticSearch(ctx context.Context, vector []float32, portfolioIDs []string, topK int, threshold float32) ([]*core.SearchResult, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	if topK < 1 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	filter, args := portfolioFilter("g.portfolio_id", portfolioIDs)
	rows, err := r.queryJoined(ctx, `
		SELECT `+joinedColumns+`
		FROM guidelines g JOIN portfolios p ON p.portfolio_id = g.portfolio_id
		WHERE g.embedding IS NOT NULL`+filter, args...)
	if err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0)
	for _, row := range rows {
		g := row.guideline
		if len(g.Embedding) != len(vector) {
			r.logger.Debug("skipping guideline with mismatched embedding dimensions",
				"portfolio_id", g.PortfolioID, "rule_id", g.RuleID,
				"stored", len(g.Embedding), "query", len(vector))
			continue
		}
		similarity := storage.CosineSimilarity(vector, g.Embedding)
		if similarity < threshold {
			continue
		}
		res := toResult(g, row.portfolioName)
		res.Similarity = &similarity
		results = append(results, res)
	}
	return storage.RankBySimilarity(results, topK), nil
}
