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

package badger

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// scanGuidelines visits the guidelines of the given portfolios, or of all
// portfolios when portfolioIDs is empty, in portfolio then rule id order.
func scanGuidelines(tx *badger.Txn, portfolioIDs []string, fn func(g *core.Guideline) error) error {
	prefixes := [][]byte{makeGuidelinePrefix("")}
	if len(portfolioIDs) > 0 {
		ids := slices.Clone(portfolioIDs)
		slices.Sort(ids)
		ids = slices.Compact(ids)
		prefixes = prefixes[:0]
		for _, id := range ids {
			prefixes = append(prefixes, makeGuidelinePrefix(id))
		}
	}
	for _, prefix := range prefixes {
		err := scanPrefix(tx, prefix, func(val []byte) error {
			g, err := storage.Unmarshal[core.Guideline](val)
			if err != nil {
				return err
			}
			return fn(g)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// portfolioNames memoizes portfolio name lookups within one transaction.
type portfolioNames struct {
	tx    *badger.Txn
	names map[string]string
}

func (n *portfolioNames) get(id string) (string, error) {
	if name, ok := n.names[id]; ok {
		return name, nil
	}
	p, err := readPortfolio(n.tx, id)
	if err != nil {
		return "", err
	}
	name := id
	if p != nil && p.Name != "" {
		name = p.Name
	}
	n.names[id] = name
	return name, nil
}

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

// SearchByText performs a case-insensitive substring match over guideline text.
func (r *Repository) SearchByText(ctx context.Context, query string, portfolioIDs []string, limit int) ([]*core.SearchResult, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, fmt.Errorf("%w: empty text query", storage.ErrInvalidQuery)
	}

	results := []*core.SearchResult{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		names := &portfolioNames{tx: tx, names: make(map[string]string)}
		return scanGuidelines(tx, portfolioIDs, func(g *core.Guideline) error {
			if limit > 0 && len(results) >= limit {
				return nil
			}
			if !strings.Contains(strings.ToLower(g.Text), needle) {
				return nil
			}
			name, err := names.get(g.PortfolioID)
			if err != nil {
				return err
			}
			res := toResult(g, name)
			res.Rank = len(results) + 1
			results = append(results, res)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SemanticSearch scores every embedded guideline in scope against vector.
func (r *Repository) SemanticSearch(ctx context.Context, vector []float32, portfolioIDs []string, topK int, threshold float32) ([]*core.SearchResult, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	if topK < 1 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.SearchResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		names := &portfolioNames{tx: tx, names: make(map[string]string)}
		return scanGuidelines(tx, portfolioIDs, func(g *core.Guideline) error {
			if !g.HasEmbedding() {
				return nil
			}
			if len(g.Embedding) != len(vector) {
				r.logger.Debug("skipping guideline with mismatched embedding dimensions",
					"portfolio_id", g.PortfolioID, "rule_id", g.RuleID,
					"stored", len(g.Embedding), "query", len(vector))
				return nil
			}
			similarity := storage.CosineSimilarity(vector, g.Embedding)
			if similarity < threshold {
				return nil
			}
			name, err := names.get(g.PortfolioID)
			if err != nil {
				return err
			}
			res := toResult(g, name)
			res.Similarity = &similarity
			results = append(results, res)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	return storage.RankBySimilarity(results, topK), nil
}
