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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// Replace supersedes everything stored for the extraction's portfolio in a
// single transaction. The first statement is a write so the transaction holds
// the write lock from the start.
func (r *Repository) Replace(ctx context.Context, result *core.ExtractionResult) (*core.PersistResult, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: nil extraction", storage.ErrInvalidQuery)
	}
	for _, g := range result.Guidelines {
		if g != nil && g.DocID == "" {
			g.DocID = result.Document.ID
		}
	}
	if err := core.ValidateExtraction(result); err != nil {
		return nil, err
	}

	portfolio := result.Portfolio
	document := result.Document
	if document.Digest == "" {
		document.Digest = result.Digest
	}
	persisted, err := r.replace(ctx, &portfolio, &document, result.Guidelines)
	if err != nil {
		r.logger.Error("replace rolled back", "portfolio_id", portfolio.ID, "err", err)
		return nil, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}

	r.logger.Info("portfolio replaced",
		"portfolio_id", persisted.PortfolioID,
		"doc_id", persisted.DocID,
		"guidelines", persisted.GuidelinesSaved,
		"reingested", persisted.WasReingested)
	return persisted, nil
}

func (r *Repository) replace(ctx context.Context, portfolio *core.Portfolio, document *core.Document, guidelines []*core.Guideline) (*core.PersistResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	persisted := &core.PersistResult{
		PortfolioID: portfolio.ID,
		DocID:       document.ID,
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM guidelines WHERE portfolio_id = ?`, portfolio.ID)
	if err != nil {
		return nil, err
	}
	removed, _ := res.RowsAffected()
	persisted.PreviousGuidelines = int(removed)

	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT created_at FROM portfolios WHERE portfolio_id = ?`, portfolio.ID).Scan(&createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		persisted.PortfolioCreated = true
	case err != nil:
		return nil, err
	default:
		portfolio.CreatedAt = createdAt
	}

	var docCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE doc_id = ?`, document.ID).Scan(&docCount); err != nil {
		return nil, err
	}
	persisted.DocumentCreated = docCount == 0
	persisted.WasReingested = !persisted.PortfolioCreated || removed > 0

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE portfolio_id = ? OR doc_id = ?`, portfolio.ID, document.ID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := upsertPortfolio(ctx, tx, portfolio, now); err != nil {
		return nil, fmt.Errorf("portfolio %s: %w", portfolio.ID, err)
	}
	document.CreatedAt = now
	if err := upsertDocument(ctx, tx, document, now); err != nil {
		return nil, fmt.Errorf("document %s: %w", document.ID, err)
	}
	for _, g := range guidelines {
		if err := upsertGuideline(ctx, tx, g); err != nil {
			return nil, fmt.Errorf("guideline %s: %w", g.RuleID, err)
		}
	}
	persisted.GuidelinesSaved = len(guidelines)

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return persisted, nil
}
