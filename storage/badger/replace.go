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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// Replace supersedes everything stored for the extraction's portfolio in a
// single read-write transaction. Nothing is committed unless every row is
// written.
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
	persisted := &core.PersistResult{
		PortfolioID: portfolio.ID,
		DocID:       document.ID,
	}
	now := time.Now().UTC()

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readPortfolio(tx, portfolio.ID)
		if err != nil {
			return err
		}
		existingDoc, err := readDocument(tx, document.ID)
		if err != nil {
			return err
		}

		removed, err := purgePortfolio(tx, portfolio.ID)
		if err != nil {
			return err
		}
		persisted.PreviousGuidelines = removed
		persisted.PortfolioCreated = existing == nil
		persisted.DocumentCreated = existingDoc == nil
		persisted.WasReingested = existing != nil || removed > 0

		if existing != nil {
			portfolio.CreatedAt = existing.CreatedAt
		}
		if err := writePortfolio(tx, &portfolio, now); err != nil {
			return err
		}
		document.CreatedAt = now
		if err := writeDocument(tx, &document, now); err != nil {
			return err
		}
		for _, g := range result.Guidelines {
			if err := writeGuideline(tx, g); err != nil {
				return fmt.Errorf("guideline %s: %w", g.RuleID, err)
			}
		}
		persisted.GuidelinesSaved = len(result.Guidelines)
		return tx.Commit()
	}, true)
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
