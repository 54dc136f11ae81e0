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
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// readValue returns nil, nil if the key doesn't exist.
func readValue[T storage.Record](tx *badger.Txn, key []byte) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var record *T
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.Unmarshal[T](val)
		return err
	})
	return record, err
}

func readPortfolio(tx *badger.Txn, id string) (*core.Portfolio, error) {
	return readValue[core.Portfolio](tx, makePortfolioKey(id))
}

func readDocument(tx *badger.Txn, id string) (*core.Document, error) {
	return readValue[core.Document](tx, makeDocumentKey(id))
}

func readGuideline(tx *badger.Txn, key []byte) (*core.Guideline, error) {
	return readValue[core.Guideline](tx, key)
}

// writePortfolio upserts a portfolio, keeping the original CreatedAt.
func writePortfolio(tx *badger.Txn, p *core.Portfolio, now time.Time) error {
	old, err := readPortfolio(tx, p.ID)
	if err != nil {
		return err
	}
	if old != nil {
		p.CreatedAt = old.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	value, err := storage.Marshal(p)
	if err != nil {
		return err
	}
	return tx.Set(makePortfolioKey(p.ID), value)
}

// writeDocument upserts a document and its portfolio index entry. A document
// that moved between portfolios loses its old index entry.
func writeDocument(tx *badger.Txn, d *core.Document, now time.Time) error {
	old, err := readDocument(tx, d.ID)
	if err != nil {
		return err
	}
	if old != nil && old.PortfolioID != d.PortfolioID {
		if err := tx.Delete(makePortfolioDocKey(old.PortfolioID, d.ID)); err != nil {
			return err
		}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}

	value, err := storage.Marshal(d)
	if err != nil {
		return err
	}
	if err := tx.Set(makeDocumentKey(d.ID), value); err != nil {
		return err
	}
	return tx.Set(makePortfolioDocKey(d.PortfolioID, d.ID), nil)
}

// writeGuideline stores a guideline and keeps the missing-embedding index in step.
func writeGuideline(tx *badger.Txn, g *core.Guideline) error {
	value, err := storage.Marshal(g)
	if err != nil {
		return err
	}
	if err := tx.Set(makeGuidelineKey(g.PortfolioID, g.RuleID), value); err != nil {
		return err
	}
	missing := makeMissingKey(g.PortfolioID, g.RuleID)
	if g.HasEmbedding() {
		return tx.Delete(missing)
	}
	return tx.Set(missing, nil)
}

// scanPrefix calls fn with the value of every key under prefix, in key order.
func scanPrefix(tx *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := iter.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// collectKeys returns copies of every key under prefix.
func collectKeys(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys
}

func countPrefix(tx *badger.Txn, prefix []byte) (int, error) {
	return len(collectKeys(tx, prefix)), nil
}

func portfolioDocIDs(tx *badger.Txn, portfolioID string) ([]string, error) {
	keys := collectKeys(tx, makePortfolioDocPrefix(portfolioID))
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := docIDFromIndexKey(k); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// purgePortfolio deletes every row belonging to a portfolio inside tx and
// returns the number of guidelines removed. Keys are collected before
// deletion so no iterator is open while the transaction is modified.
func purgePortfolio(tx *badger.Txn, portfolioID string) (int, error) {
	guidelineKeys := collectKeys(tx, makeGuidelinePrefix(portfolioID))
	for _, k := range guidelineKeys {
		if err := tx.Delete(k); err != nil {
			return 0, err
		}
	}
	for _, k := range collectKeys(tx, makeMissingPrefix(portfolioID)) {
		if err := tx.Delete(k); err != nil {
			return 0, err
		}
	}

	docIDs, err := portfolioDocIDs(tx, portfolioID)
	if err != nil {
		return 0, err
	}
	for _, id := range docIDs {
		if err := tx.Delete(makeDocumentKey(id)); err != nil {
			return 0, err
		}
		if err := tx.Delete(makePortfolioDocKey(portfolioID, id)); err != nil {
			return 0, err
		}
	}

	if err := tx.Delete(makePortfolioKey(portfolioID)); err != nil {
		return 0, err
	}
	return len(guidelineKeys), nil
}
