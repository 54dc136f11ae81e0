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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// Repository implements storage.GuidelineRepository on BadgerDB.
type Repository struct {
	backend   *Backend
	ownsStore bool
	logger    *slog.Logger
}

var _ storage.GuidelineRepository = (*Repository)(nil)

// NewRepository creates a Repository over an open backend. The caller keeps
// ownership of the backend.
func NewRepository(backend *Backend) (*Repository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &Repository{
		backend: backend,
		logger:  slog.Default().With("component", "badger-repository"),
	}, nil
}

// OpenRepository opens a BadgerDB database at path and returns a Repository
// that closes it on Close.
func OpenRepository(path string, opts ...BackendOption) (*Repository, error) {
	backend, err := OpenBackend(path, false, opts...)
	if err != nil {
		return nil, err
	}
	repo, _ := NewRepository(backend)
	repo.ownsStore = true
	return repo, nil
}

// Close closes the backend when the repository opened it.
func (r *Repository) Close() error {
	if r.ownsStore && !r.backend.IsClosed() {
		return r.backend.Close()
	}
	return nil
}

func (r *Repository) check(ctx context.Context) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}

// Save writes the portfolio, the document and each guideline in separate
// transactions so one bad guideline does not block its siblings.
func (r *Repository) Save(ctx context.Context, portfolio *core.Portfolio, document *core.Document, guidelines []*core.Guideline) (*core.SaveResult, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	result := &core.SaveResult{}
	now := time.Now().UTC()

	if err := r.savePortfolio(portfolio, now); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("portfolio: %v", err))
	} else {
		result.PortfolioSaved = true
	}

	if document != nil {
		if err := r.saveDocument(document, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("document: %v", err))
		} else {
			result.DocumentSaved = true
		}
	}

	for _, g := range guidelines {
		if err := r.saveGuideline(g); err != nil {
			result.GuidelinesFailed++
			ruleID := ""
			if g != nil {
				ruleID = g.RuleID
			}
			result.Errors = append(result.Errors, fmt.Sprintf("guideline %s: %v", ruleID, err))
			r.logger.Warn("guideline not saved", "rule_id", ruleID, "err", err)
			continue
		}
		result.GuidelinesSaved++
	}
	return result, nil
}

func (r *Repository) savePortfolio(p *core.Portfolio, now time.Time) error {
	if err := core.ValidatePortfolio(p); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := writePortfolio(tx, p, now); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func (r *Repository) saveDocument(d *core.Document, now time.Time) error {
	if err := core.ValidateDocument(d); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		p, err := readPortfolio(tx, d.PortfolioID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("portfolio %s: %w", d.PortfolioID, storage.ErrNotFound)
		}
		if err := writeDocument(tx, d, now); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func (r *Repository) saveGuideline(g *core.Guideline) error {
	if err := core.ValidateGuideline(g); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		p, err := readPortfolio(tx, g.PortfolioID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("portfolio %s: %w", g.PortfolioID, storage.ErrNotFound)
		}
		if err := writeGuideline(tx, g); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetPortfolio retrieves a portfolio by id.
func (r *Repository) GetPortfolio(ctx context.Context, id string) (*core.Portfolio, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	var p *core.Portfolio
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		p, err = readPortfolio(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

// ListPortfolios returns every portfolio ordered by id.
func (r *Repository) ListPortfolios(ctx context.Context) ([]*core.Portfolio, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	portfolios := []*core.Portfolio{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(portfolioPrefix), func(val []byte) error {
			p, err := storage.Unmarshal[core.Portfolio](val)
			if err != nil {
				return err
			}
			portfolios = append(portfolios, p)
			return nil
		})
	}, false)
	return portfolios, err
}

// GetDocument retrieves a document by id.
func (r *Repository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	var d *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		d, err = readDocument(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

// ListDocuments returns the documents of one portfolio ordered by id.
func (r *Repository) ListDocuments(ctx context.Context, portfolioID string) ([]*core.Document, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	docs := []*core.Document{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := portfolioDocIDs(tx, portfolioID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			d, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if d != nil {
				docs = append(docs, d)
			}
		}
		return nil
	}, false)
	return docs, err
}

// GetGuideline retrieves one guideline by its composite key.
func (r *Repository) GetGuideline(ctx context.Context, portfolioID, ruleID string) (*core.Guideline, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	var g *core.Guideline
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		g, err = readGuideline(tx, makeGuidelineKey(portfolioID, ruleID))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, storage.ErrNotFound
	}
	return g, nil
}

// ListGuidelines returns the guidelines of one portfolio ordered by rule id.
func (r *Repository) ListGuidelines(ctx context.Context, portfolioID string) ([]*core.Guideline, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	guidelines := []*core.Guideline{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeGuidelinePrefix(portfolioID), func(val []byte) error {
			g, err := storage.Unmarshal[core.Guideline](val)
			if err != nil {
				return err
			}
			guidelines = append(guidelines, g)
			return nil
		})
	}, false)
	return guidelines, err
}

// CountGuidelines counts guidelines of one portfolio, or all when portfolioID is empty.
func (r *Repository) CountGuidelines(ctx context.Context, portfolioID string) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	var n int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		n, err = countPrefix(tx, makeGuidelinePrefix(portfolioID))
		return err
	}, false)
	return n, err
}

// DeletePortfolio removes a portfolio with its documents and guidelines.
func (r *Repository) DeletePortfolio(ctx context.Context, id string) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		p, err := readPortfolio(tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return storage.ErrNotFound
		}
		if _, err := purgePortfolio(tx, id); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteDocument removes a document and the guidelines extracted from it.
func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		d, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return storage.ErrNotFound
		}

		var doomed []*core.Guideline
		err = scanPrefix(tx, makeGuidelinePrefix(d.PortfolioID), func(val []byte) error {
			g, err := storage.Unmarshal[core.Guideline](val)
			if err != nil {
				return err
			}
			if g.DocID == id {
				doomed = append(doomed, g)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, g := range doomed {
			if err := tx.Delete(makeGuidelineKey(g.PortfolioID, g.RuleID)); err != nil {
				return err
			}
			if err := tx.Delete(makeMissingKey(g.PortfolioID, g.RuleID)); err != nil {
				return err
			}
		}
		if err := tx.Delete(makePortfolioDocKey(d.PortfolioID, id)); err != nil {
			return err
		}
		if err := tx.Delete(makeDocumentKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListMissingEmbeddings returns guidelines without an embedding.
func (r *Repository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*core.Guideline, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	guidelines := []*core.Guideline{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeMissingPrefix("")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if limit > 0 && len(guidelines) >= limit {
				break
			}
			g, err := readGuideline(tx, guidelineKeyFromMissing(iter.Item().Key()))
			if err != nil {
				return err
			}
			if g != nil {
				guidelines = append(guidelines, g)
			}
		}
		return nil
	}, false)
	return guidelines, err
}

// CountMissingEmbeddings returns the number of guidelines without an embedding.
func (r *Repository) CountMissingEmbeddings(ctx context.Context) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	var n int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		n, err = countPrefix(tx, makeMissingPrefix(""))
		return err
	}, false)
	return n, err
}

// SetEmbeddings stamps vectors on guidelines in one transaction.
func (r *Repository) SetEmbeddings(ctx context.Context, updates []core.EmbeddingUpdate) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	var written int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, u := range updates {
			if len(u.Vector) == 0 {
				continue
			}
			g, err := readGuideline(tx, makeGuidelineKey(u.PortfolioID, u.RuleID))
			if err != nil {
				return err
			}
			if g == nil {
				r.logger.Debug("guideline vanished before embedding was stored",
					"portfolio_id", u.PortfolioID, "rule_id", u.RuleID)
				continue
			}
			if !u.Matches(g) {
				r.logger.Debug("guideline changed before embedding was stored",
					"portfolio_id", u.PortfolioID, "rule_id", u.RuleID)
				continue
			}
			g.Embedding = u.Vector
			if err := writeGuideline(tx, g); err != nil {
				return err
			}
			written++
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return written, nil
}
