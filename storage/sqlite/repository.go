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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

const guidelineColumns = `portfolio_id, rule_id, doc_id, part, section, subsection,
	text, page, provenance, structured_data, embedding`

const documentColumns = `doc_id, portfolio_id, doc_name, doc_date, digest_text,
	source_name, fingerprint, created_at`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func embeddingValue(v []float32) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return storage.MarshalVector(v)
}

func structuredValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanGuideline(row scanner) (*core.Guideline, error) {
	var g core.Guideline
	var docID, part, section, subsection, provenance, structured sql.NullString
	var page sql.NullInt64
	var embedding []byte
	err := row.Scan(&g.PortfolioID, &g.RuleID, &docID, &part, &section, &subsection,
		&g.Text, &page, &provenance, &structured, &embedding)
	if err != nil {
		return nil, err
	}
	g.DocID = docID.String
	g.Part = part.String
	g.Section = section.String
	g.Subsection = subsection.String
	g.Page = int(page.Int64)
	g.Provenance = provenance.String
	if structured.Valid && structured.String != "" {
		g.StructuredData = json.RawMessage(structured.String)
	}
	if g.Embedding, err = storage.UnmarshalVector(embedding); err != nil {
		return nil, err
	}
	return &g, nil
}

func scanDocument(row scanner) (*core.Document, error) {
	var d core.Document
	var date, digest, sourceName sql.NullString
	var fingerprint sql.NullInt64
	err := row.Scan(&d.ID, &d.PortfolioID, &d.Name, &date, &digest, &sourceName, &fingerprint, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Date = date.String
	d.Digest = digest.String
	d.SourceName = sourceName.String
	d.Fingerprint = core.ID(uint64(fingerprint.Int64))
	return &d, nil
}

func upsertPortfolio(ctx context.Context, db execer, p *core.Portfolio, now time.Time) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := db.ExecContext(ctx, `
		INSERT INTO portfolios (portfolio_id, portfolio_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(portfolio_id) DO UPDATE SET
			portfolio_name = excluded.portfolio_name,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.CreatedAt, p.UpdatedAt)
	return err
}

func upsertDocument(ctx context.Context, db execer, d *core.Document, now time.Time) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			portfolio_id = excluded.portfolio_id,
			doc_name = excluded.doc_name,
			doc_date = excluded.doc_date,
			digest_text = excluded.digest_text,
			source_name = excluded.source_name,
			fingerprint = excluded.fingerprint
	`, d.ID, d.PortfolioID, d.Name, nullString(d.Date), nullString(d.Digest),
		nullString(d.SourceName), nullInt(int64(d.Fingerprint)), d.CreatedAt)
	return err
}

func upsertGuideline(ctx context.Context, db execer, g *core.Guideline) error {
	embedding, err := embeddingValue(g.Embedding)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO guidelines (`+guidelineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, rule_id) DO UPDATE SET
			doc_id = excluded.doc_id,
			part = excluded.part,
			section = excluded.section,
			subsection = excluded.subsection,
			text = excluded.text,
			page = excluded.page,
			provenance = excluded.provenance,
			structured_data = excluded.structured_data,
			embedding = excluded.embedding
	`, g.PortfolioID, g.RuleID, nullString(g.DocID), nullString(g.Part), nullString(g.Section),
		nullString(g.Subsection), g.Text, nullInt(int64(g.Page)), nullString(g.Provenance),
		structuredValue(g.StructuredData), embedding)
	return err
}

// Save writes the portfolio, the document and each guideline as separate
// statements so one bad guideline does not block its siblings.
func (r *Repository) Save(ctx context.Context, portfolio *core.Portfolio, document *core.Document, guidelines []*core.Guideline) (*core.SaveResult, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	result := &core.SaveResult{}
	now := time.Now().UTC()

	if err := core.ValidatePortfolio(portfolio); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("portfolio: %v", err))
	} else if err := upsertPortfolio(ctx, r.db, portfolio, now); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("portfolio: %v", err))
	} else {
		result.PortfolioSaved = true
	}

	if document != nil {
		if err := core.ValidateDocument(document); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("document: %v", err))
		} else if err := upsertDocument(ctx, r.db, document, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("document: %v", err))
		} else {
			result.DocumentSaved = true
		}
	}

	for _, g := range guidelines {
		err := core.ValidateGuideline(g)
		if err == nil {
			err = upsertGuideline(ctx, r.db, g)
		}
		if err != nil {
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

// GetPortfolio retrieves a portfolio by id.
func (r *Repository) GetPortfolio(ctx context.Context, id string) (*core.Portfolio, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	var p core.Portfolio
	err := r.db.QueryRowContext(ctx, `
		SELECT portfolio_id, portfolio_name, created_at, updated_at
		FROM portfolios WHERE portfolio_id = ?
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPortfolios returns every portfolio ordered by id.
func (r *Repository) ListPortfolios(ctx context.Context) ([]*core.Portfolio, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT portfolio_id, portfolio_name, created_at, updated_at
		FROM portfolios ORDER BY portfolio_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	portfolios := []*core.Portfolio{}
	for rows.Next() {
		var p core.Portfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		portfolios = append(portfolios, &p)
	}
	return portfolios, rows.Err()
}

// GetDocument retrieves a document by id.
func (r *Repository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return d, err
}

// ListDocuments returns the documents of one portfolio ordered by id.
func (r *Repository) ListDocuments(ctx context.Context, portfolioID string) ([]*core.Document, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE portfolio_id = ? ORDER BY doc_id`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*core.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetGuideline retrieves one guideline by its composite key.
func (r *Repository) GetGuideline(ctx context.Context, portfolioID, ruleID string) (*core.Guideline, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+guidelineColumns+` FROM guidelines WHERE portfolio_id = ? AND rule_id = ?`,
		portfolioID, ruleID)
	g, err := scanGuideline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return g, err
}

func (r *Repository) queryGuidelines(ctx context.Context, query string, args ...any) ([]*core.Guideline, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	guidelines := []*core.Guideline{}
	for rows.Next() {
		g, err := scanGuideline(rows)
		if err != nil {
			return nil, err
		}
		guidelines = append(guidelines, g)
	}
	return guidelines, rows.Err()
}

// ListGuidelines returns the guidelines of one portfolio ordered by rule id.
func (r *Repository) ListGuidelines(ctx context.Context, portfolioID string) ([]*core.Guideline, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	return r.queryGuidelines(ctx,
		`SELECT `+guidelineColumns+` FROM guidelines WHERE portfolio_id = ? ORDER BY rule_id`, portfolioID)
}

// CountGuidelines counts guidelines of one portfolio, or all when portfolioID is empty.
func (r *Repository) CountGuidelines(ctx context.Context, portfolioID string) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	var n int
	var err error
	if portfolioID == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guidelines`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM guidelines WHERE portfolio_id = ?`, portfolioID).Scan(&n)
	}
	return n, err
}

// DeletePortfolio removes a portfolio; documents and guidelines follow by cascade.
func (r *Repository) DeletePortfolio(ctx context.Context, id string) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM portfolios WHERE portfolio_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document and the guidelines extracted from it.
func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM guidelines WHERE doc_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit()
}

// ListMissingEmbeddings returns guidelines without an embedding.
func (r *Repository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*core.Guideline, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	return r.queryGuidelines(ctx, `
		SELECT `+guidelineColumns+` FROM guidelines
		WHERE embedding IS NULL
		ORDER BY portfolio_id, rule_id
		LIMIT ?
	`, limit)
}

// CountMissingEmbeddings returns the number of guidelines without an embedding.
func (r *Repository) CountMissingEmbeddings(ctx context.Context) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guidelines WHERE embedding IS NULL`).Scan(&n)
	return n, err
}

// SetEmbeddings stamps vectors on guidelines in one transaction.
func (r *Repository) SetEmbeddings(ctx context.Context, updates []core.EmbeddingUpdate) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var written int
	for _, u := range updates {
		if len(u.Vector) == 0 {
			continue
		}
		data, err := storage.MarshalVector(u.Vector)
		if err != nil {
			return 0, err
		}
		query := `UPDATE guidelines SET embedding = ? WHERE portfolio_id = ? AND rule_id = ?`
		args := []any{data, u.PortfolioID, u.RuleID}
		if u.Text != "" {
			query += ` AND embedding IS NULL AND text = ?`
			args = append(args, u.Text)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			r.logger.Debug("guideline vanished or changed before embedding was stored",
				"portfolio_id", u.PortfolioID, "rule_id", u.RuleID)
			continue
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}
