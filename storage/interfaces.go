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

package storage

import (
	"context"

	"github.com/poiesic/guidelines/core"
)

// GuidelineRepository stores portfolios, documents and guidelines and answers
// text and vector searches over guidelines.
//
// A nil or empty portfolioIDs argument means "all portfolios".
type GuidelineRepository interface {
	// Save inserts or updates the portfolio, the document and each guideline.
	// Guideline failures are counted in the result and do not stop the
	// remaining guidelines from being written.
	Save(ctx context.Context, portfolio *core.Portfolio, document *core.Document, guidelines []*core.Guideline) (*core.SaveResult, error)

	// Replace atomically deletes every portfolio, document and guideline row
	// of the extraction's portfolio and inserts the new ones. Any error rolls
	// back the whole replace; readers never observe a partial state.
	Replace(ctx context.Context, result *core.ExtractionResult) (*core.PersistResult, error)

	// SearchByText returns guidelines whose text contains query, ignoring
	// case, ordered by portfolio id then rule id. limit <= 0 means no limit.
	// Results carry no similarity.
	SearchByText(ctx context.Context, query string, portfolioIDs []string, limit int) ([]*core.SearchResult, error)

	// SemanticSearch ranks embedded guidelines by cosine similarity to vector.
	// Results below threshold are discarded; the rest are ordered by
	// similarity descending, ties by portfolio id then rule id ascending, and
	// ranked 1..N. Returns ErrInvalidQuery when topK < 1 or vector is empty.
	SemanticSearch(ctx context.Context, vector []float32, portfolioIDs []string, topK int, threshold float32) ([]*core.SearchResult, error)

	// ListMissingEmbeddings returns guidelines without an embedding, ordered
	// by portfolio id then rule id. limit <= 0 means no limit.
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*core.Guideline, error)

	// SetEmbeddings stamps vectors on guidelines in one transaction and
	// returns how many were written. Updates for guidelines that no longer
	// exist are skipped.
	SetEmbeddings(ctx context.Context, updates []core.EmbeddingUpdate) (int, error)

	// CountMissingEmbeddings returns the number of guidelines without an embedding.
	CountMissingEmbeddings(ctx context.Context) (int, error)

	// GetPortfolio returns ErrNotFound for an unknown id.
	GetPortfolio(ctx context.Context, id string) (*core.Portfolio, error)

	// ListPortfolios returns every portfolio ordered by id.
	ListPortfolios(ctx context.Context) ([]*core.Portfolio, error)

	// GetDocument returns ErrNotFound for an unknown id.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// ListDocuments returns the documents of one portfolio ordered by id.
	ListDocuments(ctx context.Context, portfolioID string) ([]*core.Document, error)

	// GetGuideline returns ErrNotFound for an unknown (portfolioID, ruleID).
	GetGuideline(ctx context.Context, portfolioID, ruleID string) (*core.Guideline, error)

	// ListGuidelines returns the guidelines of one portfolio ordered by rule id.
	ListGuidelines(ctx context.Context, portfolioID string) ([]*core.Guideline, error)

	// CountGuidelines counts the guidelines of one portfolio, or of all
	// portfolios when portfolioID is empty.
	CountGuidelines(ctx context.Context, portfolioID string) (int, error)

	// DeletePortfolio removes a portfolio with its documents and guidelines.
	DeletePortfolio(ctx context.Context, id string) error

	// DeleteDocument removes a document and the guidelines extracted from it.
	DeleteDocument(ctx context.Context, id string) error

	// Close releases resources held by the repository.
	Close() error
}
