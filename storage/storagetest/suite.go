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

// Package storagetest holds the behavioral test suite every
// storage.GuidelineRepository implementation must pass.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty repository. The suite closes it.
type Factory func(t *testing.T) storage.GuidelineRepository

// Extraction builds a valid extraction for portfolioID whose guidelines have
// the given rule ids. Texts are "Rule <id> for <portfolio>".
func Extraction(portfolioID, docID string, ruleIDs ...string) *core.ExtractionResult {
	r := &core.ExtractionResult{
		IsValid:           true,
		ValidationSummary: "valid",
		Portfolio:         core.Portfolio{ID: portfolioID, Name: portfolioID + " Fund"},
		Document:          core.Document{ID: docID, PortfolioID: portfolioID, Name: docID, Date: "2024-03-31"},
		Digest:            "digest of " + docID,
	}
	for i, id := range ruleIDs {
		r.Guidelines = append(r.Guidelines, &core.Guideline{
			PortfolioID: portfolioID,
			RuleID:      id,
			DocID:       docID,
			Part:        "Part I",
			Section:     fmt.Sprintf("Section %d", i+1),
			Text:        fmt.Sprintf("Rule %s for %s", id, portfolioID),
			Page:        i + 1,
			Provenance:  fmt.Sprintf("Part I, Section %d", i+1),
		})
	}
	return r
}

// Run executes the whole suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo storage.GuidelineRepository)
	}{
		{"ReplaceInsertsEverything", testReplaceInserts},
		{"ReingestLeavesOnlySecondSet", testReingest},
		{"ReplaceRollsBackOnInvalidRow", testReplaceRollback},
		{"ReplaceIsAtomicForReaders", testReplaceAtomicForReaders},
		{"StructuredDataRoundTrip", testStructuredData},
		{"SaveToleratesBadGuidelines", testSaveTolerant},
		{"SearchByText", testSearchByText},
		{"SemanticSearchThresholdAndOrder", testSemanticSearch},
		{"SemanticSearchRejectsBadQuery", testSemanticSearchInvalid},
		{"MissingEmbeddings", testMissingEmbeddings},
		{"LookupsAndNotFound", testLookups},
		{"DeletePortfolio", testDeletePortfolio},
		{"DeleteDocument", testDeleteDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo(t)
			t.Cleanup(func() { _ = repo.Close() })
			tt.fn(t, repo)
		})
	}
}

func ruleIDs(gs []*core.Guideline) []string {
	ids := make([]string, len(gs))
	for i, g := range gs {
		ids[i] = g.RuleID
	}
	return ids
}

func testReplaceInserts(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()

	res, err := repo.Replace(ctx, Extraction("P1", "P1_2024-03-31", "R1", "R2", "R3"))
	require.NoError(t, err)

	assert.Equal(t, "P1", res.PortfolioID)
	assert.Equal(t, "P1_2024-03-31", res.DocID)
	assert.Equal(t, 3, res.GuidelinesSaved)
	assert.True(t, res.PortfolioCreated)
	assert.True(t, res.DocumentCreated)
	assert.False(t, res.WasReingested)

	p, err := repo.GetPortfolio(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1 Fund", p.Name)

	d, err := repo.GetDocument(ctx, "P1_2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, "digest of P1_2024-03-31", d.Digest)
	assert.Equal(t, "2024-03-31", d.Date)

	n, err := repo.CountGuidelines(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testReingest(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()

	_, err := repo.Replace(ctx, Extraction("P1", "P1_a", "R1", "R2", "R3"))
	require.NoError(t, err)
	_, err = repo.Replace(ctx, Extraction("P2", "P2_a", "X1"))
	require.NoError(t, err)

	res, err := repo.Replace(ctx, Extraction("P1", "P1_b", "R3", "R4"))
	require.NoError(t, err)

	assert.True(t, res.WasReingested)
	assert.False(t, res.PortfolioCreated)
	assert.True(t, res.DocumentCreated)
	assert.Equal(t, 3, res.PreviousGuidelines)
	assert.Equal(t, 2, res.GuidelinesSaved)

	gs, err := repo.ListGuidelines(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"R3", "R4"}, ruleIDs(gs), "no duplicates, no leftovers")
	for _, g := range gs {
		assert.Equal(t, "P1_b", g.DocID)
	}

	docs, err := repo.ListDocuments(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "P1_b", docs[0].ID)

	_, err = repo.GetDocument(ctx, "P1_a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	others, err := repo.ListGuidelines(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, []string{"X1"}, ruleIDs(others), "other portfolios are untouched")

	again, err := repo.Replace(ctx, Extraction("P1", "P1_b", "R3", "R4"))
	require.NoError(t, err)
	assert.False(t, again.DocumentCreated, "same document id seen before")
}

func testReplaceRollback(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()

	_, err := repo.Replace(ctx, Extraction("P1", "P1_a", "R1", "R2"))
	require.NoError(t, err)

	bad := Extraction("P1", "P1_b", "R7", "R8")
	bad.Guidelines[1].Text = "   "
	_, err = repo.Replace(ctx, bad)
	require.Error(t, err)

	dup := Extraction("P1", "P1_c", "R9", "R9")
	_, err = repo.Replace(ctx, dup)
	require.Error(t, err)

	gs, err := repo.ListGuidelines(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "R2"}, ruleIDs(gs), "prior state is untouched")

	_, err = repo.GetDocument(ctx, "P1_b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testReplaceAtomicForReaders(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	small := Extraction("P1", "P1_small", "A1", "A2", "A3")
	large := Extraction("P1", "P1_large", "B1", "B2", "B3", "B4", "B5")

	_, err := repo.Replace(ctx, small)
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})
	observed := make(chan int, 1024)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			n, err := repo.CountGuidelines(ctx, "P1")
			if err == nil {
				select {
				case observed <- n:
				default:
				}
			}
		}
	}()

	for i := 0; i < 20; i++ {
		next := small
		if i%2 == 0 {
			next = large
		}
		_, err := repo.Replace(ctx, next)
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
	close(observed)

	for n := range observed {
		assert.Contains(t, []int{3, 5}, n, "readers never see a half-replaced portfolio")
	}
}

func testStructuredData(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	ext := Extraction("P1", "P1_a", "R1", "R2")
	ext.Guidelines[0].StructuredData = json.RawMessage(`{"max_pct":60,"assets":["equity"]}`)
	ext.Guidelines[0].Subsection = "1.1(a)"

	_, err := repo.Replace(ctx, ext)
	require.NoError(t, err)

	g, err := repo.GetGuideline(ctx, "P1", "R1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_pct":60,"assets":["equity"]}`, string(g.StructuredData))
	assert.Equal(t, "1.1(a)", g.Subsection)
	assert.Equal(t, 1, g.Page)

	g2, err := repo.GetGuideline(ctx, "P1", "R2")
	require.NoError(t, err)
	assert.Empty(t, g2.StructuredData)
	assert.False(t, g2.HasEmbedding())
}

func testSaveTolerant(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	ext := Extraction("P1", "P1_a", "R1", "R2", "R3")
	ext.Guidelines[1].Text = ""
	orphan := &core.Guideline{PortfolioID: "NOPE", RuleID: "O1", Text: "orphan"}

	res, err := repo.Save(ctx, &ext.Portfolio, &ext.Document, append(ext.Guidelines, orphan))
	require.NoError(t, err)

	assert.True(t, res.PortfolioSaved)
	assert.True(t, res.DocumentSaved)
	assert.Equal(t, 2, res.GuidelinesSaved)
	assert.Equal(t, 2, res.GuidelinesFailed)
	assert.Len(t, res.Errors, 2)

	gs, err := repo.ListGuidelines(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "R3"}, ruleIDs(gs))
}

func testSearchByText(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	a := Extraction("P2", "P2_a", "R2", "R1")
	a.Guidelines[0].Text = "No DERIVATIVES except for hedging"
	a.Guidelines[1].Text = "Derivatives exposure below 10%"
	b := Extraction("P1", "P1_a", "R1", "R2")
	b.Guidelines[0].Text = "derivatives prohibited"
	b.Guidelines[1].Text = "Cash at most 5%"
	_, err := repo.Replace(ctx, a)
	require.NoError(t, err)
	_, err = repo.Replace(ctx, b)
	require.NoError(t, err)

	results, err := repo.SearchByText(ctx, "Derivatives", nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	got := make([]string, len(results))
	for i, r := range results {
		got[i] = r.PortfolioID + "/" + r.RuleID
		assert.Nil(t, r.Similarity)
		assert.Equal(t, i+1, r.Rank)
	}
	assert.Equal(t, []string{"P1/R1", "P2/R1", "P2/R2"}, got, "ordered by portfolio then rule id")
	assert.Equal(t, "P1 Fund", results[0].PortfolioName)

	scoped, err := repo.SearchByText(ctx, "derivatives", []string{"P2"}, 1)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "P2", scoped[0].PortfolioID)

	_, err = repo.SearchByText(ctx, "  ", nil, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	c := Extraction("P3", "P3_a", "R1")
	c.Guidelines[0].Text = "Holdings in ÉMERGENT CAFÉ chains are capped"
	_, err = repo.Replace(ctx, c)
	require.NoError(t, err)
	for _, q := range []string{"café", "CAFÉ", "émergent café"} {
		folded, err := repo.SearchByText(ctx, q, nil, 0)
		require.NoError(t, err)
		require.Len(t, folded, 1, "non-ASCII case folding for %q", q)
		assert.Equal(t, "P3", folded[0].PortfolioID)
	}
}

func testSemanticSearch(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	_, err := repo.Replace(ctx, Extraction("P1", "P1_a", "R1", "R2", "R3", "R4", "R5"))
	require.NoError(t, err)
	_, err = repo.Replace(ctx, Extraction("P2", "P2_a", "S1"))
	require.NoError(t, err)

	written, err := repo.SetEmbeddings(ctx, []core.EmbeddingUpdate{
		{PortfolioID: "P1", RuleID: "R1", Vector: []float32{1, 0, 0}},     // 1.0
		{PortfolioID: "P1", RuleID: "R2", Vector: []float32{0.6, 0.8, 0}}, // 0.6
		{PortfolioID: "P1", RuleID: "R3", Vector: []float32{0, 1, 0}},     // 0.0
		{PortfolioID: "P1", RuleID: "R4", Vector: []float32{2, 0, 0}},     // 1.0, tie with R1
		{PortfolioID: "P2", RuleID: "S1", Vector: []float32{1, 0, 0}},     // 1.0, other portfolio
	})
	require.NoError(t, err)
	assert.Equal(t, 5, written)

	query := []float32{1, 0, 0}
	results, err := repo.SemanticSearch(ctx, query, []string{"P1"}, 10, 0.5)
	require.NoError(t, err)

	require.Len(t, results, 3, "R3 is below threshold and R5 has no embedding")
	assert.Equal(t, []string{"R1", "R4", "R2"}, []string{results[0].RuleID, results[1].RuleID, results[2].RuleID})
	for i, r := range results {
		require.NotNil(t, r.Similarity)
		assert.GreaterOrEqual(t, *r.Similarity, float32(0.5))
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, "P1 Fund", r.PortfolioName)
		if i > 0 {
			assert.LessOrEqual(t, *r.Similarity, *results[i-1].Similarity, "non-increasing by rank")
		}
	}

	top1, err := repo.SemanticSearch(ctx, query, nil, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, top1, 2)
	assert.Equal(t, "P1", top1[0].PortfolioID)
	assert.Equal(t, "R1", top1[0].RuleID)

	none, err := repo.SemanticSearch(ctx, []float32{0, 0, 1}, nil, 5, 0.5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSemanticSearchInvalid(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	_, err := repo.SemanticSearch(ctx, []float32{1}, nil, 0, 0.5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, err = repo.SemanticSearch(ctx, nil, nil, 5, 0.5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func testMissingEmbeddings(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	_, err := repo.Replace(ctx, Extraction("P1", "P1_a", "R1", "R2", "R3"))
	require.NoError(t, err)

	n, err := repo.CountMissingEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	first, err := repo.ListMissingEmbeddings(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "R2"}, ruleIDs(first))

	written, err := repo.SetEmbeddings(ctx, []core.EmbeddingUpdate{
		{PortfolioID: "P1", RuleID: "R1", Vector: []float32{0.1, 0.2}},
		{PortfolioID: "P1", RuleID: "GONE", Vector: []float32{0.1, 0.2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written, "vanished guidelines are skipped")

	rest, err := repo.ListMissingEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"R2", "R3"}, ruleIDs(rest))

	g, err := repo.GetGuideline(ctx, "P1", "R1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, g.Embedding)

	r2, err := repo.GetGuideline(ctx, "P1", "R2")
	require.NoError(t, err)
	written, err = repo.SetEmbeddings(ctx, []core.EmbeddingUpdate{
		{PortfolioID: "P1", RuleID: "R2", Text: "stale text", Vector: []float32{0.3, 0.4}},
		{PortfolioID: "P1", RuleID: "R1", Text: g.Text, Vector: []float32{0.3, 0.4}},
	})
	require.NoError(t, err)
	assert.Zero(t, written, "changed text and already embedded rows are left alone")

	written, err = repo.SetEmbeddings(ctx, []core.EmbeddingUpdate{
		{PortfolioID: "P1", RuleID: "R2", Text: r2.Text, Vector: []float32{0.3, 0.4}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	written, err = repo.SetEmbeddings(ctx, []core.EmbeddingUpdate{
		{PortfolioID: "P1", RuleID: "R2", Vector: nil},
	})
	require.NoError(t, err)
	assert.Zero(t, written)

	_, err = repo.Replace(ctx, Extraction("P1", "P1_b", "R1"))
	require.NoError(t, err)
	n, err = repo.CountMissingEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "re-ingested guidelines start without embeddings")
}

func testLookups(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	_, err := repo.Replace(ctx, Extraction("P2", "P2_a", "R1"))
	require.NoError(t, err)
	_, err = repo.Replace(ctx, Extraction("P1", "P1_a", "R1", "R2"))
	require.NoError(t, err)

	ps, err := repo.ListPortfolios(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "P1", ps[0].ID)
	assert.Equal(t, "P2", ps[1].ID)

	total, err := repo.CountGuidelines(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, err = repo.GetPortfolio(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.GetGuideline(ctx, "P1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	empty, err := repo.ListGuidelines(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDeletePortfolio(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	_, err := repo.Replace(ctx, Extraction("P1", "P1_a", "R1", "R2"))
	require.NoError(t, err)
	_, err = repo.Replace(ctx, Extraction("P10", "P10_a", "R1"))
	require.NoError(t, err)

	require.NoError(t, repo.DeletePortfolio(ctx, "P1"))
	assert.ErrorIs(t, repo.DeletePortfolio(ctx, "P1"), storage.ErrNotFound)

	_, err = repo.GetDocument(ctx, "P1_a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	n, err := repo.CountGuidelines(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "P10 shares a prefix with P1 but survives")
	missing, err := repo.CountMissingEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, missing)
}

func testDeleteDocument(t *testing.T, repo storage.GuidelineRepository) {
	ctx := context.Background()
	ext := Extraction("P1", "P1_a", "R1", "R2")
	_, err := repo.Replace(ctx, ext)
	require.NoError(t, err)

	other := &core.Document{ID: "P1_b", PortfolioID: "P1", Name: "addendum"}
	res, err := repo.Save(ctx, &ext.Portfolio, other, []*core.Guideline{
		{PortfolioID: "P1", RuleID: "R3", DocID: "P1_b", Text: "addendum rule"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.GuidelinesSaved)

	require.NoError(t, repo.DeleteDocument(ctx, "P1_a"))
	assert.ErrorIs(t, repo.DeleteDocument(ctx, "P1_a"), storage.ErrNotFound)

	gs, err := repo.ListGuidelines(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"R3"}, ruleIDs(gs))

	docs, err := repo.ListDocuments(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "P1_b", docs[0].ID)
}
