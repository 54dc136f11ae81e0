package storage

import (
	"testing"

	"github.com/poiesic/guidelines/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func sim(v float32) *float32 { return &v }

func TestRankBySimilarity(t *testing.T) {
	results := []*core.SearchResult{
		{PortfolioID: "P1", RuleID: "R3", Similarity: sim(0.7)},
		{PortfolioID: "P1", RuleID: "R2", Similarity: sim(0.9)},
		{PortfolioID: "P2", RuleID: "R1", Similarity: sim(0.7)},
		{PortfolioID: "P1", RuleID: "R1", Similarity: sim(0.7)},
		{PortfolioID: "P1", RuleID: "R9", Similarity: sim(0.6)},
	}

	ranked := RankBySimilarity(results, 4)

	require.Len(t, ranked, 4)
	got := make([]string, len(ranked))
	for i, r := range ranked {
		got[i] = r.PortfolioID + "/" + r.RuleID
		assert.Equal(t, i+1, r.Rank)
	}
	assert.Equal(t, []string{"P1/R2", "P1/R1", "P1/R3", "P2/R1"}, got)

	assert.Empty(t, RankBySimilarity(nil, 3))
	assert.NotNil(t, RankBySimilarity(nil, 3))
}
