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
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/guidelines/core"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// RankBySimilarity orders scored results by similarity descending, breaking
// ties by portfolio id then rule id, keeps the first topK and numbers them
// from 1. Every result must carry a Similarity.
func RankBySimilarity(results []*core.SearchResult, topK int) []*core.SearchResult {
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if c := cmp.Compare(*b.Similarity, *a.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.PortfolioID, b.PortfolioID); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []*core.SearchResult{}
	}
	for i, res := range results {
		res.Rank = i + 1
	}
	return results
}
