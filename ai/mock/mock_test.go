package mock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/poiesic/guidelines/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_CannedExtraction(t *testing.T) {
	b := NewBackend()
	c, err := b.Generate(context.Background(), &ai.Request{Prompt: `Return JSON with "is_valid_document"`}, DefaultModel)
	require.NoError(t, err)

	var out struct {
		IsValid     bool   `json:"is_valid_document"`
		PortfolioID string `json:"portfolio_id"`
		Guidelines  []any  `json:"guidelines"`
	}
	require.NoError(t, json.Unmarshal([]byte(c.Content), &out))
	assert.True(t, out.IsValid)
	assert.Equal(t, MockPortfolioID, out.PortfolioID)
	assert.Len(t, out.Guidelines, 3)
	assert.Equal(t, 150, c.Usage.TotalTokens)
}

func TestBackend_CannedPlan(t *testing.T) {
	tests := []struct {
		query string
		topK  int
	}{
		{"restrictions on derivatives", 7},
		{"give me the top 5 equity rules", 5},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			prompt := "Fields: search_query, summary_instruction, top_k\nUser query: \"" + tt.query + "\"\n"
			out := Respond(&ai.Request{Prompt: prompt})

			var plan struct {
				SearchQuery string `json:"search_query"`
				TopK        int    `json:"top_k"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &plan))
			assert.Equal(t, tt.query, plan.SearchQuery)
			assert.Equal(t, tt.topK, plan.TopK)
		})
	}
}

func TestBackend_CannedSummaryCitesSources(t *testing.T) {
	prompt := "Use **Direct Answer:** format.\nSources:\n" +
		"- Guideline: Derivatives for hedging only. (Provenance: Part I, Section 2.1, page 2)\n" +
		"- Guideline: Max 60% equity. (Provenance: Part I, Section 1.1, page 1)\n"

	out := Respond(&ai.Request{Prompt: prompt})

	assert.Contains(t, out, "**Direct Answer:**")
	assert.Contains(t, out, "**Key Points:**")
	assert.Contains(t, out, "Part I, Section 2.1")
	assert.Contains(t, out, "Part I, Section 1.1")
}

func TestBackend_GenerateFunc(t *testing.T) {
	b := NewRecordingBackend()
	b.GenerateFunc = func(ctx context.Context, req *ai.Request) (string, error) {
		return "", errors.New("boom")
	}
	_, err := b.Generate(context.Background(), &ai.Request{Prompt: "x"}, DefaultModel)
	assert.Error(t, err)
	assert.Equal(t, 1, b.CallCount())
	assert.Equal(t, "x", b.Requests()[0].Prompt)
}

func TestEmbedder_Deterministic(t *testing.T) {
	e := NewEmbedder()
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "derivatives")
	require.NoError(t, err)
	b, err := e.EmbedText(ctx, "derivatives")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, Dimensions)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-4, "vectors are unit length")

	vs, err := e.EmbedTexts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vs, 2)
	assert.NotEqual(t, vs[0], vs[1])
	assert.Equal(t, 3, e.CallCount())

	e.Reset()
	assert.Equal(t, 0, e.CallCount())
}

func TestBackend_Recording(t *testing.T) {
	ctx := context.Background()
	pdf := ai.Attachment{Name: "ips.pdf", MIMEType: "application/pdf", Data: make([]byte, 1<<20)}

	plain := NewBackend()
	for range 50 {
		_, err := plain.Generate(ctx, &ai.Request{Prompt: "x", Attachments: []ai.Attachment{pdf}}, DefaultModel)
		require.NoError(t, err)
	}
	assert.Equal(t, 50, plain.CallCount())
	assert.Nil(t, plain.Requests(), "a plain backend keeps no requests")

	rec := NewRecordingBackend()
	_, err := rec.Generate(ctx, &ai.Request{Prompt: "x", Attachments: []ai.Attachment{pdf}}, DefaultModel)
	require.NoError(t, err)
	reqs := rec.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Attachments, 1)
	assert.Equal(t, "ips.pdf", reqs[0].Attachments[0].Name)
	assert.Equal(t, "application/pdf", reqs[0].Attachments[0].MIMEType)
	assert.Nil(t, reqs[0].Attachments[0].Data, "attachment bytes are dropped")
}
