package openai

import (
	"testing"

	"github.com/poiesic/guidelines/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(&ai.Request{
		System:      "extract rules",
		Prompt:      "here is the document",
		Attachments: []ai.Attachment{{Name: "a.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")}},
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	require.Len(t, msgs[1].Parts, 2)
	assert.Equal(t, llms.TextPart("here is the document"), msgs[1].Parts[0])
	assert.Equal(t, llms.BinaryPart("application/pdf", []byte("%PDF-1.4")), msgs[1].Parts[1])

	t.Run("no system message", func(t *testing.T) {
		msgs := buildMessages(&ai.Request{Prompt: "hi"})
		require.Len(t, msgs, 1)
		assert.Equal(t, llms.ChatMessageTypeHuman, msgs[0].Role)
	})
}

func TestUsageFrom(t *testing.T) {
	tests := []struct {
		name string
		info map[string]any
		want *ai.Usage
	}{
		{"nil info", nil, nil},
		{"no token keys", map[string]any{"Model": "x"}, nil},
		{
			"all counts",
			map[string]any{"PromptTokens": 10, "CompletionTokens": 5, "TotalTokens": 15},
			&ai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
		{
			"total derived",
			map[string]any{"PromptTokens": 7, "CompletionTokens": float64(3)},
			&ai.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usageFrom(tt.info))
		})
	}
}

func TestNewBackend_LocalServerWithoutKey(t *testing.T) {
	cfg := ai.NewConfig(ai.WithOpenAIHost("http://localhost:11434"))
	cfg.Normalize()

	b, err := NewBackend(cfg)
	require.NoError(t, err)
	assert.Equal(t, ai.ProviderOpenAI, b.Name())
	assert.Equal(t, "gpt-3.5-turbo", b.DefaultModel())
}
