package gemini

import (
	"context"
	"testing"

	"github.com/poiesic/guidelines/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestBuildContent(t *testing.T) {
	content := buildContent(&ai.Request{
		Prompt:      "extract",
		Attachments: []ai.Attachment{{MIMEType: "application/pdf", Data: []byte("%PDF")}},
	})

	assert.Equal(t, genai.RoleUser, content.Role)
	require.Len(t, content.Parts, 2)
	require.NotNil(t, content.Parts[0].InlineData)
	assert.Equal(t, "application/pdf", content.Parts[0].InlineData.MIMEType)
	assert.Equal(t, "extract", content.Parts[1].Text)
}

func TestGenerateConfig(t *testing.T) {
	t.Run("minimal", func(t *testing.T) {
		cfg := generateConfig(&ai.Request{Temperature: 0.1})
		require.NotNil(t, cfg.Temperature)
		assert.InDelta(t, 0.1, *cfg.Temperature, 1e-6)
		assert.Nil(t, cfg.SystemInstruction)
		assert.Zero(t, cfg.MaxOutputTokens)
		assert.Empty(t, cfg.ResponseMIMEType)
	})

	t.Run("full", func(t *testing.T) {
		cfg := generateConfig(&ai.Request{System: "sys", MaxTokens: 256, JSON: true})
		require.NotNil(t, cfg.SystemInstruction)
		assert.Equal(t, "sys", cfg.SystemInstruction.Parts[0].Text)
		assert.Equal(t, int32(256), cfg.MaxOutputTokens)
		assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	})
}

func TestNewBackend_RequiresKey(t *testing.T) {
	_, err := NewBackend(context.Background(), ai.NewConfig())
	assert.ErrorIs(t, err, ErrAPIKeyRequired)

	_, err = NewEmbedder(context.Background(), ai.NewConfig())
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(context.Background(), ai.NewConfig(ai.WithGeminiKey("test-key")))
	require.NoError(t, err)
	assert.Equal(t, ai.ProviderGemini, b.Name())
	assert.Equal(t, "gemini-1.5-flash", b.DefaultModel())
}
