package anthropic

import (
	"testing"

	"github.com/poiesic/guidelines/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestBuildMessages(t *testing.T) {
	t.Run("system and prompt", func(t *testing.T) {
		msgs, err := buildMessages(&ai.Request{System: "be terse", Prompt: "hello"})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
		assert.Equal(t, llms.TextPart("hello"), msgs[1].Parts[0])
	})

	t.Run("image attachment precedes prompt", func(t *testing.T) {
		msgs, err := buildMessages(&ai.Request{
			Prompt:      "describe",
			Attachments: []ai.Attachment{{MIMEType: "image/png", Data: []byte{1, 2}}},
		})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Len(t, msgs[0].Parts, 2)
		assert.IsType(t, llms.BinaryContent{}, msgs[0].Parts[0])
	})

	t.Run("pdf attachment rejected", func(t *testing.T) {
		_, err := buildMessages(&ai.Request{
			Prompt:      "extract",
			Attachments: []ai.Attachment{{MIMEType: "application/pdf", Data: []byte("%PDF")}},
		})
		assert.ErrorIs(t, err, ErrUnsupportedAttachment)
	})
}

func TestNewBackend(t *testing.T) {
	cfg := ai.NewConfig(ai.WithAnthropicKey("test-key"))
	b, err := NewBackend(cfg)
	require.NoError(t, err)
	assert.Equal(t, ai.ProviderAnthropic, b.Name())
	assert.Equal(t, "claude-3-haiku-20240307", b.DefaultModel())
	assert.NoError(t, b.Close())
}
