package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, []ProviderName{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderMock}, cfg.Priority)
	assert.Equal(t, "gemini-1.5-flash", cfg.Gemini.Model)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Anthropic.Model)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.EnableMock)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with keys and models", func(t *testing.T) {
		cfg := NewConfig(
			WithGeminiKey("g-key"),
			WithOpenAIKey("o-key"),
			WithAnthropicKey("a-key"),
			WithModel(ProviderOpenAI, "gpt-4o-mini"),
			WithModel(ProviderMock, "ignored"),
		)

		assert.Equal(t, "g-key", cfg.Gemini.APIKey)
		assert.Equal(t, "o-key", cfg.OpenAI.APIKey)
		assert.Equal(t, "a-key", cfg.Anthropic.APIKey)
		assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	})

	t.Run("with timeout and mock disabled", func(t *testing.T) {
		cfg := NewConfig(WithRequestTimeout(5*time.Second), WithMock(false))

		assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
		assert.False(t, cfg.EnableMock)
	})
}

func TestConfig_HasCredential(t *testing.T) {
	cfg := NewConfig(WithGeminiKey("g"))

	assert.True(t, cfg.HasCredential(ProviderGemini))
	assert.False(t, cfg.HasCredential(ProviderOpenAI))
	assert.False(t, cfg.HasCredential(ProviderAnthropic))
	assert.True(t, cfg.HasCredential(ProviderMock))

	cfg = NewConfig(WithOpenAIHost("http://localhost:11434"), WithMock(false))
	assert.True(t, cfg.HasCredential(ProviderOpenAI), "local server needs no key")
	assert.False(t, cfg.HasCredential(ProviderMock))
}

func TestConfig_Order(t *testing.T) {
	tests := []struct {
		name string
		opts []ConfigOption
		want []ProviderName
	}{
		{
			name: "stock order",
			want: []ProviderName{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderMock},
		},
		{
			name: "default provider first",
			opts: []ConfigOption{WithDefaultProvider(ProviderAnthropic)},
			want: []ProviderName{ProviderAnthropic, ProviderGemini, ProviderOpenAI, ProviderMock},
		},
		{
			name: "mock appended when missing from priority",
			opts: []ConfigOption{WithPriority(ProviderOpenAI)},
			want: []ProviderName{ProviderOpenAI, ProviderMock},
		},
		{
			name: "mock disabled",
			opts: []ConfigOption{WithPriority(ProviderOpenAI, ProviderMock), WithMock(false)},
			want: []ProviderName{ProviderOpenAI},
		},
		{
			name: "duplicates removed",
			opts: []ConfigOption{WithPriority(ProviderGemini, ProviderGemini, ProviderOpenAI)},
			want: []ProviderName{ProviderGemini, ProviderOpenAI, ProviderMock},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewConfig(tt.opts...).Order())
		})
	}
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"adds /v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"removes trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps existing /v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(WithOpenAIHost(tt.input))
			cfg.Normalize()
			assert.Equal(t, tt.expected, cfg.OpenAI.BaseURL)
		})
	}

	t.Run("lowercases provider names", func(t *testing.T) {
		cfg := NewConfig(WithPriority(" Gemini", "OPENAI"), WithDefaultProvider("Mock"))
		cfg.Normalize()
		assert.Equal(t, []ProviderName{ProviderGemini, ProviderOpenAI}, cfg.Priority)
		assert.Equal(t, ProviderMock, cfg.DefaultProvider)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ConfigOption
		wantErr string
	}{
		{"unknown priority", []ConfigOption{WithPriority("cohere")}, "unknown provider"},
		{"unknown default", []ConfigOption{WithDefaultProvider("cohere")}, "unknown default provider"},
		{"anthropic embeddings", []ConfigOption{WithEmbeddingProvider(ProviderAnthropic)}, "does not offer embeddings"},
		{"missing model", []ConfigOption{WithModel(ProviderGemini, "")}, "gemini model is required"},
		{"negative timeout", []ConfigOption{WithRequestTimeout(-time.Second)}, "RequestTimeout"},
		{"nothing to try", []ConfigOption{WithPriority(), WithMock(false)}, "at least one provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.opts...).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProviderName_Valid(t *testing.T) {
	for _, p := range Providers {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, ProviderName("cohere").Valid())
	assert.False(t, ProviderName("").Valid())
}
