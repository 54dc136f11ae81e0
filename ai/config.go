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

package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProviderConfig holds settings for one text-generation backend.
type ProviderConfig struct {
	// APIKey is the credential for the backend. A backend without a key is
	// treated as unavailable (the mock backend needs none).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the service endpoint.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	BaseURL string `yaml:"base_url"`

	// Model is the default generation model for the backend.
	Model string `yaml:"model"`

	// EmbeddingModel is the embedding model, for backends that offer embeddings.
	EmbeddingModel string `yaml:"embedding_model"`

	// RequestsPerSecond throttles calls to the backend. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Config holds configuration for AI service providers.
type Config struct {
	// Priority is the order in which backends are tried.
	// Default: gemini, openai, anthropic, mock
	Priority []ProviderName `yaml:"priority"`

	// DefaultProvider, when set, is tried first regardless of Priority.
	DefaultProvider ProviderName `yaml:"default_provider"`

	Gemini    ProviderConfig `yaml:"gemini"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`

	// EmbeddingProvider selects the embedder. Empty picks the first provider
	// in Priority that has a credential and offers embeddings, else mock.
	EmbeddingProvider ProviderName `yaml:"embedding_provider"`

	// RequestTimeout bounds a single backend call. Zero disables the timeout.
	// Default: 120s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// EnableMock keeps the deterministic mock backend at the end of the
	// priority list so generation never fails outright.
	// Default: true
	EnableMock bool `yaml:"enable_mock"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithPriority sets the backend priority order.
func WithPriority(providers ...ProviderName) ConfigOption {
	return func(c *Config) {
		c.Priority = append([]ProviderName(nil), providers...)
	}
}

// WithDefaultProvider sets the backend tried first.
func WithDefaultProvider(p ProviderName) ConfigOption {
	return func(c *Config) {
		c.DefaultProvider = p
	}
}

// WithGeminiKey sets the Gemini credential.
func WithGeminiKey(key string) ConfigOption {
	return func(c *Config) {
		c.Gemini.APIKey = key
	}
}

// WithOpenAIKey sets the OpenAI credential.
func WithOpenAIKey(key string) ConfigOption {
	return func(c *Config) {
		c.OpenAI.APIKey = key
	}
}

// WithOpenAIHost points the OpenAI backend at an OpenAI-compatible server.
func WithOpenAIHost(host string) ConfigOption {
	return func(c *Config) {
		c.OpenAI.BaseURL = host
	}
}

// WithAnthropicKey sets the Anthropic credential.
func WithAnthropicKey(key string) ConfigOption {
	return func(c *Config) {
		c.Anthropic.APIKey = key
	}
}

// WithModel sets the default generation model of one backend.
func WithModel(p ProviderName, model string) ConfigOption {
	return func(c *Config) {
		if pc := c.Provider(p); pc != nil {
			pc.Model = model
		}
	}
}

// WithEmbeddingProvider forces the embedder backend.
func WithEmbeddingProvider(p ProviderName) ConfigOption {
	return func(c *Config) {
		c.EmbeddingProvider = p
	}
}

// WithRequestTimeout sets the per-call timeout.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithMock enables or disables the mock fallback backend.
func WithMock(enabled bool) ConfigOption {
	return func(c *Config) {
		c.EnableMock = enabled
	}
}

// DefaultConfig returns a Config with the stock priority order and models.
// No credentials are set; without keys only the mock backend is available.
func DefaultConfig() *Config {
	return &Config{
		Priority: []ProviderName{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderMock},
		Gemini: ProviderConfig{
			Model:          "gemini-1.5-flash",
			EmbeddingModel: "text-embedding-004",
		},
		OpenAI: ProviderConfig{
			Model:          "gpt-3.5-turbo",
			EmbeddingModel: "text-embedding-3-small",
		},
		Anthropic: ProviderConfig{
			Model: "claude-3-haiku-20240307",
		},
		RequestTimeout: 120 * time.Second,
		EnableMock:     true,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithGeminiKey(os.Getenv("GEMINI_API_KEY")),
//	    WithPriority(ProviderGemini, ProviderOpenAI, ProviderMock),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Provider returns the settings block of a backend, or nil for mock and
// unknown names.
func (c *Config) Provider(p ProviderName) *ProviderConfig {
	switch p {
	case ProviderGemini:
		return &c.Gemini
	case ProviderOpenAI:
		return &c.OpenAI
	case ProviderAnthropic:
		return &c.Anthropic
	}
	return nil
}

// HasCredential reports whether the backend's required credential is present.
// The mock backend never needs one. An OpenAI backend pointed at a custom
// BaseURL (a local OpenAI-compatible server) is usable without a key.
func (c *Config) HasCredential(p ProviderName) bool {
	switch p {
	case ProviderMock:
		return c.EnableMock
	case ProviderOpenAI:
		return c.OpenAI.APIKey != "" || c.OpenAI.BaseURL != ""
	}
	pc := c.Provider(p)
	return pc != nil && pc.APIKey != ""
}

// Order returns the effective priority list: DefaultProvider first, then
// Priority without duplicates, with mock appended last when enabled.
func (c *Config) Order() []ProviderName {
	order := make([]ProviderName, 0, len(c.Priority)+2)
	seen := make(map[ProviderName]bool)
	add := func(p ProviderName) {
		if p == "" || seen[p] {
			return
		}
		if p == ProviderMock && !c.EnableMock {
			return
		}
		seen[p] = true
		order = append(order, p)
	}
	add(c.DefaultProvider)
	for _, p := range c.Priority {
		add(p)
	}
	add(ProviderMock)
	return order
}

// Normalize ensures the configuration is in a canonical form.
// Provider names are lowercased, and a custom OpenAI host gets the /v1 suffix
// required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	for i, p := range c.Priority {
		c.Priority[i] = ProviderName(strings.ToLower(strings.TrimSpace(string(p))))
	}
	c.DefaultProvider = ProviderName(strings.ToLower(strings.TrimSpace(string(c.DefaultProvider))))
	c.EmbeddingProvider = ProviderName(strings.ToLower(strings.TrimSpace(string(c.EmbeddingProvider))))

	if c.OpenAI.BaseURL != "" && !strings.HasSuffix(c.OpenAI.BaseURL, "/v1") {
		// Remove trailing slash if present before adding /v1
		c.OpenAI.BaseURL = strings.TrimSuffix(c.OpenAI.BaseURL, "/")
		c.OpenAI.BaseURL = c.OpenAI.BaseURL + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if len(c.Priority) == 0 && c.DefaultProvider == "" && !c.EnableMock {
		return errors.New("ai config: at least one provider is required")
	}
	for _, p := range c.Priority {
		if !p.Valid() {
			return fmt.Errorf("ai config: unknown provider %q in priority", p)
		}
	}
	if c.DefaultProvider != "" && !c.DefaultProvider.Valid() {
		return fmt.Errorf("ai config: unknown default provider %q", c.DefaultProvider)
	}
	if c.EmbeddingProvider != "" {
		if !c.EmbeddingProvider.Valid() {
			return fmt.Errorf("ai config: unknown embedding provider %q", c.EmbeddingProvider)
		}
		if c.EmbeddingProvider == ProviderAnthropic {
			return errors.New("ai config: anthropic does not offer embeddings")
		}
	}
	for _, p := range []ProviderName{ProviderGemini, ProviderOpenAI, ProviderAnthropic} {
		pc := c.Provider(p)
		if pc.Model == "" {
			return fmt.Errorf("ai config: %s model is required", p)
		}
		if pc.RequestsPerSecond < 0 {
			return fmt.Errorf("ai config: %s requests_per_second cannot be negative", p)
		}
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout cannot be negative")
	}
	return nil
}
