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

package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/guidelines/ai"
	"google.golang.org/genai"
)

var (
	// ErrAPIKeyRequired is returned when no Gemini key is configured.
	ErrAPIKeyRequired = errors.New("gemini: api key is required")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// Backend implements ai.Backend over the Gemini API.
type Backend struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var _ ai.Backend = (*Backend)(nil)

// NewBackend creates a Gemini backend from config.Gemini.
func NewBackend(ctx context.Context, config *ai.Config) (*Backend, error) {
	client, err := newClient(ctx, config.Gemini)
	if err != nil {
		return nil, err
	}
	return &Backend{
		client: client,
		model:  config.Gemini.Model,
		logger: slog.Default().With("component", "gemini-backend"),
	}, nil
}

func newClient(ctx context.Context, pc ai.ProviderConfig) (*genai.Client, error) {
	if pc.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	cc := &genai.ClientConfig{
		APIKey:  pc.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if pc.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: pc.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client, nil
}

// Name returns ai.ProviderGemini.
func (b *Backend) Name() ai.ProviderName { return ai.ProviderGemini }

// DefaultModel returns the configured model.
func (b *Backend) DefaultModel() string { return b.model }

// Generate performs one GenerateContent call. Attachments are sent as inline
// data parts ahead of the prompt.
func (b *Backend) Generate(ctx context.Context, req *ai.Request, model string) (*ai.Completion, error) {
	contents := []*genai.Content{buildContent(req)}

	resp, err := b.client.Models.GenerateContent(ctx, model, contents, generateConfig(req))
	if err != nil {
		b.logger.Error("failed to generate content", "model", model, "err", err)
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}

	completion := &ai.Completion{Content: text, Model: model}
	if um := resp.UsageMetadata; um != nil {
		completion.Usage = &ai.Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}
	return completion, nil
}

// Close is a no-op; genai clients hold no long-lived resources.
func (b *Backend) Close() error {
	return nil
}

func buildContent(req *ai.Request) *genai.Content {
	parts := make([]*genai.Part, 0, len(req.Attachments)+1)
	for _, a := range req.Attachments {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	return genai.NewContentFromParts(parts, genai.RoleUser)
}

func generateConfig(req *ai.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}
