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

package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/ai/gemini"
	"github.com/poiesic/guidelines/ai/mock"
	"github.com/poiesic/guidelines/ai/openai"
)

// EmbeddingProvider resolves which backend embeds text. An explicit
// config.EmbeddingProvider wins; otherwise the first provider in priority
// order that has a credential and offers embeddings; otherwise mock.
func EmbeddingProvider(config *ai.Config) ai.ProviderName {
	if config.EmbeddingProvider != "" {
		return config.EmbeddingProvider
	}
	for _, p := range config.Order() {
		switch p {
		case ai.ProviderGemini, ai.ProviderOpenAI:
			if config.HasCredential(p) {
				return p
			}
		}
	}
	return ai.ProviderMock
}

// NewEmbedder constructs the embedder chosen by EmbeddingProvider.
func NewEmbedder(ctx context.Context, config *ai.Config) (ai.Embedder, ai.ProviderName, error) {
	if config == nil {
		return nil, "", ErrConfigRequired
	}
	p := EmbeddingProvider(config)
	slog.Default().With("component", "gateway").Info("selected embedding provider", "provider", p)

	switch p {
	case ai.ProviderGemini:
		e, err := gemini.NewEmbedder(ctx, config)
		return e, p, err
	case ai.ProviderOpenAI:
		e, err := openai.NewEmbedder(config)
		return e, p, err
	case ai.ProviderMock:
		return mock.NewEmbedder(), p, nil
	}
	return nil, p, fmt.Errorf("provider %q does not offer embeddings", p)
}
