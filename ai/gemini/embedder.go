package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/guidelines/ai"
	"google.golang.org/genai"
)

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Embedder implements ai.Embedder with the Gemini embedding models.
type Embedder struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates an embedder from config.Gemini.
func NewEmbedder(ctx context.Context, config *ai.Config) (*Embedder, error) {
	client, err := newClient(ctx, config.Gemini)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		client: client,
		model:  config.Gemini.EmbeddingModel,
		logger: slog.Default().With("component", "gemini-embedder"),
	}, nil
}

// EmbedText embeds a search query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds documents for storage, preserving input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embed(ctx, texts, taskRetrievalDocument)
}

func (e *Embedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts), "task", task)

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: task})
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini: missing embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}
