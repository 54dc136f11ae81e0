package reembed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// CompositeText is the text embedded for a guideline. Carrying the portfolio
// name and headings lets a query match context the rule text leaves implicit.
func CompositeText(portfolioName string, g *core.Guideline) string {
	return fmt.Sprintf("Portfolio: %s; Part: %s; Section: %s; Subsection: %s; Guideline: %s",
		orNA(portfolioName), orNA(g.Part), orNA(g.Section), orNA(g.Subsection), g.Text)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// portfolioNames resolves and caches portfolio display names for one run.
type portfolioNames struct {
	repo  storage.GuidelineRepository
	names map[string]string
}

func newPortfolioNames(repo storage.GuidelineRepository) *portfolioNames {
	return &portfolioNames{repo: repo, names: make(map[string]string)}
}

func (n *portfolioNames) lookup(ctx context.Context, id string) (string, error) {
	if name, ok := n.names[id]; ok {
		return name, nil
	}
	name := id
	p, err := n.repo.GetPortfolio(ctx, id)
	switch {
	case err == nil:
		if p.Name != "" {
			name = p.Name
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return "", err
	}
	n.names[id] = name
	return name, nil
}

// BatchProcessor embeds one batch of guidelines and stamps the vectors.
type BatchProcessor struct {
	repo     storage.GuidelineRepository
	embedder ai.Embedder
	backoff  Backoff
}

// NewBatchProcessor creates a batch processor that retries the embedding
// call according to backoff.
func NewBatchProcessor(repo storage.GuidelineRepository, embedder ai.Embedder, backoff Backoff) *BatchProcessor {
	return &BatchProcessor{
		repo:     repo,
		embedder: embedder,
		backoff:  backoff,
	}
}

// Process embeds batch and writes the normalized vectors, returning how many
// guidelines were stamped. Guidelines deleted since the snapshot are not
// counted.
func (bp *BatchProcessor) Process(ctx context.Context, batch []*core.Guideline, names *portfolioNames) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	texts := make([]string, len(batch))
	for i, g := range batch {
		name, err := names.lookup(ctx, g.PortfolioID)
		if err != nil {
			return 0, fmt.Errorf("resolve portfolio %s: %w", g.PortfolioID, err)
		}
		texts[i] = CompositeText(name, g)
	}

	var vectors [][]float32
	err := bp.backoff.Do(ctx, func(int) error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(texts), len(vectors))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.backoff.Attempts, err)
	}

	updates := make([]core.EmbeddingUpdate, len(batch))
	for i, g := range batch {
		if !usableVector(vectors[i]) {
			return 0, fmt.Errorf("%w for %s/%s", ErrUnusableVector, g.PortfolioID, g.RuleID)
		}
		updates[i] = core.EmbeddingUpdate{
			PortfolioID: g.PortfolioID,
			RuleID:      g.RuleID,
			Text:        g.Text,
			Vector:      NormalizeVector(vectors[i]),
		}
	}

	written, err := bp.repo.SetEmbeddings(ctx, updates)
	if err != nil {
		return 0, fmt.Errorf("failed to store embeddings: %w", err)
	}
	return written, nil
}
