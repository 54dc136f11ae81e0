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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// Backfiller stamps embeddings on guidelines that lack one.
type Backfiller struct {
	repo           storage.GuidelineRepository
	embedder       ai.Embedder
	batchSize      int
	backoff        Backoff
	progress       io.Writer
	reportInterval int
	logger         *slog.Logger
}

// Option configures a Backfiller.
type Option func(*Backfiller) error

// WithBatchSize sets how many guidelines share one embedding call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(b *Backfiller) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		b.batchSize = size
		return nil
	}
}

// WithBackoff sets the retry schedule of each batch.
// Default is DefaultBackoff.
func WithBackoff(backoff Backoff) Option {
	return func(b *Backfiller) error {
		if backoff.Attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		b.backoff = backoff
		return nil
	}
}

// WithProgress reports progress to w every interval guidelines.
func WithProgress(w io.Writer, interval int) Option {
	return func(b *Backfiller) error {
		b.progress = w
		b.reportInterval = interval
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backfiller) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger.With("component", "backfill")
		return nil
	}
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(repo storage.GuidelineRepository, embedder ai.Embedder, opts ...Option) (*Backfiller, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	b := &Backfiller{
		repo:      repo,
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		backoff:   DefaultBackoff,
		logger:    slog.Default().With("component", "backfill"),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Backfill embeds up to limit guidelines that have no embedding (limit <= 0
// means all). A batch that keeps failing is skipped and its rule ids are
// returned as "portfolio/rule" in SkippedRuleIDs; only a listing failure or
// cancellation is returned as an error.
func (b *Backfiller) Backfill(ctx context.Context, limit int) (*core.BackfillResult, error) {
	iter := NewMissingIterator(b.repo, b.batchSize, limit)
	snapshot, err := iter.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guidelines missing embeddings: %w", err)
	}

	result := &core.BackfillResult{Candidates: len(snapshot)}
	if len(snapshot) == 0 {
		b.logger.Debug("no guidelines missing embeddings")
		return result, nil
	}
	b.logger.Info("starting embedding backfill", "candidates", len(snapshot), "batch_size", b.batchSize)

	var tracker *ProgressTracker
	if b.progress != nil {
		tracker = NewProgressTracker(b.progress, len(snapshot), b.reportInterval)
		tracker.Start()
	}

	start := time.Now()
	processor := NewBatchProcessor(b.repo, b.embedder, b.backoff)
	names := newPortfolioNames(b.repo)

	err = iter.ForEach(ctx, snapshot, func(batch []*core.Guideline) error {
		written, err := processor.Process(ctx, batch, names)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			skipped := make([]string, len(batch))
			for i, g := range batch {
				skipped[i] = g.PortfolioID + "/" + g.RuleID
			}
			b.logger.Error("skipping batch after repeated failures",
				"size", len(batch),
				"rule_ids", skipped,
				"err", err)
			result.Failed += len(batch)
			result.SkippedRuleIDs = append(result.SkippedRuleIDs, skipped...)
			if tracker != nil {
				tracker.Add(0, len(batch))
			}
			return nil
		}
		result.Embedded += written
		if tracker != nil {
			tracker.Add(len(batch), 0)
		}
		return nil
	})
	if tracker != nil {
		tracker.Finish()
	}

	b.logger.Info("embedding backfill finished",
		"candidates", result.Candidates,
		"embedded", result.Embedded,
		"failed", result.Failed,
		"duration", time.Since(start))
	return result, err
}
