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

// Package guidelines wires extraction, storage, embedding backfill,
// sessions and retrieval into one Agent. Every Agent entrypoint returns a
// result envelope with a success flag and never panics.
package guidelines

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/config"
	"github.com/poiesic/guidelines/extraction"
	"github.com/poiesic/guidelines/gateway"
	"github.com/poiesic/guidelines/ingestion"
	"github.com/poiesic/guidelines/reembed"
	"github.com/poiesic/guidelines/search"
	"github.com/poiesic/guidelines/session"
	"github.com/poiesic/guidelines/storage"
	"github.com/poiesic/guidelines/storage/badger"
	"github.com/poiesic/guidelines/storage/sqlite"
)

// poolReleaseTimeout bounds how long Close waits for running tasks.
const poolReleaseTimeout = 10 * time.Second

// Agent is the application facade.
type Agent struct {
	config     *config.Config
	repo       storage.GuidelineRepository
	gen        ai.Generator
	providers  func() []ai.ProviderName
	embedder   ai.Embedder
	extractor  *extraction.Extractor
	backfiller *reembed.Backfiller
	workflow   *ingestion.Workflow
	retriever  *search.Retriever
	sessions   *session.Store
	pool       *ants.Pool
	closers    []func() error
	logger     *slog.Logger
	closeOnce  sync.Once
	closeErr   error
}

// Option configures an Agent.
type Option func(*agentOptions) error

type agentOptions struct {
	logger   *slog.Logger
	repo     storage.GuidelineRepository
	gen      ai.Generator
	embedder ai.Embedder
	progress io.Writer
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *agentOptions) error {
		o.logger = logger
		return nil
	}
}

// WithRepository uses repo instead of opening the configured store. The
// Agent takes ownership and closes it.
func WithRepository(repo storage.GuidelineRepository) Option {
	return func(o *agentOptions) error {
		o.repo = repo
		return nil
	}
}

// WithGenerator replaces the provider gateway.
func WithGenerator(gen ai.Generator) Option {
	return func(o *agentOptions) error {
		o.gen = gen
		return nil
	}
}

// WithEmbedder replaces the configured embedder.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *agentOptions) error {
		o.embedder = embedder
		return nil
	}
}

// WithBackfillProgress reports embedding backfill progress to w.
func WithBackfillProgress(w io.Writer) Option {
	return func(o *agentOptions) error {
		o.progress = w
		return nil
	}
}

// OpenRepository opens the store engine at path.
func OpenRepository(engine, path string) (storage.GuidelineRepository, error) {
	return openRepository(engine, path, slog.Default())
}

func openRepository(engine, path string, logger *slog.Logger) (storage.GuidelineRepository, error) {
	switch engine {
	case config.EngineBadger, "":
		repo, err := badger.OpenRepository(path, badger.WithBackendLogger(logger))
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.EngineSQLite:
		repo, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("%w: %q", storage.ErrUnknownEngine, engine)
}

// New builds an Agent from cfg. A nil cfg uses config.Default().
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &agentOptions{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	a := &Agent{config: cfg, logger: options.logger.With("component", "agent")}
	if err := a.init(ctx, options); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.logger.Info("agent ready",
		"storage", cfg.Storage,
		"data_dir", cfg.DataDir,
		"providers", a.providers(),
		"workers", a.pool.Cap())
	return a, nil
}

func (a *Agent) init(ctx context.Context, o *agentOptions) error {
	cfg, logger := a.config, o.logger

	a.repo = o.repo
	if a.repo == nil {
		repo, err := openRepository(cfg.Storage, cfg.DataDir, logger)
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Storage, err)
		}
		a.repo = repo
	}
	a.closers = append(a.closers, a.repo.Close)

	a.gen = o.gen
	a.providers = func() []ai.ProviderName { return nil }
	if a.gen == nil {
		gw, err := gateway.New(ctx, &cfg.AI, gateway.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		a.gen = gw
		a.providers = gw.Available
		a.closers = append(a.closers, gw.Close)
	}

	a.embedder = o.embedder
	if a.embedder == nil {
		embedder, _, err := gateway.NewEmbedder(ctx, &cfg.AI)
		if err != nil {
			return fmt.Errorf("embedder: %w", err)
		}
		a.embedder = embedder
	}

	var err error
	if a.extractor, err = extraction.NewExtractor(a.gen, extraction.WithLogger(logger)); err != nil {
		return err
	}

	backfillOpts := []reembed.Option{
		reembed.WithBatchSize(cfg.Embedding.BatchSize),
		reembed.WithLogger(logger),
	}
	if o.progress != nil {
		backfillOpts = append(backfillOpts, reembed.WithProgress(o.progress, cfg.Embedding.BatchSize))
	}
	if a.backfiller, err = reembed.NewBackfiller(a.repo, a.embedder, backfillOpts...); err != nil {
		return err
	}

	if a.workflow, err = ingestion.NewWorkflow(a.extractor, a.repo, a.backfiller, ingestion.WithLogger(logger)); err != nil {
		return err
	}

	if a.sessions, err = session.NewStore(
		session.WithTimeout(cfg.Session.Timeout),
		session.WithCapacity(cfg.Session.Capacity),
		session.WithHistoryLimit(cfg.Session.HistoryLimit),
		session.WithLogger(logger),
	); err != nil {
		return err
	}
	if err := a.sessions.StartJanitor(context.Background(), max(cfg.Session.Timeout/4, time.Second)); err != nil {
		return err
	}
	a.closers = append(a.closers, a.sessions.Close)

	planner, err := search.NewPlanner(a.gen,
		search.WithGenLogger(logger),
		search.WithTopKDefaults(cfg.Search.DefaultTopK, cfg.Search.FollowUpTopK))
	if err != nil {
		return err
	}
	summarizer, err := search.NewSummarizer(a.gen, search.WithGenLogger(logger))
	if err != nil {
		return err
	}
	if a.retriever, err = search.NewRetriever(a.repo, a.embedder, planner, summarizer,
		search.WithThreshold(cfg.Search.SimilarityThreshold),
		search.WithSessions(a.sessions),
		search.WithLogger(logger),
	); err != nil {
		return err
	}

	size := cfg.WorkerPoolSize
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if a.pool, err = newPool(size, logger); err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { return a.pool.ReleaseTimeout(poolReleaseTimeout) })
	return nil
}

// Close releases the worker pool, the session janitor, the gateway and the
// store, in reverse order of acquisition. It is safe to call more than once.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.logger.Error("error during close", "err", err)
				if a.closeErr == nil {
					a.closeErr = err
				}
			}
		}
	})
	return a.closeErr
}

// Repository returns the guideline store.
func (a *Agent) Repository() storage.GuidelineRepository {
	return a.repo
}

// Sessions returns the session store.
func (a *Agent) Sessions() *session.Store {
	return a.sessions
}

// Config returns the configuration the Agent was built from.
func (a *Agent) Config() *config.Config {
	return a.config
}
