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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/extraction"
)

// State is a step of the ingestion state machine.
type State int

// Ingestion states, in the order a valid document visits them.
const (
	StateExtract State = iota
	StatePersist
	StateStampEmbeddings
	StateSummarizeOnly
	StateDone
)

func (s State) String() string {
	switch s {
	case StateExtract:
		return "extract"
	case StatePersist:
		return "persist"
	case StateStampEmbeddings:
		return "stamp_embeddings"
	case StateSummarizeOnly:
		return "summarize_only"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Extractor turns document bytes into an extraction result.
type Extractor interface {
	Extract(ctx context.Context, data []byte, name string) (*core.ExtractionResult, error)
}

// Persister atomically replaces a portfolio's stored data.
type Persister interface {
	Replace(ctx context.Context, result *core.ExtractionResult) (*core.PersistResult, error)
}

// Stamper fills in missing guideline embeddings. limit <= 0 means all.
type Stamper interface {
	Backfill(ctx context.Context, limit int) (*core.BackfillResult, error)
}

// Workflow runs one document through extraction, persistence and embedding.
// A Workflow holds no per-run state and may be shared by concurrent callers.
type Workflow struct {
	extractor  Extractor
	persister  Persister
	stamper    Stamper
	stampLimit int
	logger     *slog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger.With("component", "ingestion")
		return nil
	}
}

// WithStampLimit bounds how many guidelines one run embeds.
// Default is 0, every guideline still missing an embedding.
func WithStampLimit(limit int) Option {
	return func(w *Workflow) error {
		if limit < 0 {
			limit = 0
		}
		w.stampLimit = limit
		return nil
	}
}

// NewWorkflow creates a Workflow over its three collaborators.
func NewWorkflow(extractor Extractor, persister Persister, stamper Stamper, opts ...Option) (*Workflow, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if persister == nil {
		return nil, ErrPersisterRequired
	}
	if stamper == nil {
		return nil, ErrStamperRequired
	}
	w := &Workflow{
		extractor: extractor,
		persister: persister,
		stamper:   stamper,
		logger:    slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Run drives the state machine to Done. It never fails: every upstream
// error is captured in the Outcome and rendered into its Summary.
func (w *Workflow) Run(ctx context.Context, data []byte, name string) *Outcome {
	out := &Outcome{Name: name}
	start := time.Now()

	state := StateExtract
	for state != StateDone {
		out.Trace = append(out.Trace, state)
		w.logger.Debug("entering state", "name", name, "state", state)

		switch state {
		case StateExtract:
			state = w.extract(ctx, data, name, out)
		case StatePersist:
			state = w.persist(ctx, out)
		case StateStampEmbeddings:
			state = w.stamp(ctx, out)
		case StateSummarizeOnly:
			state = StateDone
		default:
			w.logger.Error("unknown ingestion state", "state", state)
			state = StateDone
		}
	}
	out.Trace = append(out.Trace, StateDone)
	out.Summary = summarize(out)

	w.logger.Info("ingestion finished",
		"name", name,
		"success", out.Succeeded(),
		"trace", out.Trace,
		"duration", time.Since(start))
	return out
}

func (w *Workflow) extract(ctx context.Context, data []byte, name string, out *Outcome) State {
	result, err := w.extractor.Extract(ctx, data, name)
	if err != nil {
		w.logger.Warn("extraction failed, treating document as invalid", "name", name, "err", err)
		out.ExtractErr = err
		result = extraction.Invalid(err)
	}
	if result == nil {
		result = extraction.Invalid(nil)
	}
	out.Extraction = result

	if !result.IsValid {
		return StateSummarizeOnly
	}
	return StatePersist
}

func (w *Workflow) persist(ctx context.Context, out *Outcome) State {
	persisted, err := w.persister.Replace(ctx, out.Extraction)
	if err != nil {
		w.logger.Error("persistence failed", "portfolio_id", out.Extraction.Portfolio.ID, "err", err)
		out.PersistErr = err
		return StateDone
	}
	out.Persisted = persisted
	return StateStampEmbeddings
}

func (w *Workflow) stamp(ctx context.Context, out *Outcome) State {
	backfill, err := w.stamper.Backfill(ctx, w.stampLimit)
	if err != nil {
		w.logger.Warn("embedding backfill failed; guidelines stay searchable by text", "err", err)
		out.StampErr = err
	}
	out.Backfill = backfill
	return StateDone
}
