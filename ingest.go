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

package guidelines

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/extraction"
	"github.com/poiesic/guidelines/ingestion"
)

// Ingest extracts, persists and embeds one document. name is the declared
// file name. The result always carries a readable Summary.
func (a *Agent) Ingest(ctx context.Context, data []byte, name string) IngestResult {
	if len(data) == 0 {
		return ingestFailure(name, ErrEmptyDocument)
	}
	outcome, err := runTask(ctx, a.pool, func(ctx context.Context) (*ingestion.Outcome, error) {
		return a.workflow.Run(ctx, data, name), nil
	})
	if err != nil {
		a.logger.Error("ingestion did not run", "name", name, "err", err)
		return ingestFailure(name, err)
	}
	return IngestResult{Success: outcome.Succeeded(), Result: outcome.Result()}
}

// IngestFile reads path and ingests it under its base name.
func (a *Agent) IngestFile(ctx context.Context, path string) IngestResult {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return ingestFailure(name, err)
	}
	return a.Ingest(ctx, data, name)
}

func ingestFailure(name string, err error) IngestResult {
	return IngestResult{Result: ingestion.Result{
		Summary: fmt.Sprintf("Failed to ingest '%s'. Reason: %v", name, err),
		Error:   err.Error(),
	}}
}

// Watch ingests every document that settles in dir until ctx ends.
func (a *Agent) Watch(ctx context.Context, dir string, opts ...ingestion.WatcherOption) error {
	opts = append([]ingestion.WatcherOption{ingestion.WithWatcherLogger(a.logger)}, opts...)
	w, err := ingestion.NewWatcher(dir, func(ctx context.Context, path string) {
		res := a.IngestFile(ctx, path)
		a.logger.Info("inbox document processed",
			"path", path,
			"success", res.Success,
			"guidelines", res.GuidelinesCount,
			"summary", res.Summary)
	}, opts...)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// ExtractFromDocument runs extraction alone. A document the model cannot
// read yields an invalid extraction and an error.
func (a *Agent) ExtractFromDocument(ctx context.Context, data []byte, name string) ExtractResult {
	if len(data) == 0 {
		return ExtractResult{Status: failed(ErrEmptyDocument), Extraction: extraction.Invalid(ErrEmptyDocument)}
	}
	result, err := runTask(ctx, a.pool, func(ctx context.Context) (*core.ExtractionResult, error) {
		return a.extractor.Extract(ctx, data, name)
	})
	if err != nil {
		return ExtractResult{Status: failed(err), Extraction: extraction.Invalid(err)}
	}
	return ExtractResult{Status: ok(), Extraction: result}
}

// Persist replaces the stored data of the extraction's portfolio.
func (a *Agent) Persist(ctx context.Context, result *core.ExtractionResult) PersistenceResult {
	if result == nil {
		return PersistenceResult{Status: failed(ErrExtractionRequired)}
	}
	persisted, err := runTask(ctx, a.pool, func(ctx context.Context) (*core.PersistResult, error) {
		return a.repo.Replace(ctx, result)
	})
	if err != nil {
		a.logger.Error("persist failed", "portfolio_id", result.Portfolio.ID, "err", err)
		return PersistenceResult{Status: failed(err)}
	}
	return PersistenceResult{Status: ok(), Persisted: persisted}
}

// BackfillEmbeddings embeds up to limit guidelines that have no embedding.
// limit <= 0 means all of them.
func (a *Agent) BackfillEmbeddings(ctx context.Context, limit int) BackfillResult {
	result, err := runTask(ctx, a.pool, func(ctx context.Context) (*core.BackfillResult, error) {
		return a.backfiller.Backfill(ctx, limit)
	})
	if err != nil {
		return BackfillResult{Status: failed(err), Backfill: result}
	}
	return BackfillResult{Status: ok(), Backfill: result}
}
