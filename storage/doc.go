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

// Package storage provides the storage abstraction layer for the guideline store.
//
// GuidelineRepository decouples the ingestion workflow, the backfill and the
// retrieval pipeline from the storage engine. Two engines implement it:
//
//   - storage/badger: embedded BadgerDB key-value store (default)
//   - storage/sqlite: embedded SQLite database
//
// # Replace on re-ingest
//
// Replace is the only write path used by ingestion. It runs in a single
// transaction that removes every row of the target portfolio and inserts the
// new portfolio, document and guidelines, so re-ingesting a portfolio never
// accumulates duplicates and concurrent readers see either the old or the
// new version.
//
// # Vector search
//
// SemanticSearch is a linear cosine scan over embedded guidelines. There is
// no separate vector index; the data set per deployment is small.
//
// # Usage
//
//	repo, err := badger.NewMemoryRepository()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
//	persisted, err := repo.Replace(ctx, extraction)
//	results, err := repo.SemanticSearch(ctx, vector, []string{"P1"}, 7, 0.5)
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
