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

	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
)

// DefaultBatchSize is the number of guidelines embedded per call.
const DefaultBatchSize = 100

// MissingIterator walks a snapshot of the guidelines without an embedding.
// The snapshot is taken once so rows stamped during the walk are not
// revisited.
type MissingIterator struct {
	repo      storage.GuidelineRepository
	batchSize int
	limit     int
}

// NewMissingIterator creates an iterator over at most limit guidelines
// (limit <= 0 means all), batchSize at a time.
func NewMissingIterator(repo storage.GuidelineRepository, batchSize, limit int) *MissingIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &MissingIterator{
		repo:      repo,
		batchSize: batchSize,
		limit:     limit,
	}
}

// Snapshot lists the guidelines the iteration will visit.
func (it *MissingIterator) Snapshot(ctx context.Context) ([]*core.Guideline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return it.repo.ListMissingEmbeddings(ctx, it.limit)
}

// ForEach calls fn for each batch of snapshot. Iteration stops on the first
// error from fn or when ctx is done.
func (it *MissingIterator) ForEach(ctx context.Context, snapshot []*core.Guideline, fn func([]*core.Guideline) error) error {
	for start := 0; start < len(snapshot); start += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+it.batchSize, len(snapshot))
		if err := fn(snapshot[start:end]); err != nil {
			return err
		}
	}
	return nil
}
