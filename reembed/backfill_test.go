package reembed

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/guidelines/ai/mock"
	"github.com/poiesic/guidelines/core"
	"github.com/poiesic/guidelines/storage"
	"github.com/poiesic/guidelines/storage/badger"
	"github.com/poiesic/guidelines/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastBackoff = Backoff{Attempts: 3, BaseDelay: time.Millisecond}

func setupRepo(t *testing.T, ruleIDs ...string) storage.GuidelineRepository {
	t.Helper()
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	if len(ruleIDs) > 0 {
		_, err = repo.Replace(context.Background(), storagetest.Extraction("P1", "P1_2024-03-31", ruleIDs...))
		require.NoError(t, err)
	}
	return repo
}

func newTestBackfiller(t *testing.T, repo storage.GuidelineRepository, embedder *mock.Embedder, opts ...Option) *Backfiller {
	t.Helper()
	opts = append([]Option{WithBackoff(fastBackoff)}, opts...)
	b, err := NewBackfiller(repo, embedder, opts...)
	require.NoError(t, err)
	return b
}

func TestNewBackfiller_Validation(t *testing.T) {
	repo := setupRepo(t)

	_, err := NewBackfiller(nil, mock.NewEmbedder())
	assert.ErrorIs(t, err, ErrRepositoryRequired)
	_, err = NewBackfiller(repo, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewBackfiller(repo, mock.NewEmbedder(), WithBatchSize(0))
	assert.Error(t, err)
	_, err = NewBackfiller(repo, mock.NewEmbedder(), WithBackoff(Backoff{}))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestCompositeText(t *testing.T) {
	g := &core.Guideline{Part: "V", Section: "Limits", Text: "No more than 5%."}
	assert.Equal(t,
		"Portfolio: Pension Fund; Part: V; Section: Limits; Subsection: N/A; Guideline: No more than 5%.",
		CompositeText("Pension Fund", g))
	assert.Equal(t,
		"Portfolio: N/A; Part: N/A; Section: N/A; Subsection: N/A; Guideline: x",
		CompositeText(" ", &core.Guideline{Text: "x"}))
}

func TestBackfill_EmbedsEverything(t *testing.T) {
	repo := setupRepo(t, "R1", "R2", "R3", "R4", "R5")
	embedder := mock.NewEmbedder()
	var texts []string
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		texts = append(texts, in...)
		out := make([][]float32, len(in))
		for i := range in {
			out[i] = []float32{3, 4}
		}
		return out, nil
	}
	b := newTestBackfiller(t, repo, embedder, WithBatchSize(2))

	result, err := b.Backfill(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Candidates)
	assert.Equal(t, 5, result.Embedded)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.SkippedRuleIDs)
	assert.Equal(t, 3, embedder.CallCount(), "5 guidelines in batches of 2")

	require.Len(t, texts, 5)
	assert.Equal(t, "Portfolio: P1 Fund; Part: Part I; Section: Section 1; Subsection: N/A; Guideline: Rule R1 for P1", texts[0])

	missing, err := repo.CountMissingEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, missing)

	g, err := repo.GetGuideline(context.Background(), "P1", "R1")
	require.NoError(t, err)
	require.Len(t, g.Embedding, 2)
	assert.InDelta(t, 0.6, g.Embedding[0], 1e-6, "vectors are normalized")
	assert.InDelta(t, 0.8, g.Embedding[1], 1e-6)

	again, err := b.Backfill(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, again.Candidates, "second run finds nothing to do")
}

func TestBackfill_Limit(t *testing.T) {
	repo := setupRepo(t, "R1", "R2", "R3")
	b := newTestBackfiller(t, repo, mock.NewEmbedder())

	result, err := b.Backfill(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Candidates)
	assert.Equal(t, 2, result.Embedded)

	missing, err := repo.ListMissingEmbeddings(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "R3", missing[0].RuleID)
}

func TestBackfill_SkipsFailingBatch(t *testing.T) {
	repo := setupRepo(t, "R1", "R2", "R3")
	embedder := mock.NewEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		calls.Add(1)
		for _, text := range in {
			if strings.Contains(text, "Rule R3") {
				return nil, errors.New("rate limited")
			}
		}
		return [][]float32{{1, 0}, {0, 1}}[:len(in)], nil
	}
	b := newTestBackfiller(t, repo, embedder, WithBatchSize(2))

	result, err := b.Backfill(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Candidates)
	assert.Equal(t, 2, result.Embedded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"P1/R3"}, result.SkippedRuleIDs)
	assert.Equal(t, int32(1+3), calls.Load(), "one good batch, three tries for the bad one")

	missing, err := repo.CountMissingEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, missing, "skipped rows stay unembedded")
}

func TestBackfill_RetriesTransientFailure(t *testing.T) {
	repo := setupRepo(t, "R1")
	embedder := mock.NewEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("temporary")
		}
		return [][]float32{{1, 1}}, nil
	}
	b := newTestBackfiller(t, repo, embedder)

	result, err := b.Backfill(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Embedded)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBackfill_RejectsBadVectors(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
	}{
		{"count mismatch", [][]float32{}},
		{"empty vector", [][]float32{{}}},
		{"NaN", [][]float32{{float32(math.NaN()), 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := setupRepo(t, "R1")
			embedder := mock.NewEmbedder()
			embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
				return tt.vectors, nil
			}
			b := newTestBackfiller(t, repo, embedder)

			result, err := b.Backfill(context.Background(), 0)
			require.NoError(t, err)
			assert.Zero(t, result.Embedded)
			assert.Equal(t, []string{"P1/R1"}, result.SkippedRuleIDs)
		})
	}
}

func TestBackfill_ContextCancellation(t *testing.T) {
	repo := setupRepo(t, "R1", "R2", "R3")
	ctx, cancel := context.WithCancel(context.Background())
	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(c context.Context, in []string) ([][]float32, error) {
		cancel()
		return nil, c.Err()
	}
	b := newTestBackfiller(t, repo, embedder, WithBatchSize(1))

	result, err := b.Backfill(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Zero(t, result.Embedded)
	assert.Empty(t, result.SkippedRuleIDs, "cancelled batches are not reported as skipped")
}

func TestBackfill_Progress(t *testing.T) {
	repo := setupRepo(t, "R1", "R2", "R3")
	var buf bytes.Buffer
	b := newTestBackfiller(t, repo, mock.NewEmbedder(), WithBatchSize(1), WithProgress(&buf, 1))

	_, err := b.Backfill(context.Background(), 0)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "3/3")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestPortfolioNames_FallBackToID(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	_, err := repo.Save(ctx, &core.Portfolio{ID: "P9"}, nil, []*core.Guideline{{PortfolioID: "P9", RuleID: "R1", Text: "t"}})
	require.NoError(t, err)

	names := newPortfolioNames(repo)
	name, err := names.lookup(ctx, "P9")
	require.NoError(t, err)
	assert.Equal(t, "P9", name, "empty name falls back to id")

	name, err = names.lookup(ctx, "NOPE")
	require.NoError(t, err)
	assert.Equal(t, "NOPE", name)
}

func TestMissingIterator_Batches(t *testing.T) {
	repo := setupRepo(t, "R1", "R2", "R3", "R4", "R5")
	ctx := context.Background()

	tests := []struct {
		batchSize int
		want      []int
	}{
		{1, []int{1, 1, 1, 1, 1}},
		{2, []int{2, 2, 1}},
		{5, []int{5}},
		{0, []int{5}},
	}
	for _, tt := range tests {
		it := NewMissingIterator(repo, tt.batchSize, 0)
		snapshot, err := it.Snapshot(ctx)
		require.NoError(t, err)

		var sizes []int
		err = it.ForEach(ctx, snapshot, func(batch []*core.Guideline) error {
			sizes = append(sizes, len(batch))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, sizes, "batch size %d", tt.batchSize)
	}
}

func TestMissingIterator_StopsOnError(t *testing.T) {
	repo := setupRepo(t, "R1", "R2", "R3")
	it := NewMissingIterator(repo, 1, 0)
	snapshot, err := it.Snapshot(context.Background())
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	err = it.ForEach(context.Background(), snapshot, func([]*core.Guideline) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestBackfill_ReingestDuringEmbeddingKeepsNewRowMissing(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t, "R1", "R2")

	reingest := storagetest.Extraction("P1", "P1_2024-06-30", "R1", "R2")
	reingest.Guidelines[0].Text = "Derivatives are prohibited entirely."

	var calls atomic.Int32
	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			_, err := repo.Replace(ctx, reingest)
			require.NoError(t, err)
		}
		out := make([][]float32, len(in))
		for i := range in {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}
	b := newTestBackfiller(t, repo, embedder)

	res, err := b.Backfill(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Embedded, "R2 kept its text and still takes the vector")

	g, err := repo.GetGuideline(ctx, "P1", "R1")
	require.NoError(t, err)
	assert.Equal(t, "Derivatives are prohibited entirely.", g.Text)
	assert.False(t, g.HasEmbedding(), "old text's vector must not land on the new row")

	missing, err := repo.CountMissingEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, missing)

	res, err = b.Backfill(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Embedded, "the next run picks the changed row up")
	g, err = repo.GetGuideline(ctx, "P1", "R1")
	require.NoError(t, err)
	assert.True(t, g.HasEmbedding())
}
