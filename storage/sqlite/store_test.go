package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/guidelines/storage"
	"github.com/poiesic/guidelines/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepository opens a repository in a fresh temporary directory.
func setupTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return repo
}

func TestRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.GuidelineRepository {
		return setupTestRepository(t)
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestOpen_DirectoryUsesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(dir)
	require.NoError(t, err)
	defer repo.Close()

	assert.Equal(t, filepath.Join(dir, DefaultFileName), repo.Path())
	_, err = os.Stat(repo.Path())
	assert.NoError(t, err)
}

func TestOpen_CreatesNestedDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "guidelines.db")
	repo, err := Open(path)
	require.NoError(t, err)
	defer repo.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestMigrations_AppliedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	repo, err := Open(path)
	require.NoError(t, err)
	v, err := repo.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	_, err = repo.Replace(ctx, storagetest.Extraction("P1", "P1_a", "R1"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err = reopened.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	n, err := reopened.CountGuidelines(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepository_ClosedStorage(t *testing.T) {
	repo := setupTestRepository(t)
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	_, err := repo.ListPortfolios(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestDocument_FingerprintRoundTrip(t *testing.T) {
	repo := setupTestRepository(t)
	defer repo.Close()
	ctx := context.Background()

	ext := storagetest.Extraction("P1", "P1_a", "R1")
	ext.Document.Fingerprint = 0xfedcba9876543210
	ext.Document.SourceName = "policy.pdf"
	_, err := repo.Replace(ctx, ext)
	require.NoError(t, err)

	d, err := repo.GetDocument(ctx, "P1_a")
	require.NoError(t, err)
	assert.Equal(t, ext.Document.Fingerprint, d.Fingerprint)
	assert.Equal(t, "policy.pdf", d.SourceName)
}

func TestPortfolioFilter(t *testing.T) {
	clause, args := portfolioFilter("g.portfolio_id", nil)
	assert.Empty(t, clause)
	assert.Nil(t, args)

	clause, args = portfolioFilter("g.portfolio_id", []string{"B", "A", "B"})
	assert.Equal(t, " AND g.portfolio_id IN (?,?)", clause)
	assert.Equal(t, []any{"A", "B"}, args)
}
