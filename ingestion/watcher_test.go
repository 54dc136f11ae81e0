package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(ctx context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, w *Watcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	_, err := NewWatcher(dir, nil)
	assert.ErrorIs(t, err, ErrHandlerRequired)

	_, err = NewWatcher(filepath.Join(dir, "missing"), rec.handle)
	assert.Error(t, err)

	file := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = NewWatcher(file, rec.handle)
	assert.Error(t, err)

	_, err = NewWatcher(dir, rec.handle, WithDebounce(0))
	assert.Error(t, err)
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := NewWatcher(dir, rec.handle, WithDebounce(200*time.Millisecond))
	require.NoError(t, err)
	stop := startWatcher(t, w)
	defer stop()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	pdf := filepath.Join(dir, "Policy.PDF")
	f, err := os.Create(pdf)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("%PDF-1.7\n")
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o600))

	require.Eventually(t, func() bool { return len(rec.seen()) > 0 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, []string{pdf}, rec.seen())
}

func TestWatcher_ScanExisting(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.pdf", "c.docx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	rec := &recorder{}
	w, err := NewWatcher(dir, rec.handle, WithDebounce(50*time.Millisecond), WithScanExisting(true))
	require.NoError(t, err)
	stop := startWatcher(t, w)
	defer stop()

	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.pdf")}, rec.seen())
}

func TestSettled(t *testing.T) {
	now := time.Now()
	pending := map[string]time.Time{
		"b": now.Add(-2 * time.Second),
		"a": now.Add(-time.Second),
		"c": now.Add(-100 * time.Millisecond),
	}
	assert.Equal(t, []string{"a", "b"}, settled(pending, now, time.Second))
}

func TestIsDocument(t *testing.T) {
	assert.True(t, IsDocument("x.pdf"))
	assert.True(t, IsDocument("/tmp/X.PDF"))
	assert.False(t, IsDocument("x.pdf.tmp"))
	assert.False(t, IsDocument("pdf"))
}
