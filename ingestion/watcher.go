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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HandlerFunc receives the path of a document that settled in a watched directory.
type HandlerFunc func(ctx context.Context, path string)

// Watcher feeds PDF files dropped into a directory to a handler. Rapid
// successive writes to one file collapse into a single call.
type Watcher struct {
	dir          string
	handler      HandlerFunc
	debounce     time.Duration
	tick         time.Duration
	scanExisting bool
	logger       *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher) error

// WithDebounce sets how long a file must stay quiet before it is handled.
// Default is 1s.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) error {
		if d <= 0 {
			return fmt.Errorf("debounce must be positive, got %s", d)
		}
		w.debounce = d
		if d/5 < w.tick {
			w.tick = max(d/5, time.Millisecond)
		}
		return nil
	}
}

// WithScanExisting hands PDFs already present in the directory to the
// handler when Run starts.
func WithScanExisting(scan bool) WatcherOption {
	return func(w *Watcher) error {
		w.scanExisting = scan
		return nil
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger.With("component", "watcher")
		return nil
	}
}

// NewWatcher creates a Watcher over dir.
func NewWatcher(dir string, handler HandlerFunc, opts ...WatcherOption) (*Watcher, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch directory: %s is not a directory", dir)
	}
	w := &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: time.Second,
		tick:     100 * time.Millisecond,
		logger:   slog.Default().With("component", "watcher"),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// IsDocument reports whether path names a file the watcher handles.
func IsDocument(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Run watches until ctx is done. Handlers run on the watcher goroutine, one
// file at a time.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory", "dir", w.dir, "debounce", w.debounce)

	pending := make(map[string]time.Time)
	if w.scanExisting {
		existing, err := w.existing()
		if err != nil {
			return err
		}
		for _, path := range existing {
			pending[path] = time.Time{}
		}
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped", "dir", w.dir)
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsDocument(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				pending[event.Name] = time.Now()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "err", err)

		case now := <-ticker.C:
			for _, path := range settled(pending, now, w.debounce) {
				delete(pending, path)
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Info("document settled", "path", path)
				w.handler(ctx, path)
			}
		}
	}
}

func (w *Watcher) existing() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", w.dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsDocument(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	return paths, nil
}

// settled returns the pending paths quiet for at least d, sorted by path.
func settled(pending map[string]time.Time, now time.Time, d time.Duration) []string {
	var ready []string
	for path, last := range pending {
		if now.Sub(last) >= d {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	return ready
}
