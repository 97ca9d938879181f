// Copyright 2025 Kadir Pekel
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

package rag

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces rapid write events per file.
const watchDebounce = 500 * time.Millisecond

// Watcher keeps the shared library in sync with study directories on disk:
// new and modified files are re-ingested, removed files are deleted.
type Watcher struct {
	library *Library
	watcher *fsnotify.Watcher
	dirs    []string

	mu      sync.Mutex
	pending map[string]*time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher over the given directories. Call Start to
// begin watching.
func NewWatcher(library *Library, dirs []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		library: library,
		watcher: fw,
		dirs:    dirs,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Start ingests all supported files already present, then watches for
// changes until Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.dirs {
		if err := w.ingestDir(ctx, dir); err != nil {
			return err
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		slog.Info("Watching study directory", "dir", dir)
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop stops watching and waits for in-flight ingestions to finish.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()

	return err
}

func (w *Watcher) ingestDir(ctx context.Context, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !w.library.extractors.Supported(path) {
			return nil
		}
		if _, err := w.library.IngestFile(ctx, "", path); err != nil {
			slog.Warn("Failed to ingest file", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.removeFile(ctx, path)

	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		if !w.library.extractors.Supported(path) {
			return
		}
		w.debounce(ctx, path)
	}
}

// debounce schedules ingestion after a quiet period, resetting the timer on
// each new event for the same file.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}

	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		if _, err := w.library.IngestFile(ctx, "", path); err != nil {
			slog.Warn("Failed to re-ingest changed file", "path", path, "error", err)
		}
	})
}

func (w *Watcher) removeFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	doc := w.library.findByName("", name)
	if doc == nil {
		return
	}
	if err := w.library.Delete(ctx, doc.ID); err != nil {
		slog.Warn("Failed to delete document for removed file", "path", path, "error", err)
	}
}
