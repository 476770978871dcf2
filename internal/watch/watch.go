// Package watch turns audio files dropped into an inbox directory into
// pipeline items once they stop changing.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"tunetag/internal/fetch"
	"tunetag/internal/logger"
	"tunetag/pkg/utils"
)

const defaultSettle = 2 * time.Second

// Handler receives every batch of settled files. It runs on the watcher's
// goroutine, so the next batch waits until it returns.
type Handler func(ctx context.Context, items []fetch.Item)

// Watcher watches one directory, not recursively.
type Watcher struct {
	dir     string
	settle  time.Duration
	handle  Handler
	logger  *logger.Logger
	pending map[string]time.Time
	// handled remembers the modification time of every file already
	// passed to the handler so that the tagger's own rewrite is not
	// picked up as a new file.
	handled map[string]time.Time
}

// New creates a Watcher for dir. A zero settle uses two seconds.
func New(dir string, settle time.Duration, handle Handler, log *logger.Logger) *Watcher {
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{
		dir:     dir,
		settle:  settle,
		handle:  handle,
		logger:  log,
		pending: make(map[string]time.Time),
		handled: make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled. Audio files already in the
// directory are queued at start.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching %s", w.dir)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	start := time.Now().Add(-w.settle)
	for _, e := range entries {
		if !e.IsDir() && w.wanted(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = start
		}
	}

	ticker := time.NewTicker(max(w.settle/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.observe(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error: %v", err)

		case now := <-ticker.C:
			if items := w.settled(now); len(items) > 0 {
				w.logger.Info("Processing %d file(s) from inbox", len(items))
				w.handle(ctx, items)
				w.markHandled(items)
			}
		}
	}
}

func (w *Watcher) observe(event fsnotify.Event) {
	if !w.wanted(filepath.Base(event.Name)) {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.logger.Debug("  inbox event %s %s", event.Op, filepath.Base(event.Name))
		w.pending[event.Name] = time.Now()
	}
}

// settled removes and returns the pending files that have not changed for
// the settle period, sorted by path.
func (w *Watcher) settled(now time.Time) []fetch.Item {
	var paths []string
	for path, last := range w.pending {
		if now.Sub(last) < w.settle {
			continue
		}
		delete(w.pending, path)

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if mt, ok := w.handled[path]; ok && mt.Equal(info.ModTime()) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	items := make([]fetch.Item, 0, len(paths))
	for _, path := range paths {
		items = append(items, fetch.Item{
			Path:   path,
			Hints:  fetch.HintsFromFilename(path),
			Source: filepath.Base(path),
		})
	}
	return items
}

func (w *Watcher) markHandled(items []fetch.Item) {
	for _, item := range items {
		if info, err := os.Stat(item.Path); err == nil {
			w.handled[item.Path] = info.ModTime()
		} else {
			delete(w.handled, item.Path)
		}
	}
}

// wanted skips hidden files, which include the tagger's temp copies.
func (w *Watcher) wanted(name string) bool {
	return !strings.HasPrefix(name, ".") && utils.IsAudioFile(name)
}
