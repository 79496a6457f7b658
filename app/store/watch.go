package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/m3rciful/markerbot/core/logger"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reports changes of the table file, including replacements made by hand.
// It watches the parent directory because every write swaps the file by rename.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func()
}

// NewWatcher builds a watcher for the store's table. onChange runs once per burst of
// events, after debounce has elapsed without further events.
func NewWatcher(s *Store, debounce time.Duration, onChange func()) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{path: s.Path(), debounce: debounce, onChange: onChange}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("store: create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("store: watch %s: %w", dir, err)
	}
	logger.Info(ctx, "store", "store.watch.start", slog.String("path", w.path))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "store", "store.watch.stop", slog.String("path", w.path))
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				logger.Debug(ctx, "store", "store.watch.changed", slog.String("path", w.path))
				if w.onChange != nil {
					w.onChange()
				}
			})
			mu.Unlock()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "store", "store.watch.error",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
}
