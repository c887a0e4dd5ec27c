// Package watcher reruns a handler whenever a single file changes on disk.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ivlev/phrase2video/internal/logging"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 300 * time.Millisecond

// Watcher defines the interface for file system monitoring
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// Handler is called with the watched path after it settles.
type Handler func(ctx context.Context, path string) error

type implWatcher struct {
	path     string
	handler  Handler
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// New watches path. The parent directory is watched so that editors which
// replace the file by rename keep triggering events.
func New(path string, handler Handler, logger *slog.Logger, debounce time.Duration) (Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &implWatcher{
		path:     abs,
		handler:  handler,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "watcher"),
		watcher:  fw,
		debounce: debounce,
	}, nil
}

// Start blocks until ctx is done. Handler runs are serialized; a failing
// run is logged and the watch continues.
func (w *implWatcher) Start(ctx context.Context) error {
	w.logger.Info("watching file", "path", w.path, "debounce", w.debounce)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("change detected", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.handler(ctx, w.path); err != nil {
				w.logger.Error("handler failed", "path", w.path, "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Stop closes the file watcher
func (w *implWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *implWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
