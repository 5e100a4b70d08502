package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the registry when its state file changes on disk, so
// endpoints provisioned by an external tool show up without a restart.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher creates a watcher over the registry's state file. The parent
// directory is watched rather than the file itself because atomic saves
// replace the file via rename.
func NewWatcher(reg *Registry, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(reg.Path())); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch state directory: %w", err)
	}

	return &Watcher{
		registry: reg,
		watcher:  fsw,
		logger:   logger,
	}, nil
}

// Start blocks watching for state-file changes until the context is done.
// Rapid change bursts are debounced; a failed reload keeps the last-known-good
// in-memory state.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("Registry state watcher started",
		slog.String("path", w.registry.Path()))

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Registry state watcher stopped")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Name != w.registry.Path() {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce.Reset(debounceDelay)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("Registry state watcher error", slog.Any("err", err))

		case <-debounce.C:
			w.registry.Load()
			w.logger.Info("Registry reloaded from state file",
				slog.Int("endpoints", w.registry.Len()))
		}
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
