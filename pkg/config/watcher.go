package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay debounces bursts of write events from editors.
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher reloads a config document whenever it changes on disk.
type Watcher struct {
	path   string
	logger zerolog.Logger
	delay  time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
}

// NewWatcher creates a watcher for the document at path.
func NewWatcher(path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   path,
		logger: logger.With().Str("component", "config-watcher").Str("path", path).Logger(),
		delay:  DefaultReloadDelay,
	}
}

// SetDelay overrides the debounce delay.
func (w *Watcher) SetDelay(d time.Duration) {
	w.delay = d
}

// Watch starts watching and calls reloadFn with every successfully loaded
// revision. Documents that fail to load are logged and skipped; the caller
// keeps its previous revision. The watch stops when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, reloadFn func(*File) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory so atomic-rename saves are still seen.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	go w.processEvents(ctx, fw, reloadFn)

	w.logger.Info().Msg("Started watching layer config")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, fw *fsnotify.Watcher, reloadFn func(*File) error) {
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			_ = fw.Close()
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().Str("op", event.Op.String()).Msg("Layer config changed")

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.delay, func() {
				if err := w.reload(ctx, reloadFn); err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload layer config")
				}
			})
			w.mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context, reloadFn func(*File) error) error {
	if ctx.Err() != nil {
		return nil
	}

	f, err := Load(w.path)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	if err := reloadFn(f); err != nil {
		return fmt.Errorf("failed to apply reloaded config: %w", err)
	}

	w.logger.Info().Int("layers", len(f.Layers)).Msg("Layer config reloaded")
	return nil
}

// Stop closes the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
