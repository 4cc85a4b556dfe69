package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher follows a config file on disk and exposes its enabled flag
// live. It satisfies seer.Preferences.
//
// The parent directory is watched rather than the file so editors that
// replace the file by rename are still seen.
type Watcher struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	enabled atomic.Bool

	mu       sync.Mutex
	onChange func(*Config)
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher prepares a watcher for path, seeded from initial.
func NewWatcher(path string, initial *Config, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		logger:  logger.Named("config"),
		watcher: fw,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	w.enabled.Store(initial == nil || initial.Enabled)
	return w, nil
}

// Enabled reports the last successfully loaded enabled flag.
func (w *Watcher) Enabled() bool {
	return w.enabled.Load()
}

// OnChange registers fn to be called with every successfully reloaded
// config. It runs on the watcher goroutine.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}
	w.running = true

	go w.run(ctx)
	w.logger.Debug("watching config", zap.String("path", w.path))
	return nil
}

// Stop ends the watch and waits for the goroutine to exit. A watcher that
// was never started is just closed.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("close file watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// reload re-reads the file. A file that fails to load leaves the previous
// value in place.
func (w *Watcher) reload() {
	// An empty file is mid-write; the write that fills it sends another
	// event.
	if fi, err := os.Stat(w.path); err != nil || fi.Size() == 0 {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous settings", zap.Error(err))
		return
	}

	prev := w.enabled.Swap(cfg.Enabled)
	if prev != cfg.Enabled {
		w.logger.Info("seer preference changed", zap.Bool("enabled", cfg.Enabled))
	}

	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(cfg)
	}
}
