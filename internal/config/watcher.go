package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the YAML config file when it changes and hands the new
// config to every registered callback.
type Watcher struct {
	path      string
	logger    *zap.Logger
	fs        *fsnotify.Watcher
	mu        sync.RWMutex
	current   Config
	callbacks []func(Config)
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWatcher starts watching initial.Path(). The directory is watched rather
// than the file so editors that replace the file are still seen.
func NewWatcher(initial Config, logger *zap.Logger) (*Watcher, error) {
	if initial.Path() == "" {
		return nil, fmt.Errorf("config was not loaded from a file")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(initial.Path())); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", initial.Path(), err)
	}
	w := &Watcher{
		path:    initial.Path(),
		logger:  logger,
		fs:      fsw,
		current: initial,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.loop()
	logger.Info("config hot reload enabled", zap.String("path", w.path))
	return w, nil
}

// OnChange registers fn to run after each successful reload.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
	})
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	defer w.fs.Close()

	var debounce *time.Timer
	target := filepath.Clean(w.path)
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.mu.Lock()
	w.current = cfg
	callbacks := append([]func(Config){}, w.callbacks...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	w.logger.Info("config reloaded",
		zap.String("path", w.path),
		zap.Bool("moderation_enabled", cfg.Moderation.Enabled),
	)
}
