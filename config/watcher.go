package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/spanz"
	"go.uber.org/zap"
)

// Watcher watches configuration files for changes.
type Watcher struct {
	watcher   *fsnotify.Watcher
	callbacks []func(string)
	mu        sync.RWMutex
	done      chan struct{}
	stopOnce  sync.Once
	logger    *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a new configuration file watcher.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher: fw,
		done:    make(chan struct{}),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds the directory holding path, so editors that replace the file
// by rename are still seen.
func (w *Watcher) Watch(path string) error {
	dir := filepath.Dir(path)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Error("failed to watch directory", zap.String("path", dir), zap.Error(err))
		return err
	}
	w.logger.Debug("watching directory for changes",
		zap.String("path", dir),
		zap.String("file", filepath.Base(path)),
	)
	return nil
}

// OnChange registers a callback receiving the path of each changed file.
func (w *Watcher) OnChange(callback func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start blocks until Stop is called.
func (w *Watcher) Start() {
	w.logger.Info("configuration watcher started")
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("configuration file changed",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()),
				)
				w.notify(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("configuration watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop stops the watcher. Calls after the first are no-ops.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		if err = w.watcher.Close(); err != nil {
			w.logger.Error("failed to close watcher", zap.Error(err))
			return
		}
		w.logger.Info("configuration watcher stopped")
	})
	return err
}

func (w *Watcher) notify(path string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, cb := range w.callbacks {
		cb(path)
	}
}

// Reload re-reads the configuration through opts and swaps the configured
// listeners on recorder.
func (a *Assembly) Reload(recorder *spanz.Recorder, opts ...Option) error {
	cfg, err := Read(opts...)
	if err != nil {
		return err
	}
	return a.Rebuild(recorder, cfg.Listeners)
}

// ReloadOnChange watches the loader's file and reloads the listener chain
// whenever it is written. A failed reload leaves the previous chain in place.
func ReloadOnChange(w *Watcher, a *Assembly, recorder *spanz.Recorder, logger *zap.Logger, opts ...Option) error {
	path := NewLoader(opts...).FilePath()
	if path == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := w.Watch(path); err != nil {
		return err
	}
	target := filepath.Clean(path)
	w.OnChange(func(changed string) {
		if filepath.Clean(changed) != target {
			return
		}
		if err := a.Reload(recorder, opts...); err != nil {
			logger.Error("configuration reload failed", zap.String("file", path), zap.Error(err))
			return
		}
		logger.Info("configuration reloaded",
			zap.String("file", path),
			zap.Int("listeners", len(recorder.SpanListeners())),
		)
	})
	return nil
}
