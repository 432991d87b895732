package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before reloading. Editors often emit several events per save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the configuration when the main file or any include
// changes, and hands each successfully loaded configuration to a callback.
// Failed reloads are logged and the previous configuration stays active.
type Watcher struct {
	loader   *Loader
	onChange func(*Config)
	logger   *zap.Logger
	debounce time.Duration

	fs   *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	sources map[string]bool
	timer   *time.Timer

	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for reload reporting.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce overrides the reload debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over the loader's source files. onChange runs
// once per successful reload, from the watcher's goroutine.
func NewWatcher(loader *Loader, onChange func(*Config), opts ...WatcherOption) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		loader:   loader,
		onChange: onChange,
		logger:   zap.NewNop(),
		debounce: DefaultDebounce,
		fs:       fs,
		done:     make(chan struct{}),
		sources:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.refreshSources(); err != nil {
		fs.Close()
		return nil, err
	}
	return w, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fs.Close()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.isSource(event.Name) {
				continue
			}
			w.logger.Debug("config file changed", zap.String("file", event.Name))
			w.scheduleReload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// scheduleReload resets the debounce timer so a burst of events produces one
// reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error("config reload failed, keeping previous configuration",
			zap.String("path", w.loader.Path()),
			zap.Error(err))
		return
	}

	// the include list may have changed
	if err := w.refreshSources(); err != nil {
		w.logger.Warn("config watch refresh failed", zap.Error(err))
	}

	w.logger.Info("configuration reloaded", zap.String("path", w.loader.Path()))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// refreshSources recomputes the watched file set and watches each parent
// directory. Directories are watched rather than files because editors
// replace files on save.
func (w *Watcher) refreshSources() error {
	sources, err := w.loader.Sources()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.sources = make(map[string]bool, len(sources))
	dirs := make(map[string]bool)
	for _, src := range sources {
		w.sources[filepath.Clean(src)] = true
		dirs[filepath.Dir(src)] = true
	}
	w.mu.Unlock()

	for dir := range dirs {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}

func (w *Watcher) isSource(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sources[filepath.Clean(name)]
}
