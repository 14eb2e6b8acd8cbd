package confloader

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/muxd/internal/telemetry/logger"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports changes to a single configuration file.
//
// The parent directory is watched rather than the file, so atomic
// rename-over saves are seen too.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   logger.Logger
	debounce time.Duration

	mu        sync.RWMutex
	path      string
	callbacks []func(string)

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithDebounce sets the quiet period before callbacks fire.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher creates a configuration file watcher.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		logger:   logger.Default(),
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch starts tracking path.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.mu.Lock()
	w.path = abs
	w.mu.Unlock()
	w.logger.Debug("watching config file", "path", abs)
	return nil
}

// OnChange registers a callback receiving the changed file path.
func (w *Watcher) OnChange(cb func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start processes events until Stop. It blocks.
func (w *Watcher) Start() {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			w.notify()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return filepath.Clean(event.Name) == w.path
}

func (w *Watcher) notify() {
	w.mu.RLock()
	path := w.path
	cbs := make([]func(string), len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.RUnlock()

	w.logger.Info("config file changed", "path", path)
	for _, cb := range cbs {
		cb(path)
	}
}
