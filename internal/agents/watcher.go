package agents

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"reelgate/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reloads an agents file into a Catalog when it changes. A file that
// fails to load leaves the previous definitions in place.
type Watcher struct {
	watcher *fsnotify.Watcher
	catalog *Catalog
	path    string
	stopCh  chan struct{}

	mu       sync.Mutex
	timer    *time.Timer
	onReload func(error)
}

// NewWatcher creates a watcher for path feeding catalog.
func NewWatcher(catalog *Catalog, path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher: w,
		catalog: catalog,
		path:    abs,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnReload registers a callback invoked after every reload attempt.
func (w *Watcher) OnReload(fn func(error)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Start begins watching. The parent directory is watched so that editors
// replacing the file by rename are seen.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	log := logger.Component("agents")
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("agents watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	log := logger.Component("agents")

	f, err := LoadFile(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("agents reload failed, keeping previous definitions")
	} else {
		w.catalog.Replace(f)
		log.Info().Str("path", w.path).Int("definitions", len(f.Agents)).Msg("agents reloaded")
	}

	w.mu.Lock()
	fn := w.onReload
	w.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Stop stops watching and cancels any pending reload.
func (w *Watcher) Stop() {
	close(w.stopCh)

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.watcher.Close()
}
