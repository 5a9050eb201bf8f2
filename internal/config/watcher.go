package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"agentkeeper/internal/logger"
)

// Watcher monitors the config file and invokes a callback with the
// re-parsed configuration whenever it changes. Parse or validation errors
// keep the previous configuration in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		watcher:  w,
		onChange: onChange,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins watching. Watching the parent directory instead of the file
// itself survives editors that replace the file on save.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.stopped {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.started = true

	log := logger.WithComponent("config-watcher")
	log.Info().Str("path", w.path).Msg("Watching config file for changes")

	go w.watch()
	return nil
}

// Stop stops watching and releases the underlying file watcher. Safe to
// call whether or not Start succeeded.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true

	if w.started {
		close(w.stopChan)
	}
	return w.watcher.Close()
}

func (w *Watcher) watch() {
	log := logger.WithComponent("config-watcher")
	filename := filepath.Base(w.path)

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				log.Error().Err(err).Msg("Config changed but failed to reload, keeping previous settings")
				continue
			}

			log.Info().Str("event", event.Op.String()).Msg("Config file changed, applying")
			if w.onChange != nil {
				w.onChange(cfg)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")
		}
	}
}
