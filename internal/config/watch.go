package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the per-tenant limits and provider-credential
// sections of a config file, without requiring a process restart. Static
// fields (ports, store DSN) are read once at startup and are not affected
// by a reload.
type Watcher struct {
	path    string
	mu      sync.RWMutex
	current *Config
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher loads path once and begins watching it for changes.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, current: cfg, watcher: fsw, logger: logger}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := Load(w.path)
			if err != nil {
				if w.logger != nil {
					w.logger.Warn("config reload failed, keeping previous config", "error", err)
				}
				continue
			}
			w.mu.Lock()
			w.current.Tenants = reloaded.Tenants
			w.current.Providers = reloaded.Providers
			w.mu.Unlock()
			if w.logger != nil {
				w.logger.Info("config reloaded", "path", w.path)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("config watcher error", "error", err)
			}
		}
	}
}

// Current returns a snapshot of the live configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cfg := *w.current
	return &cfg
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
