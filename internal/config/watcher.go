package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadCallback is invoked with the freshly loaded configuration after the
// config file changes on disk.
type ReloadCallback func(cfg *Config)

// Watcher monitors the config file and triggers reloads. Editors replace
// files rather than writing in place, so the parent directory is watched and
// events are debounced.
type Watcher struct {
	watcher    *fsnotify.Watcher
	loader     *Loader
	configPath string
	onReload   ReloadCallback
	debounce   time.Duration
	timer      *time.Timer
	timerMu    sync.Mutex
	done       chan struct{}
	stopOnce   sync.Once
}

// NewWatcher creates a config file watcher
func NewWatcher(loader *Loader, onReload ReloadCallback) (*Watcher, error) {
	configPath, err := loader.Path()
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:    fsWatcher,
		loader:     loader,
		configPath: configPath,
		onReload:   onReload,
		debounce:   200 * time.Millisecond,
		done:       make(chan struct{}),
	}, nil
}

// Start starts watching the config file's directory
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()

	log.Info().
		Str("path", w.configPath).
		Msg("Config watcher started")

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		cfg, err := w.loader.Load()
		if err != nil {
			log.Warn().Err(err).Msg("Config reload failed, keeping previous configuration")
			return
		}
		if err := cfg.Validate(); err != nil {
			log.Warn().Err(err).Msg("Reloaded config is invalid, keeping previous configuration")
			return
		}

		log.Info().Msg("Configuration reloaded")
		w.onReload(cfg)
	})
}
