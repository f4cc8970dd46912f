package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"

	"github.com/aintyourcupoftea/PDF-Signer/internal/stamp"
)

const reloadDelay = 100 * time.Millisecond

// Watcher re-reads the config file when it changes and publishes the
// resulting stamp placement. Only placement values are reloaded; listener
// and staging settings need a restart.
type Watcher struct {
	path    string
	base    Config
	changed map[string]bool
	logger  zerolog.Logger

	mu        sync.RWMutex
	placement stamp.Placement

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// NewWatcher creates a watcher for path. base is the configuration before
// the file was applied, so flag values in changed keep winning on reload.
func NewWatcher(path string, base Config, changed map[string]bool, logger zerolog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, goerr.New("config path is required for watching")
	}
	w := &Watcher{
		path:    path,
		base:    base,
		changed: changed,
		logger:  logger,
	}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Placement returns the most recently loaded placement.
func (w *Watcher) Placement() stamp.Placement {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.placement
}

// Reload reads the file again. On error the previous placement is kept.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path, w.base, w.changed)
	if err != nil {
		return goerr.Wrap(err, "failed to reload config", goerr.V("path", w.path))
	}

	p := cfg.Placement()
	w.mu.Lock()
	w.placement = p
	w.mu.Unlock()

	w.logger.Debug().
		Int("page", p.PageIndex).
		Float64("scale", p.Scale).
		Float64("offset_x", p.OffsetX).
		Float64("offset_y", p.OffsetY).
		Msg("placement loaded")
	return nil
}

// Run watches the directory holding the config file until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "failed to create file watcher")
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return goerr.Wrap(err, "failed to watch config directory", goerr.V("dir", dir))
	}
	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			w.stopDebounce()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(reloadDelay, func() {
		if err := w.Reload(); err != nil {
			w.logger.Warn().Err(err).Msg("keeping previous placement")
			return
		}
		w.logger.Info().Str("path", w.path).Msg("config reloaded")
	})
}

func (w *Watcher) stopDebounce() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}
