package commands

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"twitchbot/pkg/logger"
)

// Watcher reloads a definitions directory into the registry on change.
// Commands without a source file are kept in front of the loaded ones.
type Watcher struct {
	log      *logger.Logger
	loader   *Loader
	registry *Registry
	dir      string
	delay    time.Duration

	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	reloads  int
	started  bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher for dir.
func NewWatcher(log *logger.Logger, loader *Loader, registry *Registry, dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		log:      log.Module("commands-watcher"),
		loader:   loader,
		registry: registry,
		dir:      dir,
		delay:    100 * time.Millisecond,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start loads the directory once and then watches it.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.Reload(); err != nil {
		return err
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	w.log.Info("Command watcher started", zap.String("dir", w.dir))
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.fsw.Close()
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if started {
			<-w.done
		}
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return err
}

// Reload re-reads the directory and swaps the registry contents.
func (w *Watcher) Reload() error {
	results, err := w.loader.LoadDir(w.dir)
	if err != nil {
		return err
	}
	loaded := Commands(results)

	if err := swapLoaded(w.registry, loaded); err != nil {
		return err
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.log.Info("Command definitions loaded",
		zap.Int("loaded", len(loaded)),
		zap.Int("skipped", len(results)-len(loaded)),
		zap.Int("total", w.registry.Len()))
	return nil
}

// Reloads returns how many times the directory has been loaded.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isDefinitionFile(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("Command definition changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()))
			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("Command watcher error", zap.Error(err))
		}
	}
}

// schedule debounces bursts of events into a single reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		if err := w.Reload(); err != nil {
			w.log.Warn("Failed to reload command definitions", zap.Error(err))
		}
	})
}
