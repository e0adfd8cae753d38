package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler is a callback function called when configuration changes.
type ChangeHandler func(*Config) error

// Watcher monitors the configuration file and pushes the reloaded bot
// section into the live Config.
type Watcher struct {
	loader   *Loader
	config   *Config
	log      *zap.Logger
	handlers []ChangeHandler
	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a new configuration watcher.
func NewWatcher(loader *Loader, config *Config, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		loader: loader,
		config: config,
		log:    log,
	}
}

// AddHandler registers a handler to be called when configuration changes.
func (w *Watcher) AddHandler(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching the configuration file for changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.watching = true
	w.mu.Unlock()

	w.loader.viper.OnConfigChange(func(e fsnotify.Event) {
		w.log.Debug("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		w.reload()
	})
	w.loader.viper.WatchConfig()

	return nil
}

// Stop stops notifying handlers. Viper keeps its own watcher goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watching = false
}

func (w *Watcher) reload() {
	w.mu.RLock()
	active := w.watching
	w.mu.RUnlock()
	if !active {
		return
	}

	fresh, err := NewLoader().Load(w.config.Path())
	if err != nil {
		w.log.Warn("Failed to reload config", zap.Error(err))
		return
	}
	if err := ValidateConfig(fresh); err != nil {
		w.log.Warn("Reloaded config is invalid, keeping current", zap.Error(err))
		return
	}

	// Only the bot section is hot-reloadable; transport and auth need a restart.
	w.config.SetBotSettings(fresh.BotSettings())
	w.notifyHandlers(w.config)
}

// notifyHandlers calls all registered handlers with the new configuration.
func (w *Watcher) notifyHandlers(config *Config) {
	w.mu.RLock()
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(config); err != nil {
			w.log.Warn("Config change handler failed", zap.Error(err))
		}
	}
}
