package config

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides configuration for fx dependency injection.
var Module = fx.Module("config",
	fx.Provide(ProvideLoader),
	fx.Provide(ProvideWatcher),
	fx.Invoke(func(*Watcher) {}),
)

// ProvideLoader provides a configuration loader.
func ProvideLoader() *Loader {
	return NewLoader()
}

// ProvideConfigWithPath provides configuration from a specific path.
// An empty path falls back to TWITCHBOT_CONFIG and the default locations.
func ProvideConfigWithPath(path string) func(*Loader) (*Config, error) {
	return func(loader *Loader) (*Config, error) {
		cfg, err := loader.Load(path)
		if err != nil {
			return nil, err
		}
		if err := ValidateConfig(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
}

// ProvideWatcher provides a configuration watcher with hot-reload.
func ProvideWatcher(loader *Loader, cfg *Config, lc fx.Lifecycle, logger *zap.Logger) *Watcher {
	watcher := NewWatcher(loader, cfg, logger)

	watcher.AddHandler(func(newCfg *Config) error {
		bot := newCfg.BotSettings()
		logger.Info("Configuration reloaded",
			zap.String("prefix", bot.Prefix),
			zap.Int("owners", len(bot.Owners)),
		)
		return nil
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.Path() == "" {
				return nil
			}
			logger.Info("Starting configuration watcher", zap.String("file", cfg.Path()))
			return watcher.Start()
		},
		OnStop: func(ctx context.Context) error {
			watcher.Stop()
			return nil
		},
	})

	return watcher
}
