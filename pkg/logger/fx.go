package logger

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"twitchbot/pkg/config"
)

// Module provides logger for fx dependency injection.
var Module = fx.Module("logger",
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideZap),
)

// FromConfig maps the serializable config section onto a logger Config.
func FromConfig(section config.LoggerConfig) *Config {
	cfg := DefaultConfig()
	cfg.Level = Level(section.Level)
	cfg.OutputPath = section.OutputPath
	if section.MaxSize > 0 {
		cfg.MaxSize = section.MaxSize
	}
	if section.MaxBackups > 0 {
		cfg.MaxBackups = section.MaxBackups
	}
	if section.MaxAge > 0 {
		cfg.MaxAge = section.MaxAge
	}
	cfg.Compress = section.Compress
	cfg.Development = section.Development
	return cfg
}

// ProvideLogger builds the application logger from configuration.
func ProvideLogger(cfg *config.Config, lc fx.Lifecycle) (*Logger, error) {
	logCfg := FromConfig(cfg.Logger)
	logger, err := New(logCfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Logger initialized",
				zap.String("level", string(logCfg.Level)),
				zap.String("output", logCfg.OutputPath),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down logger")
			// stdout sync fails on some platforms; nothing to do about it.
			_ = logger.Sync()
			return nil
		},
	})

	return logger, nil
}

// ProvideZap exposes the underlying zap logger for packages that take one.
func ProvideZap(l *Logger) *zap.Logger {
	return l.Logger
}
