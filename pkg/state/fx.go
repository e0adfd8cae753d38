package state

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"twitchbot/pkg/config"
	"twitchbot/pkg/logger"
)

// Module is the fx module for state management.
var Module = fx.Module("state",
	fx.Provide(ProvideStore),
	fx.Provide(NewUsage),
)

// ProvideStore creates the configured store and closes it on shutdown.
func ProvideStore(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config) (Store, error) {
	stateConfig := &Config{
		Backend:       BackendType(cfg.State.Backend),
		FilePath:      cfg.State.FilePath,
		AutoSave:      true,
		SaveIntervalS: 5,
	}
	if stateConfig.Backend == BackendRedis {
		stateConfig.RedisAddr = cfg.Redis.Addr
		stateConfig.RedisPassword = cfg.Redis.Password
		stateConfig.RedisDB = cfg.Redis.DB
		stateConfig.RedisPrefix = cfg.State.Prefix
	}

	store, err := NewStore(log, stateConfig)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("State store initialized", zap.String("backend", string(stateConfig.Backend)))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})

	return store, nil
}
