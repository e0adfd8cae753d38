package cron

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"twitchbot/pkg/chat"
	"twitchbot/pkg/config"
	"twitchbot/pkg/logger"
)

// Module is the fx module for timers.
var Module = fx.Module("cron",
	fx.Provide(NewManager),
)

// NewManager creates the timer manager for fx. Disabled timers still
// yield a manager so the admin API can edit jobs.
func NewManager(
	lc fx.Lifecycle,
	log *logger.Logger,
	cfg *config.Config,
	transport chat.Transport,
) *Manager {
	manager := New(log, transport, cfg.Timers.File)
	if !cfg.Timers.Enabled {
		if err := manager.loadJobs(); err != nil {
			log.Warn("Failed to load timers", zap.Error(err))
		}
		return manager
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return manager.Start()
		},
		OnStop: func(ctx context.Context) error {
			return manager.Stop()
		},
	})

	return manager
}
