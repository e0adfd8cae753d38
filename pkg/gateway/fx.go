package gateway

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"twitchbot/pkg/bus"
	"twitchbot/pkg/chat"
	"twitchbot/pkg/commands"
	"twitchbot/pkg/config"
	"twitchbot/pkg/logger"
)

// Module provides the gateway server for fx dependency injection.
var Module = fx.Module("gateway",
	fx.Provide(ProvideServer),
	fx.Invoke(registerLifecycle),
)

// ProvideServer builds the server from the gateway config section.
func ProvideServer(cfg *config.Config, log *logger.Logger, b bus.Bus, d *commands.Dispatcher, t chat.Transport) *Server {
	return NewServer(cfg.Gateway, log, b, d, t)
}

func registerLifecycle(lc fx.Lifecycle, s *Server, cfg *config.Config, log *logger.Logger) {
	if !cfg.Gateway.Enabled {
		log.Info("Gateway server disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting gateway",
				zap.String("host", cfg.Gateway.Host),
				zap.Int("port", cfg.Gateway.Port),
			)
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Stop(shutdownCtx)
		},
	})
}
