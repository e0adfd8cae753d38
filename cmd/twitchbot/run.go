package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"twitchbot/pkg/auth"
	"twitchbot/pkg/bus"
	"twitchbot/pkg/channels"
	"twitchbot/pkg/commands"
	"twitchbot/pkg/config"
	"twitchbot/pkg/cron"
	"twitchbot/pkg/gateway"
	"twitchbot/pkg/logger"
	"twitchbot/pkg/state"
	"twitchbot/pkg/webui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Twitch chat and serve commands",
	Long: `Connect to the configured channels and dispatch chat commands until
interrupted.

Examples:
  # Default config (~/.twitchbot/config.json)
  twitchbot run

  # Explicit config file
  twitchbot run -c ./config.yaml`,
	RunE: runBot,
}

// appOptions assembles every module of the bot.
func appOptions(opts ...fx.Option) []fx.Option {
	base := []fx.Option{
		fx.Provide(config.ProvideConfigWithPath(configPath)),
		config.Module,
		logger.Module,
		bus.Module,
		state.Module,
		auth.Module,
		channels.Module,
		commands.Module,
		cron.Module,
		gateway.Module,
		webui.Module,
		fx.NopLogger,
	}
	return append(base, opts...)
}

func newApp(opts ...fx.Option) *fx.App {
	return fx.New(appOptions(opts...)...)
}

func runBot(cmd *cobra.Command, args []string) error {
	app := newApp(
		fx.Invoke(func(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config, registry *commands.Registry, t *channels.Twitch) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					bot := cfg.BotSettings()
					log.Info("Bot started",
						zap.String("username", t.BotUsername()),
						zap.Strings("channels", t.JoinedChannels()),
						zap.String("prefix", bot.Prefix),
						zap.Int("commands", registry.Len()))
					log.Info("Press Ctrl+C to stop")
					return nil
				},
			})
		}),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	startCtx, startCancel := context.WithTimeout(ctx, app.StartTimeout())
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("starting bot: %w", err)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping bot: %w", err)
	}
	return nil
}
