package commands

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"twitchbot/pkg/bus"
	"twitchbot/pkg/chat"
	"twitchbot/pkg/config"
	"twitchbot/pkg/logger"
	"twitchbot/pkg/state"
)

// Module provides the command dispatch system.
var Module = fx.Module("commands",
	fx.Provide(NewRegistry),
	fx.Provide(ProvideResponder),
	fx.Provide(ProvideGate),
	fx.Provide(ProvideDispatcher),
	fx.Provide(ProvideLoader),
	fx.Invoke(registerBuiltins),
	fx.Invoke(startDefinitionWatcher),
)

// ProvideResponder wraps the chat transport.
func ProvideResponder(t chat.Transport) *chat.Responder {
	return chat.NewResponder(t)
}

// ProvideGate builds a gate reading owners from the live config.
func ProvideGate(cfg *config.Config, t chat.Transport) *Gate {
	return NewGate(
		func() []string { return cfg.BotSettings().Owners },
		t.BotUsername,
	)
}

// ProvideDispatcher builds the dispatcher from configuration.
func ProvideDispatcher(
	registry *Registry,
	gate *Gate,
	responder *chat.Responder,
	cfg *config.Config,
	b bus.Bus,
	usage *state.Usage,
	log *logger.Logger,
	lc fx.Lifecycle,
) *Dispatcher {
	d := NewDispatcher(registry, gate, responder,
		WithPrefix(func() string { return cfg.BotSettings().Prefix }),
		WithCooldown(func() time.Duration { return cfg.BotSettings().Cooldown() }),
		WithBus(b),
		WithResultHook(func(res Result) { usage.Record(res.Command, res.Failed()) }),
		WithLogger(log),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				d.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				log.Warn("Shutting down with command handlers still running")
			}
			return nil
		},
	})

	return d
}

// ProvideLoader builds the definition loader.
func ProvideLoader(responder *chat.Responder, cfg *config.Config, log *logger.Logger) *Loader {
	return NewLoader(responder, func() string { return cfg.BotSettings().Prefix }, log)
}

func registerBuiltins(registry *Registry, responder *chat.Responder, cfg *config.Config, log *logger.Logger) error {
	prefix := func() string { return cfg.BotSettings().Prefix }
	if err := RegisterBuiltinCommands(registry, responder, prefix); err != nil {
		log.Error("Failed to register builtin commands", zap.Error(err))
		return err
	}

	log.Info("Registered builtin commands", zap.Int("count", registry.Len()))
	return nil
}

// startDefinitionWatcher loads commands_dir and, when enabled, keeps it in sync.
func startDefinitionWatcher(
	lc fx.Lifecycle,
	registry *Registry,
	loader *Loader,
	cfg *config.Config,
	log *logger.Logger,
) error {
	bot := cfg.BotSettings()
	if bot.CommandsDir == "" {
		return nil
	}

	if !bot.WatchCommands {
		results, err := loader.LoadDir(bot.CommandsDir)
		if err != nil {
			return err
		}
		for _, cmd := range Commands(results) {
			if err := registry.RegisterCommand(cmd); err != nil {
				return err
			}
		}
		log.Info("Loaded command definitions",
			zap.String("dir", bot.CommandsDir),
			zap.Int("count", len(Commands(results))))
		return nil
	}

	w, err := NewWatcher(log, loader, registry, bot.CommandsDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return w.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			return w.Stop()
		},
	})
	return nil
}
