package auth

import (
	"context"

	"go.uber.org/fx"
	"golang.org/x/oauth2"

	"twitchbot/pkg/config"
	"twitchbot/pkg/logger"
)

// Module provides token storage and refreshing.
var Module = fx.Module("auth",
	fx.Provide(ProvideOAuthConfig),
	fx.Provide(NewStore),
	fx.Provide(ProvideRefresher),
)

// ProvideOAuthConfig builds the oauth2 config from the twitch section.
func ProvideOAuthConfig(cfg *config.Config) *oauth2.Config {
	return NewOAuthConfig(cfg.TwitchSettings(), DefaultRedirectURL)
}

// ProvideRefresher creates the refresher and ties its scheduler to the app lifecycle.
func ProvideRefresher(lc fx.Lifecycle, log *logger.Logger, oauth *oauth2.Config, store *Store, cfg *config.Config) *Refresher {
	r := NewRefresher(log, oauth, store, cfg.TwitchSettings().RefreshSchedule)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.Start()
		},
		OnStop: func(ctx context.Context) error {
			r.Stop()
			return nil
		},
	})

	return r
}
