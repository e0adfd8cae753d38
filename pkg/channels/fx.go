package channels

import (
	"context"

	"go.uber.org/fx"
	"golang.org/x/oauth2"

	"twitchbot/pkg/auth"
	"twitchbot/pkg/chat"
	"twitchbot/pkg/commands"
	"twitchbot/pkg/config"
	"twitchbot/pkg/logger"
)

// Module is the fx module for channels.
var Module = fx.Module("channels",
	fx.Provide(NewTwitchChannel),
	fx.Provide(func(t *Twitch) chat.Transport { return t }),
	fx.Invoke(ConnectDispatcher),
)

// NewTwitchChannel creates the Twitch channel and ties it to the app lifecycle.
func NewTwitchChannel(
	lc fx.Lifecycle,
	log *logger.Logger,
	cfg *config.Config,
	refresher *auth.Refresher,
) *Twitch {
	bot := cfg.BotSettings()
	tw := cfg.TwitchSettings()

	t := NewTwitch(log, TwitchOptions{
		Username:   bot.Username,
		Channels:   bot.Channels,
		ClientID:   tw.ClientID,
		HTTPClient: oauth2.NewClient(context.Background(), refresher.TokenSource(context.Background())),
		Token: func(ctx context.Context) (string, error) {
			tok, err := refresher.Token(ctx)
			if err != nil {
				return "", err
			}
			return tok.AccessToken, nil
		},
	})

	refresher.OnRefresh(func(tok *oauth2.Token) {
		t.SetToken(tok.AccessToken)
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return t.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return t.Stop(ctx)
		},
	})

	return t
}

// ConnectDispatcher routes inbound chat into the dispatcher.
func ConnectDispatcher(t *Twitch, d *commands.Dispatcher) {
	t.SetHandler(d.Handle)
}
