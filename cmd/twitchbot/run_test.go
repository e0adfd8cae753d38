package main

import (
	"testing"

	"go.uber.org/fx"

	"twitchbot/pkg/channels"
	"twitchbot/pkg/commands"
	"twitchbot/pkg/gateway"
	"twitchbot/pkg/webui"
)

func TestAppGraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(appOptions(
		fx.Invoke(func(*commands.Dispatcher, *channels.Twitch, *gateway.Server, *webui.Server) {}),
	)...)
	if err != nil {
		t.Fatalf("fx graph: %v", err)
	}
}
