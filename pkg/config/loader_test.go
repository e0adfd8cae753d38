package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_UsesConfigPathEnvWhenPathEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "from-env.json")

	seed := DefaultConfig()
	seed.Bot.Prefix = "?"
	seed.Gateway.Port = 29999

	if err := NewLoader().Save(cfgPath, seed); err != nil {
		t.Fatalf("save config: %v", err)
	}

	t.Setenv(ConfigPathEnv, cfgPath)

	got, err := NewLoader().Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got.Gateway.Port != 29999 {
		t.Fatalf("expected gateway port 29999, got %d", got.Gateway.Port)
	}
	if got.Bot.Prefix != "?" {
		t.Fatalf("expected prefix ?, got %q", got.Bot.Prefix)
	}
	if got.Path() != cfgPath {
		t.Fatalf("expected path %s, got %s", cfgPath, got.Path())
	}
}

func TestLoad_AutoCreatesMissingFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.json")

	got, err := NewLoader().Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if got.Bot.Prefix != "!" {
		t.Fatalf("expected default prefix, got %q", got.Bot.Prefix)
	}
	if got.Bot.Cooldown() != time.Second {
		t.Fatalf("expected default cooldown 1s, got %v", got.Bot.Cooldown())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	content := `{"bot": {"username": "filebot", "prefix": "!"}}`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TWITCHBOT_BOT_PREFIX", "$")
	t.Setenv("TWITCHBOT_TWITCH_CLIENT_ID", "abc")

	got, err := NewLoader().Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got.Bot.Username != "filebot" {
		t.Fatalf("expected username from file, got %q", got.Bot.Username)
	}
	if got.Bot.Prefix != "$" {
		t.Fatalf("expected env prefix $, got %q", got.Bot.Prefix)
	}
	if got.Twitch.ClientID != "abc" {
		t.Fatalf("expected env client id, got %q", got.Twitch.ClientID)
	}
}

func TestSave_PersistsRefreshedTokens(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	loader := NewLoader()

	cfg, err := loader.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	obtained := time.UnixMilli(1700000000000)
	cfg.UpdateTokens("access-2", "refresh-2", 3600, obtained)
	if err := loader.Save(cfgPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	got, err := NewLoader().Load(cfgPath)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	tw := got.TwitchSettings()
	if tw.AccessToken != "access-2" || tw.RefreshToken != "refresh-2" {
		t.Fatalf("tokens not persisted: %+v", tw)
	}
	if tw.ObtainmentTimestamp != obtained.UnixMilli() {
		t.Fatalf("expected obtainment %d, got %d", obtained.UnixMilli(), tw.ObtainmentTimestamp)
	}
}

func TestUpdateTokensKeepsRefreshTokenWhenEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Twitch.RefreshToken = "keep"

	cfg.UpdateTokens("new", "", 10, time.Now())

	if cfg.Twitch.RefreshToken != "keep" {
		t.Fatalf("expected refresh token to be kept, got %q", cfg.Twitch.RefreshToken)
	}
	if cfg.Twitch.AccessToken != "new" {
		t.Fatalf("expected access token new, got %q", cfg.Twitch.AccessToken)
	}
}

func TestBotSettingsReturnsCopy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bot.Owners = []string{"alice"}

	bot := cfg.BotSettings()
	bot.Owners[0] = "mallory"

	if cfg.Bot.Owners[0] != "alice" {
		t.Fatalf("BotSettings leaked internal slice")
	}
}
