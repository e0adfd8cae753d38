// Package config provides configuration management for twitchbot.
// It uses Viper for layered loading:
// - Built-in defaults
// - A JSON/YAML/TOML config file
// - A .env file and TWITCHBOT_* environment variables
// - Hot-reload of the bot section
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config represents the complete twitchbot configuration.
type Config struct {
	Bot     BotConfig     `mapstructure:"bot" json:"bot"`
	Twitch  TwitchConfig  `mapstructure:"twitch" json:"twitch"`
	Logger  LoggerConfig  `mapstructure:"logger" json:"logger"`
	Bus     BusConfig     `mapstructure:"bus" json:"bus"`
	Redis   RedisConfig   `mapstructure:"redis" json:"redis"`
	Gateway GatewayConfig `mapstructure:"gateway" json:"gateway"`
	WebUI   WebUIConfig   `mapstructure:"webui" json:"webui"`
	State   StateConfig   `mapstructure:"state" json:"state"`
	Timers  TimersConfig  `mapstructure:"timers" json:"timers"`

	path string
	mu   sync.RWMutex
}

// BotConfig holds the command dispatch settings.
type BotConfig struct {
	// Username is the bot account login. It decides the home channel and
	// which inbound messages count as self-originated.
	Username string   `mapstructure:"username" json:"username"`
	Prefix   string   `mapstructure:"prefix" json:"prefix"`
	Owners   []string `mapstructure:"owners" json:"owners"`
	Channels []string `mapstructure:"channels" json:"channels"`

	// CooldownMS throttles self-originated messages from non-privileged accounts.
	CooldownMS int `mapstructure:"cooldown_ms" json:"cooldown_ms"`

	// CommandsDir holds YAML command definitions. Empty disables loading.
	CommandsDir   string `mapstructure:"commands_dir" json:"commands_dir"`
	WatchCommands bool   `mapstructure:"watch_commands" json:"watch_commands"`
}

// Cooldown returns the self-message throttle as a duration.
func (b BotConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownMS) * time.Millisecond
}

// TwitchConfig holds application credentials and the current user token.
type TwitchConfig struct {
	ClientID            string `mapstructure:"client_id" json:"client_id"`
	ClientSecret        string `mapstructure:"client_secret" json:"client_secret"`
	AccessToken         string `mapstructure:"access_token" json:"access_token"`
	RefreshToken        string `mapstructure:"refresh_token" json:"refresh_token"`
	ExpiresIn           int    `mapstructure:"expires_in" json:"expires_in"`
	ObtainmentTimestamp int64  `mapstructure:"obtainment_timestamp" json:"obtainment_timestamp"`
	// RefreshSchedule is a cron spec for proactive token refresh.
	RefreshSchedule string `mapstructure:"refresh_schedule" json:"refresh_schedule"`
}

// LoggerConfig mirrors logger.Config in a serializable form.
type LoggerConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	OutputPath  string `mapstructure:"output_path" json:"output_path"`
	MaxSize     int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" json:"max_age"`
	Compress    bool   `mapstructure:"compress" json:"compress"`
	Development bool   `mapstructure:"development" json:"development"`
}

// BusConfig selects the event bus for "message received" notifications.
type BusConfig struct {
	Type       string `mapstructure:"type" json:"type"`
	BufferSize int    `mapstructure:"buffer_size" json:"buffer_size"`
}

// RedisConfig is used when bus.type is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db" json:"db"`
	Prefix   string `mapstructure:"prefix" json:"prefix"`
}

// GatewayConfig configures the HTTP/WebSocket event gateway.
type GatewayConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled"`
	Host      string `mapstructure:"host" json:"host"`
	Port      int    `mapstructure:"port" json:"port"`
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret"`
}

// WebUIConfig configures the admin API. It shares gateway.jwt_secret.
type WebUIConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Port defaults to the gateway port plus one when zero.
	Port int `mapstructure:"port" json:"port"`
	// AdminUser and AdminPasswordHash enable password login. The hash is bcrypt.
	AdminUser         string `mapstructure:"admin_user" json:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash" json:"admin_password_hash"`
}

// StateConfig selects where command usage counters are kept.
type StateConfig struct {
	Backend  string `mapstructure:"backend" json:"backend"` // "file" or "redis"
	FilePath string `mapstructure:"file_path" json:"file_path"`
	Prefix   string `mapstructure:"prefix" json:"prefix"`
}

// TimersConfig configures scheduled chat announcements.
type TimersConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	File    string `mapstructure:"file" json:"file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Bot: BotConfig{
			Prefix:        "!",
			Owners:        []string{},
			Channels:      []string{},
			CooldownMS:    1000,
			WatchCommands: true,
		},
		Twitch: TwitchConfig{
			RefreshSchedule: "@every 30m",
		},
		Logger: LoggerConfig{
			Level:      "info",
			OutputPath: filepath.Join(homeDir, ".twitchbot", "logs", "twitchbot.log"),
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Bus: BusConfig{
			Type:       "local",
			BufferSize: 100,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "twitchbot:bus:",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
		State: StateConfig{
			Backend:  "file",
			FilePath: filepath.Join(homeDir, ".twitchbot", "state.json"),
			Prefix:   "twitchbot:state:",
		},
		Timers: TimersConfig{
			Enabled: true,
			File:    filepath.Join(homeDir, ".twitchbot", "timers.json"),
		},
	}
}

// BotSettings returns a copy of the bot section (thread-safe).
func (c *Config) BotSettings() BotConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bot := c.Bot
	bot.Owners = append([]string(nil), c.Bot.Owners...)
	bot.Channels = append([]string(nil), c.Bot.Channels...)
	return bot
}

// SetBotSettings replaces the bot section, used by hot reload.
func (c *Config) SetBotSettings(bot BotConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bot = bot
}

// TwitchSettings returns a copy of the twitch section (thread-safe).
func (c *Config) TwitchSettings() TwitchConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Twitch
}

// UpdateTokens stores a refreshed user token.
func (c *Config) UpdateTokens(access, refresh string, expiresIn int, obtained time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Twitch.AccessToken = access
	if refresh != "" {
		c.Twitch.RefreshToken = refresh
	}
	c.Twitch.ExpiresIn = expiresIn
	c.Twitch.ObtainmentTimestamp = obtained.UnixMilli()
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}
