package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	viper *viper.Viper
}

// ConfigPathEnv overrides the config file location when no path is given.
const ConfigPathEnv = "TWITCHBOT_CONFIG"

// EnvPrefix is the prefix of environment overrides, e.g. TWITCHBOT_BOT_PREFIX.
const EnvPrefix = "TWITCHBOT"

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".twitchbot"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{viper: v}
}

// Load loads the configuration from file and environment variables.
// If configPath is empty, TWITCHBOT_CONFIG and then the default paths are used.
// A missing file is created from defaults.
func (l *Loader) Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// .env values become plain environment variables; real env wins.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if strings.TrimSpace(configPath) == "" {
		configPath = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	resolvedPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		l.viper.SetConfigFile(resolvedPath)
	}

	// Register every key so AutomaticEnv applies during Unmarshal.
	setDefaults(l.viper, cfg)

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := l.Save(resolvedPath, cfg); err != nil {
			return nil, fmt.Errorf("creating config file: %w", err)
		}
	} else if used := l.viper.ConfigFileUsed(); used != "" {
		resolvedPath = used
	}

	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.path = resolvedPath

	return cfg, nil
}

// Save saves the configuration to a file.
func (l *Loader) Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	format := "json"
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	}

	v := viper.New()
	v.SetConfigType(format)
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// GetConfigHome returns the default config directory.
func GetConfigHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".twitchbot"), nil
}

// GetConfigPath returns the path of the loaded config file.
func (l *Loader) GetConfigPath() string {
	return l.viper.ConfigFileUsed()
}

func resolveConfigPath(configPath string) (string, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		home, err := GetConfigHome()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, "config.json")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return abs, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range settings(cfg) {
		v.SetDefault(key, value)
	}
}

// settings flattens cfg into viper keys matching the mapstructure tags.
func settings(cfg *Config) map[string]any {
	return map[string]any{
		"bot.username":       cfg.Bot.Username,
		"bot.prefix":         cfg.Bot.Prefix,
		"bot.owners":         cfg.Bot.Owners,
		"bot.channels":       cfg.Bot.Channels,
		"bot.cooldown_ms":    cfg.Bot.CooldownMS,
		"bot.commands_dir":   cfg.Bot.CommandsDir,
		"bot.watch_commands": cfg.Bot.WatchCommands,

		"twitch.client_id":            cfg.Twitch.ClientID,
		"twitch.client_secret":        cfg.Twitch.ClientSecret,
		"twitch.access_token":         cfg.Twitch.AccessToken,
		"twitch.refresh_token":        cfg.Twitch.RefreshToken,
		"twitch.expires_in":           cfg.Twitch.ExpiresIn,
		"twitch.obtainment_timestamp": cfg.Twitch.ObtainmentTimestamp,
		"twitch.refresh_schedule":     cfg.Twitch.RefreshSchedule,

		"logger.level":       cfg.Logger.Level,
		"logger.output_path": cfg.Logger.OutputPath,
		"logger.max_size":    cfg.Logger.MaxSize,
		"logger.max_backups": cfg.Logger.MaxBackups,
		"logger.max_age":     cfg.Logger.MaxAge,
		"logger.compress":    cfg.Logger.Compress,
		"logger.development": cfg.Logger.Development,

		"bus.type":        cfg.Bus.Type,
		"bus.buffer_size": cfg.Bus.BufferSize,

		"redis.addr":     cfg.Redis.Addr,
		"redis.password": cfg.Redis.Password,
		"redis.db":       cfg.Redis.DB,
		"redis.prefix":   cfg.Redis.Prefix,

		"gateway.enabled":    cfg.Gateway.Enabled,
		"gateway.host":       cfg.Gateway.Host,
		"gateway.port":       cfg.Gateway.Port,
		"gateway.jwt_secret": cfg.Gateway.JWTSecret,

		"webui.enabled":             cfg.WebUI.Enabled,
		"webui.port":                cfg.WebUI.Port,
		"webui.admin_user":          cfg.WebUI.AdminUser,
		"webui.admin_password_hash": cfg.WebUI.AdminPasswordHash,

		"state.backend":   cfg.State.Backend,
		"state.file_path": cfg.State.FilePath,
		"state.prefix":    cfg.State.Prefix,

		"timers.enabled": cfg.Timers.Enabled,
		"timers.file":    cfg.Timers.File,
	}
}
