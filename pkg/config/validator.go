package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateBot(&cfg.Bot)
	v.validateTwitch(&cfg.Twitch)
	v.validateLogger(&cfg.Logger)
	v.validateBus(&cfg.Bus, &cfg.Redis)
	v.validateGateway(&cfg.Gateway)
	v.validateWebUI(&cfg.WebUI, &cfg.Gateway)
	v.validateState(&cfg.State, &cfg.Redis)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateBot(bot *BotConfig) {
	if bot.Prefix == "" {
		v.addError("bot.prefix", "must not be empty")
	}
	if strings.ContainsAny(bot.Prefix, " \t\r\n") {
		v.addError("bot.prefix", "must not contain whitespace")
	}
	if bot.CooldownMS < 0 {
		v.addError("bot.cooldown_ms", "must not be negative")
	}
	for i, owner := range bot.Owners {
		if strings.TrimSpace(owner) == "" {
			v.addError(fmt.Sprintf("bot.owners[%d]", i), "must not be empty")
		}
	}
	for i, channel := range bot.Channels {
		if strings.TrimSpace(strings.TrimPrefix(channel, "#")) == "" {
			v.addError(fmt.Sprintf("bot.channels[%d]", i), "must not be empty")
		}
	}
}

func (v *Validator) validateTwitch(tw *TwitchConfig) {
	if tw.RefreshToken != "" && (tw.ClientID == "" || tw.ClientSecret == "") {
		v.addError("twitch.client_id", "client_id and client_secret are required to refresh tokens")
	}
	if tw.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(tw.RefreshSchedule); err != nil {
			v.addError("twitch.refresh_schedule", fmt.Sprintf("invalid cron spec: %v", err))
		}
	}
}

func (v *Validator) validateLogger(l *LoggerConfig) {
	switch l.Level {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		v.addError("logger.level", fmt.Sprintf("unknown level %q", l.Level))
	}
}

func (v *Validator) validateBus(bus *BusConfig, redis *RedisConfig) {
	switch bus.Type {
	case "", "local":
	case "redis":
		if redis.Addr == "" {
			v.addError("redis.addr", "required when bus.type is redis")
		}
	default:
		v.addError("bus.type", fmt.Sprintf("unknown bus type %q", bus.Type))
	}
	if bus.BufferSize < 0 {
		v.addError("bus.buffer_size", "must not be negative")
	}
}

func (v *Validator) validateGateway(gw *GatewayConfig) {
	if !gw.Enabled {
		return
	}
	if gw.Port < 0 || gw.Port > 65535 {
		v.addError("gateway.port", fmt.Sprintf("out of range: %d", gw.Port))
	}
}

func (v *Validator) validateWebUI(ui *WebUIConfig, gw *GatewayConfig) {
	if !ui.Enabled {
		return
	}
	if ui.Port < 0 || ui.Port > 65535 {
		v.addError("webui.port", fmt.Sprintf("out of range: %d", ui.Port))
	}
	if gw.JWTSecret == "" {
		v.addError("gateway.jwt_secret", "required when webui is enabled")
	}
}

func (v *Validator) validateState(st *StateConfig, redis *RedisConfig) {
	switch st.Backend {
	case "", "file":
		if st.FilePath == "" {
			v.addError("state.file_path", "required for the file backend")
		}
	case "redis":
		if redis.Addr == "" {
			v.addError("redis.addr", "required when state.backend is redis")
		}
	default:
		v.addError("state.backend", fmt.Sprintf("unknown state backend %q", st.Backend))
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// ValidateConfig is a convenience function to validate configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
