// Package logger provides structured logging with rotation support.
// It uses zap for structured logging and lumberjack for log rotation.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the log level.
type Level string

const (
	// LevelDebug for debug messages.
	LevelDebug Level = "debug"
	// LevelInfo for informational messages.
	LevelInfo Level = "info"
	// LevelWarn for warning messages.
	LevelWarn Level = "warn"
	// LevelError for error messages.
	LevelError Level = "error"
	// LevelFatal for fatal messages (will call os.Exit(1)).
	LevelFatal Level = "fatal"
)

// ModuleKey is the field name carrying the component tag of a log line.
const ModuleKey = "module"

// Config represents logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error, fatal).
	Level Level

	// OutputPath is the log file path. Empty means console only.
	OutputPath string

	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int

	// Compress determines if rotated log files should be compressed.
	Compress bool

	// Development enables human-readable console output.
	Development bool

	// EnableStacktrace adds stacktrace for Error and above.
	EnableStacktrace bool

	// Console overrides the console sink. Nil means stdout.
	Console io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Level:            LevelInfo,
		OutputPath:       filepath.Join(homeDir, ".twitchbot", "logs", "twitchbot.log"),
		MaxSize:          100,
		MaxBackups:       3,
		MaxAge:           7,
		Compress:         true,
		EnableStacktrace: true,
	}
}

// Logger wraps zap.Logger with additional functionality.
type Logger struct {
	*zap.Logger
	config *Config
	sugar  *zap.SugaredLogger
}

// New creates a new logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var console io.Writer = os.Stdout
	if cfg.Console != nil {
		console = cfg.Console
	}

	var consoleEncoder zapcore.Encoder
	if cfg.Development {
		devConfig := encoderConfig
		if isTerminal(console) {
			devConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			devConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		consoleEncoder = zapcore.NewConsoleEncoder(devConfig)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(console), level),
	}

	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(fileWriter),
			level,
		))
	}

	options := []zap.Option{zap.AddCaller()}
	if cfg.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if cfg.Development {
		options = append(options, zap.Development())
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), options...)

	return &Logger{
		Logger: zapLogger,
		config: cfg,
		sugar:  zapLogger.Sugar(),
	}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	zapLogger := zap.NewNop()
	return &Logger{
		Logger: zapLogger,
		config: &Config{Level: LevelFatal},
		sugar:  zapLogger.Sugar(),
	}
}

// Sugar returns a sugared logger for easier use.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// WithFields creates a new logger with the given fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{
		Logger: child,
		config: l.config,
		sugar:  child.Sugar(),
	}
}

// Module returns a child logger tagging every entry with the component name.
func (l *Logger) Module(name string) *Logger {
	return l.WithFields(zap.String(ModuleKey, name))
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level Level) (zapcore.Level, error) {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel, nil
	case LevelInfo, "":
		return zapcore.InfoLevel, nil
	case LevelWarn:
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	case LevelFatal:
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

var global *Logger

// InitGlobal initializes the global logger.
func InitGlobal(cfg *Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	global = logger
	return nil
}

// Global returns the global logger instance.
func Global() *Logger {
	if global == nil {
		cfg := DefaultConfig()
		cfg.Development = true
		cfg.OutputPath = ""
		global, _ = New(cfg)
	}
	return global
}

// Info logs an info message on the global logger.
func Info(msg string, fields ...zap.Field) {
	Global().Info(msg, fields...)
}

// Warn logs a warning message on the global logger.
func Warn(msg string, fields ...zap.Field) {
	Global().Warn(msg, fields...)
}

// Error logs an error message on the global logger.
func Error(msg string, fields ...zap.Field) {
	Global().Error(msg, fields...)
}
