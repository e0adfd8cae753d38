package state

import (
	"fmt"
	"time"

	"twitchbot/pkg/logger"
)

// NewStore creates a store for the configured backend.
func NewStore(log *logger.Logger, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(log, &FileStoreConfig{
			FilePath:     cfg.FilePath,
			AutoSave:     cfg.AutoSave,
			SaveInterval: time.Duration(cfg.SaveIntervalS) * time.Second,
		})

	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		return NewRedisStore(log, &RedisStoreConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})

	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend)
	}
}
