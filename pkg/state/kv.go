// Package state provides persistent counters with file and Redis backends.
package state

import (
	"context"
)

// Store is the interface for counter storage backends.
type Store interface {
	// Incr adds delta to key and returns the new value.
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	// Get returns the value of key.
	Get(ctx context.Context, key string) (int64, bool, error)

	// All returns a copy of every counter.
	All(ctx context.Context) (map[string]int64, error)

	// Delete removes a counter.
	Delete(ctx context.Context, key string) error

	// Close flushes pending writes and releases the backend.
	Close() error
}

// BackendType represents the storage backend type.
type BackendType string

const (
	BackendFile  BackendType = "file"
	BackendRedis BackendType = "redis"
)

// Config configures the state store.
type Config struct {
	Backend BackendType

	// File backend
	FilePath      string
	AutoSave      bool
	SaveIntervalS int

	// Redis backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}
