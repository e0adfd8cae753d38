package state

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"twitchbot/pkg/logger"
)

const (
	usesPrefix     = "uses:"
	failuresPrefix = "failures:"
)

// CommandUsage counts runs of one command.
type CommandUsage struct {
	Uses     int64 `json:"uses"`
	Failures int64 `json:"failures"`
}

// Usage records how often each command ran.
type Usage struct {
	store   Store
	log     *logger.Logger
	timeout time.Duration
}

// NewUsage creates a usage recorder over store.
func NewUsage(store Store, log *logger.Logger) *Usage {
	return &Usage{store: store, log: log.Module("usage"), timeout: 2 * time.Second}
}

// Record counts one run. Storage errors are logged, never returned.
func (u *Usage) Record(command string, failed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()

	if _, err := u.store.Incr(ctx, usesPrefix+command, 1); err != nil {
		u.log.Warn("Failed to record command use", zap.String("command", command), zap.Error(err))
		return
	}
	if failed {
		if _, err := u.store.Incr(ctx, failuresPrefix+command, 1); err != nil {
			u.log.Warn("Failed to record command failure", zap.String("command", command), zap.Error(err))
		}
	}
}

// Snapshot returns the counters grouped by command.
func (u *Usage) Snapshot(ctx context.Context) (map[string]CommandUsage, error) {
	all, err := u.store.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]CommandUsage)
	for key, value := range all {
		switch {
		case strings.HasPrefix(key, usesPrefix):
			name := strings.TrimPrefix(key, usesPrefix)
			c := out[name]
			c.Uses = value
			out[name] = c
		case strings.HasPrefix(key, failuresPrefix):
			name := strings.TrimPrefix(key, failuresPrefix)
			c := out[name]
			c.Failures = value
			out[name] = c
		}
	}
	return out, nil
}

// Reset forgets the counters of one command.
func (u *Usage) Reset(ctx context.Context, command string) error {
	if err := u.store.Delete(ctx, usesPrefix+command); err != nil {
		return err
	}
	return u.store.Delete(ctx, failuresPrefix+command)
}
