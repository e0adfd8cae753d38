package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"twitchbot/pkg/logger"
)

// DefaultRedisPrefix namespaces the pub/sub channels.
const DefaultRedisPrefix = "twitchbot:bus:"

// RedisBus is a Redis-based event bus using pub/sub, so subscribers can
// live in other processes.
type RedisBus struct {
	log    *logger.Logger
	client *redis.Client
	prefix string

	handlers map[Topic][]Handler
	mu       sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pubsub *redis.PubSub

	published   uint64
	delivered   uint64
	errors      uint64
	metricsLock sync.RWMutex
}

// RedisBusConfig configures the Redis bus.
type RedisBusConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisBus creates a new Redis-based event bus.
func NewRedisBus(log *logger.Logger, cfg *RedisBusConfig) (*RedisBus, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &RedisBus{
		log:      log.Module("bus"),
		client:   client,
		prefix:   prefix,
		handlers: make(map[Topic][]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}

	b.log.Info("Redis bus initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("prefix", prefix))

	return b, nil
}

// Start subscribes to every topic under the prefix.
func (b *RedisBus) Start() error {
	b.log.Info("Starting Redis event bus")

	b.pubsub = b.client.PSubscribe(b.ctx, b.prefix+"*")

	b.wg.Add(1)
	go b.process()

	return nil
}

// Stop stops the Redis bus.
func (b *RedisBus) Stop() error {
	b.log.Info("Stopping Redis event bus")

	b.cancel()
	if b.pubsub != nil {
		b.pubsub.Close()
	}
	b.wg.Wait()
	b.client.Close()

	b.log.Info("Redis event bus stopped")
	return nil
}

// RegisterHandler registers a handler for a topic.
func (b *RedisBus) RegisterHandler(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[topic] = append(b.handlers[topic], handler)
	b.log.Debug("Registered handler", zap.String("topic", string(topic)))
}

// UnregisterHandlers removes all handlers for a topic.
func (b *RedisBus) UnregisterHandlers(topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, topic)
	b.log.Debug("Unregistered handlers", zap.String("topic", string(topic)))
}

// Publish sends an event as JSON to the topic's channel.
func (b *RedisBus) Publish(ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	if err := b.client.Publish(b.ctx, channelFor(b.prefix, ev.Topic), data).Err(); err != nil {
		return fmt.Errorf("publishing to Redis: %w", err)
	}

	b.incrementPublished()
	return nil
}

// GetMetrics returns current bus metrics.
func (b *RedisBus) GetMetrics() map[string]uint64 {
	b.metricsLock.RLock()
	defer b.metricsLock.RUnlock()

	return map[string]uint64{
		"published": b.published,
		"delivered": b.delivered,
		"errors":    b.errors,
	}
}

func (b *RedisBus) process() {
	defer b.wg.Done()

	ch := b.pubsub.Channel()

	for {
		select {
		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			b.handleRedisMessage(redisMsg)

		case <-b.ctx.Done():
			return
		}
	}
}

func (b *RedisBus) handleRedisMessage(redisMsg *redis.Message) {
	topic, ok := topicFor(b.prefix, redisMsg.Channel)
	if !ok {
		b.log.Warn("Unknown channel format", zap.String("channel", redisMsg.Channel))
		return
	}

	var ev Event
	if err := json.Unmarshal([]byte(redisMsg.Payload), &ev); err != nil {
		b.log.Error("Failed to unmarshal event", zap.Error(err))
		b.incrementErrors()
		return
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(b.ctx, &ev); err != nil {
			b.incrementErrors()
			b.log.Error("Handler error",
				zap.String("topic", string(topic)),
				zap.String("event_id", ev.ID),
				zap.Error(err))
			continue
		}
		b.incrementDelivered()
	}
}

func channelFor(prefix string, topic Topic) string {
	return prefix + string(topic)
}

func topicFor(prefix, channel string) (Topic, bool) {
	if !strings.HasPrefix(channel, prefix) || len(channel) == len(prefix) {
		return "", false
	}
	return Topic(strings.TrimPrefix(channel, prefix)), true
}

func (b *RedisBus) incrementPublished() {
	b.metricsLock.Lock()
	b.published++
	b.metricsLock.Unlock()
}

func (b *RedisBus) incrementDelivered() {
	b.metricsLock.Lock()
	b.delivered++
	b.metricsLock.Unlock()
}

func (b *RedisBus) incrementErrors() {
	b.metricsLock.Lock()
	b.errors++
	b.metricsLock.Unlock()
}
