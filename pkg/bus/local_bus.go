package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"twitchbot/pkg/logger"
)

// LocalBus is an in-process event bus using Go channels.
type LocalBus struct {
	log      *logger.Logger
	handlers map[Topic][]Handler
	mu       sync.RWMutex

	events chan *Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	published   uint64
	delivered   uint64
	errors      uint64
	metricsLock sync.RWMutex
}

// NewLocalBus creates a new local event bus.
func NewLocalBus(log *logger.Logger, bufferSize int) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &LocalBus{
		log:      log.Module("bus"),
		handlers: make(map[Topic][]Handler),
		events:   make(chan *Event, bufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the delivery loop.
func (b *LocalBus) Start() error {
	b.log.Info("Starting event bus")

	b.wg.Add(1)
	go b.process()

	return nil
}

// Stop stops the bus and waits for the delivery loop to exit.
// Events still buffered are dropped.
func (b *LocalBus) Stop() error {
	b.log.Info("Stopping event bus")
	b.cancel()
	b.wg.Wait()
	b.log.Info("Event bus stopped")
	return nil
}

// RegisterHandler registers a handler for a topic.
// Multiple handlers can be registered for the same topic.
func (b *LocalBus) RegisterHandler(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[topic] = append(b.handlers[topic], handler)
	b.log.Debug("Registered handler", zap.String("topic", string(topic)))
}

// UnregisterHandlers removes all handlers for a topic.
func (b *LocalBus) UnregisterHandlers(topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, topic)
	b.log.Debug("Unregistered handlers", zap.String("topic", string(topic)))
}

// Publish queues an event for delivery.
func (b *LocalBus) Publish(ev *Event) error {
	if err := b.ctx.Err(); err != nil {
		return fmt.Errorf("bus is shutting down")
	}

	select {
	case b.events <- ev:
		b.incrementPublished()
		return nil
	case <-b.ctx.Done():
		return fmt.Errorf("bus is shutting down")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout publishing %s event", ev.Topic)
	}
}

func (b *LocalBus) process() {
	defer b.wg.Done()

	for {
		select {
		case ev := <-b.events:
			b.deliver(ev)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *LocalBus) deliver(ev *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Topic]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		if err := handler(b.ctx, ev); err != nil {
			b.incrementErrors()
			b.log.Error("Handler error",
				zap.String("topic", string(ev.Topic)),
				zap.String("event_id", ev.ID),
				zap.Error(err))
			continue
		}
		b.incrementDelivered()
	}
}

// GetMetrics returns current bus metrics.
func (b *LocalBus) GetMetrics() map[string]uint64 {
	b.metricsLock.RLock()
	defer b.metricsLock.RUnlock()

	return map[string]uint64{
		"published": b.published,
		"delivered": b.delivered,
		"errors":    b.errors,
	}
}

func (b *LocalBus) incrementPublished() {
	b.metricsLock.Lock()
	b.published++
	b.metricsLock.Unlock()
}

func (b *LocalBus) incrementDelivered() {
	b.metricsLock.Lock()
	b.delivered++
	b.metricsLock.Unlock()
}

func (b *LocalBus) incrementErrors() {
	b.metricsLock.Lock()
	b.errors++
	b.metricsLock.Unlock()
}
