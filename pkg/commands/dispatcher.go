package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"twitchbot/pkg/bus"
	"twitchbot/pkg/chat"
	"twitchbot/pkg/logger"
)

// DefaultCooldown delays self-originated messages from non-privileged accounts.
const DefaultCooldown = time.Second

// Result is the outcome of one handler run.
type Result struct {
	Command  string
	Message  *chat.Message
	Err      error
	Panic    any
	Duration time.Duration
}

// Failed reports whether the handler returned an error or panicked.
func (r Result) Failed() bool {
	return r.Err != nil || r.Panic != nil
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPrefix sets the source of the command prefix, read on every message.
func WithPrefix(prefix func() string) Option {
	return func(d *Dispatcher) { d.prefix = prefix }
}

// WithCooldown overrides DefaultCooldown. cooldown is read on every
// message so a reloaded setting applies immediately.
func WithCooldown(cooldown func() time.Duration) Option {
	return func(d *Dispatcher) { d.cooldown = cooldown }
}

// WithSleep replaces the cooldown wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// WithBus forwards received messages and handler results to an event bus.
func WithBus(b bus.Bus) Option {
	return func(d *Dispatcher) { d.bus = b }
}

// WithResultHook is called after every handler run.
func WithResultHook(hook func(Result)) Option {
	return func(d *Dispatcher) { d.onResult = hook }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// Dispatcher runs inbound messages through parse, resolve, permission
// check, binding and handler invocation.
type Dispatcher struct {
	registry  *Registry
	gate      *Gate
	responder *chat.Responder

	log      *logger.Logger
	bus      bus.Bus
	prefix   func() string
	cooldown func() time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	onResult func(Result)

	subsMu  sync.RWMutex
	subs    map[uint64]func(*chat.Message)
	nextSub uint64

	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher over an explicit registry.
func NewDispatcher(registry *Registry, gate *Gate, responder *chat.Responder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		gate:      gate,
		responder: responder,
		log:       logger.NewNop(),
		prefix:    func() string { return "!" },
		cooldown:  func() time.Duration { return DefaultCooldown },
		sleep:     sleepContext,
		subs:      make(map[uint64]func(*chat.Message)),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.Module("dispatcher")
	return d
}

// Registry returns the registry commands are resolved from.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Prefix returns the current command prefix.
func (d *Dispatcher) Prefix() string {
	return d.prefix()
}

// Subscribe registers fn to be called with every inbound message before
// dispatch. The returned function removes the subscription.
func (d *Dispatcher) Subscribe(fn func(*chat.Message)) (unsubscribe func()) {
	d.subsMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subsMu.Lock()
			delete(d.subs, id)
			d.subsMu.Unlock()
		})
	}
}

// Handle processes one inbound message. It returns once the handler, if
// any, has been scheduled; the handler itself runs in its own goroutine.
func (d *Dispatcher) Handle(ctx context.Context, msg *chat.Message) {
	if wait := d.cooldown(); wait > 0 && d.throttled(msg) {
		if err := d.sleep(ctx, wait); err != nil {
			return
		}
	}

	d.emit(msg)

	inv := Parse(msg.Text, d.prefix())
	if inv == nil {
		return
	}

	cmd, ok := d.registry.Resolve(inv.Command)
	if !ok {
		return
	}

	if decision := d.gate.Check(cmd.Descriptor, msg); !decision.Allowed {
		d.log.Debug("Permission denied",
			zap.String("command", cmd.Name()),
			zap.String("user", msg.Author.Username),
			zap.String("reason", decision.Reason))
		if err := d.responder.Reply(ctx, msg, decision.Reason); err != nil {
			d.log.Warn("Failed to send denial", zap.String("command", cmd.Name()), zap.Error(err))
		}
		return
	}

	params := Bind(cmd.Descriptor.Args, inv.Args, msg)

	// The handler outlives this dispatch pass.
	runCtx := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		res := d.call(cmd.Name(), msg, func() error {
			return cmd.Handler.Run(runCtx, msg, params)
		})
		d.report(res)
	}()
}

// Invoke runs the Execute entry point of the named command directly,
// skipping parsing and permission checks.
func (d *Dispatcher) Invoke(ctx context.Context, name string, msg *chat.Message) error {
	cmd, ok := d.registry.Resolve(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	exec, ok := cmd.Handler.(Executor)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotExecutable, name)
	}

	res := d.call(cmd.Name(), msg, func() error {
		return exec.Execute(ctx, msg)
	})
	d.report(res)

	if res.Panic != nil {
		return fmt.Errorf("command %s panicked: %v", name, res.Panic)
	}
	return res.Err
}

// Wait blocks until every scheduled handler has returned.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) throttled(msg *chat.Message) bool {
	self := msg.Self
	if bot := d.responder.Transport().BotUsername(); bot != "" && strings.EqualFold(msg.Author.Username, bot) {
		self = true
	}
	a := msg.Author
	return self && !(a.IsBroadcaster || a.IsModerator || a.IsVIP)
}

func (d *Dispatcher) emit(msg *chat.Message) {
	d.subsMu.RLock()
	subs := make([]func(*chat.Message), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.subsMu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					d.log.Error("Message subscriber panicked", zap.Any("panic", p))
				}
			}()
			fn(msg)
		}()
	}

	if d.bus != nil {
		if err := d.bus.Publish(bus.NewEvent(bus.TopicMessageReceived, msg)); err != nil {
			d.log.Warn("Failed to publish message event", zap.Error(err))
		}
	}
}

func (d *Dispatcher) call(name string, msg *chat.Message, fn func() error) (res Result) {
	res = Result{Command: name, Message: msg}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if p := recover(); p != nil {
			res.Panic = p
			d.log.Error("Command panicked",
				zap.String("command", name),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	res.Err = fn()
	return res
}

func (d *Dispatcher) report(res Result) {
	if res.Failed() {
		fields := []zap.Field{
			zap.String("command", res.Command),
			zap.String("channel", res.Message.Channel),
			zap.String("user", res.Message.Author.Username),
			zap.String("text", res.Message.Text),
			zap.Duration("duration", res.Duration),
		}
		if res.Err != nil {
			fields = append(fields, zap.Error(res.Err))
		}
		d.log.Error("Command failed", fields...)
	} else {
		d.log.Debug("Command finished",
			zap.String("command", res.Command),
			zap.Duration("duration", res.Duration))
	}

	if d.bus != nil {
		ev := bus.NewEvent(bus.TopicCommandResult, res.Message)
		ev.Command = res.Command
		switch {
		case res.Err != nil:
			ev.Error = res.Err.Error()
		case res.Panic != nil:
			ev.Error = fmt.Sprintf("panic: %v", res.Panic)
		}
		if err := d.bus.Publish(ev); err != nil {
			d.log.Warn("Failed to publish result event", zap.Error(err))
		}
	}

	if d.onResult != nil {
		d.onResult(res)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
