package commands

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"twitchbot/pkg/logger"
)

// Registry holds registered commands in registration order. Readers never
// lock: every write builds a new slice and swaps it in.
type Registry struct {
	log      *logger.Logger
	mu       sync.Mutex // serializes writers
	commands atomic.Pointer[[]*Command]
}

// NewRegistry creates an empty command registry.
func NewRegistry(log *logger.Logger) *Registry {
	r := &Registry{log: log.Module("registry")}
	empty := make([]*Command, 0)
	r.commands.Store(&empty)
	return r
}

// Register adds a command. A name or alias already claimed by an earlier
// command is reported as a warning; Resolve keeps returning the earlier one.
func (r *Registry) Register(desc Descriptor, h Handler) error {
	return r.add(&Command{Descriptor: desc, Handler: h})
}

// RegisterCommand adds an already assembled command, e.g. from a definition file.
func (r *Registry) RegisterCommand(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command cannot be nil")
	}
	return r.add(&Command{Descriptor: cmd.Descriptor, Handler: cmd.Handler, Source: cmd.Source})
}

func (r *Registry) add(cmd *Command) error {
	if err := checkCommand(cmd); err != nil {
		return err
	}
	cmd.Descriptor = cmd.Descriptor.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.commands.Load()
	r.warnCollisions(current, cmd)

	next := make([]*Command, len(current), len(current)+1)
	copy(next, current)
	next = append(next, cmd)
	r.commands.Store(&next)
	return nil
}

// Replace swaps the whole command set at once.
func (r *Registry) Replace(cmds []*Command) error {
	return r.Update(func([]*Command) []*Command { return cmds })
}

// Update computes the next command set from the current one and swaps it
// in. fn runs with writers excluded, so no Register between the read and
// the swap is lost; fn must not call back into the registry. The registry
// is unchanged when an entry is invalid.
func (r *Registry) Update(fn func(current []*Command) []*Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.commands.Load()
	cmds := fn(append([]*Command(nil), current...))

	next := make([]*Command, 0, len(cmds))
	for _, cmd := range cmds {
		if cmd == nil {
			continue
		}
		if err := checkCommand(cmd); err != nil {
			return err
		}
		c := &Command{Descriptor: cmd.Descriptor.clone(), Handler: cmd.Handler, Source: cmd.Source}
		r.warnCollisions(next, c)
		next = append(next, c)
	}

	r.commands.Store(&next)
	return nil
}

// Resolve returns the first registered command whose name or alias equals token.
func (r *Registry) Resolve(token string) (*Command, bool) {
	for _, cmd := range *r.commands.Load() {
		if cmd.Descriptor.Matches(token) {
			return cmd, true
		}
	}
	return nil, false
}

// List returns all registered commands in registration order.
func (r *Registry) List() []*Command {
	current := *r.commands.Load()
	out := make([]*Command, len(current))
	copy(out, current)
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(*r.commands.Load())
}

func (r *Registry) warnCollisions(existing []*Command, cmd *Command) {
	for _, name := range cmd.Descriptor.Names() {
		for _, other := range existing {
			if other.Descriptor.Matches(name) {
				r.log.Warn("Command name collision, earlier registration wins",
					zap.String("token", name),
					zap.String("command", cmd.Name()),
					zap.String("shadowed_by", other.Name()))
				break
			}
		}
	}
}

func checkCommand(cmd *Command) error {
	if cmd.Handler == nil {
		return fmt.Errorf("command %q: handler cannot be nil", cmd.Descriptor.Name)
	}
	if strings.TrimSpace(cmd.Descriptor.Name) == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	for _, token := range cmd.Descriptor.Names() {
		if token == "" || strings.IndexFunc(token, isSpace) >= 0 {
			return fmt.Errorf("command %q: invalid name or alias %q", cmd.Descriptor.Name, token)
		}
	}
	return nil
}
