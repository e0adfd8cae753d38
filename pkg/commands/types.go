// Package commands implements prefix-command dispatch for chat messages:
// parsing, registration, permission checks, argument binding and handler
// invocation.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"twitchbot/pkg/chat"
)

var (
	// ErrCommandNotFound is returned when no command matches a name or alias.
	ErrCommandNotFound = errors.New("command not found")
	// ErrNotExecutable is returned by Invoke when a handler has no Execute entry point.
	ErrNotExecutable = errors.New("command has no execute entry point")
	// ErrInvalidDefinition wraps structural problems in a command definition.
	ErrInvalidDefinition = errors.New("invalid command definition")
)

// Tier is the permission level required to run a command.
type Tier int

const (
	TierEveryone Tier = iota
	TierRegular
	TierSubscriber
	TierVIP
	TierModerator
	TierBroadcaster
)

var tierNames = map[Tier]string{
	TierEveryone:    "everyone",
	TierRegular:     "regular",
	TierSubscriber:  "subscriber",
	TierVIP:         "vip",
	TierModerator:   "moderator",
	TierBroadcaster: "broadcaster",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier converts a user level name into a Tier.
func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for tier, n := range tierNames {
		if n == name {
			return tier, nil
		}
	}
	return TierEveryone, fmt.Errorf("unknown user level %q", s)
}

// ArgType drives coercion of a raw token.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
)

// PrepareFunc transforms a coerced argument. A falsy result keeps the
// coerced value.
type PrepareFunc func(value any, msg *chat.Message) any

// ArgSpec describes one positional argument.
type ArgSpec struct {
	Name       string
	Type       ArgType
	Default    any
	HasDefault bool
	Prepare    PrepareFunc
}

// Descriptor is the static metadata of a command.
type Descriptor struct {
	Name        string
	Aliases     []string
	Description string
	Examples    []string
	Tier        Tier
	Args        []ArgSpec

	HideFromHelp    bool
	PrivmsgOnly     bool
	HomeChannelOnly bool
}

// Names returns the name followed by the aliases.
func (d Descriptor) Names() []string {
	return append([]string{d.Name}, d.Aliases...)
}

// Matches reports whether token is the name or one of the aliases.
func (d Descriptor) Matches(token string) bool {
	if d.Name == token {
		return true
	}
	for _, alias := range d.Aliases {
		if alias == token {
			return true
		}
	}
	return false
}

func (d Descriptor) clone() Descriptor {
	d.Aliases = append([]string(nil), d.Aliases...)
	d.Examples = append([]string(nil), d.Examples...)
	d.Args = append([]ArgSpec(nil), d.Args...)
	return d
}

// Handler runs a command with its bound parameters.
type Handler interface {
	Run(ctx context.Context, msg *chat.Message, params Params) error
}

// Executor is the optional entry point used by Dispatcher.Invoke.
type Executor interface {
	Execute(ctx context.Context, msg *chat.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *chat.Message, params Params) error

// Run calls f.
func (f HandlerFunc) Run(ctx context.Context, msg *chat.Message, params Params) error {
	return f(ctx, msg, params)
}

// Command is a registered descriptor with its handler.
type Command struct {
	Descriptor Descriptor
	Handler    Handler
	// Source is the definition file, empty for programmatic registrations.
	Source string
}

// Name returns the primary command name.
func (c *Command) Name() string {
	return c.Descriptor.Name
}
