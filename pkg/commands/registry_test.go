package commands

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"twitchbot/pkg/chat"
	"twitchbot/pkg/logger"
)

func observedLogger(level zapcore.Level) (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &logger.Logger{Logger: zap.New(core)}, logs
}

func noop() Handler {
	return HandlerFunc(func(context.Context, *chat.Message, Params) error { return nil })
}

func TestRegistryResolveByNameAndAlias(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	if err := r.Register(Descriptor{Name: "commands", Aliases: []string{"help"}}, noop()); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, token := range []string{"commands", "help"} {
		cmd, ok := r.Resolve(token)
		if !ok || cmd.Name() != "commands" {
			t.Fatalf("expected %q to resolve to commands, got %v", token, cmd)
		}
	}
	if _, ok := r.Resolve("Help"); ok {
		t.Fatalf("resolve must be case sensitive")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Fatalf("expected missing command to be unresolved")
	}
}

func TestRegistryFirstRegisteredWins(t *testing.T) {
	log, logs := observedLogger(zapcore.WarnLevel)
	r := NewRegistry(log)

	if err := r.Register(Descriptor{Name: "first", Aliases: []string{"x"}}, noop()); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := r.Register(Descriptor{Name: "second", Aliases: []string{"x"}}, noop()); err != nil {
		t.Fatalf("register second: %v", err)
	}

	cmd, ok := r.Resolve("x")
	if !ok || cmd.Name() != "first" {
		t.Fatalf("expected first registered command, got %v", cmd)
	}
	if cmd, _ := r.Resolve("second"); cmd == nil || cmd.Name() != "second" {
		t.Fatalf("second command must stay reachable by its own name")
	}

	warnings := logs.FilterMessage("Command name collision, earlier registration wins").All()
	if len(warnings) != 1 {
		t.Fatalf("expected one collision warning, got %d", len(warnings))
	}
	ctx := warnings[0].ContextMap()
	if ctx["token"] != "x" || ctx["command"] != "second" || ctx["shadowed_by"] != "first" {
		t.Fatalf("unexpected warning fields: %v", ctx)
	}
}

func TestRegistryNameCollidesWithEarlierAlias(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	_ = r.Register(Descriptor{Name: "commands", Aliases: []string{"help"}}, noop())
	_ = r.Register(Descriptor{Name: "help"}, noop())

	cmd, _ := r.Resolve("help")
	if cmd.Name() != "commands" {
		t.Fatalf("expected alias of earlier command to win, got %s", cmd.Name())
	}
}

func TestRegistryRejectsInvalidCommands(t *testing.T) {
	r := NewRegistry(logger.NewNop())

	if err := r.Register(Descriptor{Name: ""}, noop()); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := r.Register(Descriptor{Name: "x"}, nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
	if err := r.Register(Descriptor{Name: "x", Aliases: []string{"a b"}}, noop()); err == nil {
		t.Fatalf("expected error for alias with whitespace")
	}
	if r.Len() != 0 {
		t.Fatalf("expected nothing registered, got %d", r.Len())
	}
}

func TestRegistryStoresDescriptorCopy(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	aliases := []string{"a"}
	_ = r.Register(Descriptor{Name: "x", Aliases: aliases}, noop())

	aliases[0] = "changed"

	if _, ok := r.Resolve("a"); !ok {
		t.Fatalf("registry must not share the caller's alias slice")
	}
}

func TestRegistryReplaceSwapsAtomically(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	_ = r.Register(Descriptor{Name: "old"}, noop())

	before := r.List()

	err := r.Replace([]*Command{
		{Descriptor: Descriptor{Name: "a"}, Handler: noop()},
		{Descriptor: Descriptor{Name: "b"}, Handler: noop()},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	if len(before) != 1 || before[0].Name() != "old" {
		t.Fatalf("earlier snapshot must be unaffected, got %v", before)
	}
	if _, ok := r.Resolve("old"); ok {
		t.Fatalf("old command should be gone")
	}
	list := r.List()
	if len(list) != 2 || list[0].Name() != "a" || list[1].Name() != "b" {
		t.Fatalf("unexpected order after replace: %v", list)
	}
}

func TestRegistryUpdateRejectsInvalidAndKeepsCurrent(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	_ = r.Register(Descriptor{Name: "keep"}, noop())

	err := r.Update(func(current []*Command) []*Command {
		return append(current, &Command{Descriptor: Descriptor{Name: "bad\u3000name"}, Handler: noop()})
	})
	if err == nil {
		t.Fatal("expected error for a name containing whitespace")
	}
	if list := r.List(); len(list) != 1 || list[0].Name() != "keep" {
		t.Fatalf("registry changed after failed update: %v", list)
	}
}

func TestParseTier(t *testing.T) {
	for tier, name := range tierNames {
		got, err := ParseTier(name)
		if err != nil || got != tier {
			t.Fatalf("ParseTier(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseTier("admin"); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
}
