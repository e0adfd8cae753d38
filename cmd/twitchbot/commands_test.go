package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"twitchbot/pkg/commands"
)

func TestValidateExampleDefinitions(t *testing.T) {
	var out bytes.Buffer
	commandsValidateCmd.SetOut(&out)
	defer commandsValidateCmd.SetOut(nil)

	if err := runCommandsValidate(commandsValidateCmd, []string{"../../examples/commands"}); err != nil {
		t.Fatalf("validate examples: %v\n%s", err, out.String())
	}
	for _, name := range []string{"so.yaml", "hug.yaml", "lurk.yaml", "announce.yaml"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("expected %s in output:\n%s", name, out.String())
		}
	}
}

func TestValidateReportsInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ok.yaml"), []byte("name: ok\nrun:\n  text: fine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: bad\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	commandsValidateCmd.SetOut(&out)
	defer commandsValidateCmd.SetOut(nil)

	err := runCommandsValidate(commandsValidateCmd, []string{dir})
	if !errors.Is(err, commands.ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
	if !strings.Contains(out.String(), "invalid "+filepath.Join(dir, "bad.yaml")) {
		t.Fatalf("expected bad.yaml reported:\n%s", out.String())
	}
}

func TestPrintCommands(t *testing.T) {
	cmds := []*commands.Command{
		{Descriptor: commands.Descriptor{Name: "ping"}},
		{Descriptor: commands.Descriptor{Name: "so", Aliases: []string{"shoutout"}, Tier: commands.TierModerator}, Source: "so.yaml"},
	}

	var out bytes.Buffer
	if err := printCommands(&out, "!", cmds); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", lines)
	}
	if !strings.Contains(lines[1], "builtin") || !strings.Contains(lines[2], "shoutout") || !strings.Contains(lines[2], "moderator") {
		t.Fatalf("unexpected rows %q", lines[1:])
	}
}
