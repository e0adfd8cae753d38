package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"twitchbot/pkg/chat"
	"twitchbot/pkg/version"
)

var processStartTime = time.Now()

// HelpEntry is one visible command in the help listing.
type HelpEntry struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	UserLevel   string   `json:"userlevel"`
}

// PrefixPlaceholder in a description or example is replaced with the
// current prefix when help is rendered.
const PrefixPlaceholder = "{prefix}"

// HelpListing returns the commands not hidden from help, in registration
// order, with PrefixPlaceholder expanded to prefix.
func HelpListing(registry *Registry, prefix string) []HelpEntry {
	expand := strings.NewReplacer(PrefixPlaceholder, prefix)
	var entries []HelpEntry
	for _, cmd := range registry.List() {
		d := cmd.Descriptor
		if d.HideFromHelp {
			continue
		}
		entries = append(entries, HelpEntry{
			Name:        d.Name,
			Aliases:     d.Aliases,
			Description: expand.Replace(d.Description),
			Examples:    expandAll(expand, d.Examples),
			UserLevel:   d.Tier.String(),
		})
	}
	return entries
}

func expandAll(r *strings.Replacer, in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = r.Replace(s)
	}
	return out
}

// RegisterBuiltinCommands registers the commands, ping and status commands.
func RegisterBuiltinCommands(registry *Registry, responder *chat.Responder, prefix func() string) error {
	p := PrefixPlaceholder
	builtins := []struct {
		desc    Descriptor
		handler Handler
	}{
		{
			desc: Descriptor{
				Name:    "commands",
				Aliases: []string{"help", "команды"},
				Description: fmt.Sprintf("This command shows help for all commands. Send %shelp <command> for detailed help on a command.",
					p),
				Examples: []string{p + "commands", p + "help <command>"},
				Tier:     TierEveryone,
				Args:     []ArgSpec{{Name: "command", Type: ArgString}},
			},
			handler: helpHandler(registry, responder, prefix),
		},
		{
			desc: Descriptor{
				Name: "ping",
				Tier: TierEveryone,
			},
			handler: HandlerFunc(func(ctx context.Context, msg *chat.Message, _ Params) error {
				return responder.Reply(ctx, msg, "pong!")
			}),
		},
		{
			desc: Descriptor{
				Name:        "status",
				Description: "Show bot version and uptime",
				Examples:    []string{p + "status"},
				Tier:        TierModerator,
			},
			handler: HandlerFunc(func(ctx context.Context, msg *chat.Message, _ Params) error {
				return responder.Reply(ctx, msg, statusText(registry))
			}),
		},
	}

	for _, b := range builtins {
		if err := registry.Register(b.desc, b.handler); err != nil {
			return fmt.Errorf("failed to register %s: %w", b.desc.Name, err)
		}
	}

	return nil
}

func helpHandler(registry *Registry, responder *chat.Responder, prefix func() string) Handler {
	return HandlerFunc(func(ctx context.Context, msg *chat.Message, params Params) error {
		if name, ok := params.String("command"); ok && name != "" {
			return responder.Reply(ctx, msg, commandHelp(registry, name, prefix()))
		}

		p := prefix()
		entries := HelpListing(registry, p)
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, p+e.Name)
		}
		return responder.Reply(ctx, msg, "Commands: "+strings.Join(names, ", "))
	})
}

// commandHelp looks the command up by primary name only.
func commandHelp(registry *Registry, name, prefix string) string {
	for _, e := range HelpListing(registry, prefix) {
		if e.Name != name {
			continue
		}
		text := e.Description
		if len(e.Examples) > 0 {
			usage := "Usage: " + strings.Join(e.Examples, ", ")
			if text != "" {
				text += ", " + usage
			} else {
				text = usage
			}
		}
		if text == "" {
			return "Command description not found"
		}
		return text
	}
	return "Command not found"
}

func statusText(registry *Registry) string {
	info := version.Get()
	return fmt.Sprintf("%s | up %s | %d commands | %s %s",
		version.GetFullVersion(),
		time.Since(processStartTime).Round(time.Second),
		registry.Len(),
		info.Go,
		info.Platform,
	)
}
