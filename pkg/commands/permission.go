package commands

import (
	"strings"

	"twitchbot/pkg/chat"
)

// Denial reasons surfaced to the requester.
const (
	ReasonPrivmsgOnly     = "This command is available only via private message"
	ReasonHomeChannelOnly = "This command can be executed only in the bot channel"
	ReasonOwnersOnly      = "This command can be executed only from bot owners"
	ReasonSubscribersOnly = "This command can be executed only from the subscribers"
	ReasonVIPsOnly        = "This command can be executed only from the vips"
	ReasonModeratorsOnly  = "This command can be executed only from a mod or the broadcaster"
	ReasonBroadcasterOnly = "This command can be executed only from the broadcaster"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Gate decides whether a message author may run a command.
type Gate struct {
	owners      func() []string
	botUsername func() string
}

// NewGate creates a gate. owners is read on every check so reloaded
// configuration applies without a restart.
func NewGate(owners func() []string, botUsername func() string) *Gate {
	if owners == nil {
		owners = func() []string { return nil }
	}
	if botUsername == nil {
		botUsername = func() string { return "" }
	}
	return &Gate{owners: owners, botUsername: botUsername}
}

// Check evaluates the rules in order; the first failing rule denies.
func (g *Gate) Check(desc Descriptor, msg *chat.Message) Decision {
	if desc.PrivmsgOnly && !msg.IsWhisper() {
		return deny(ReasonPrivmsgOnly)
	}

	if desc.HomeChannelOnly && chat.NormalizeChannel(msg.Channel) != chat.NormalizeChannel(g.botUsername()) {
		return deny(ReasonHomeChannelOnly)
	}

	if desc.Tier == TierEveryone {
		return allow()
	}

	author := msg.Author
	privileged := author.Privileged()

	switch desc.Tier {
	case TierRegular:
		owners := g.owners()
		if !privileged && len(owners) > 0 && !containsFold(owners, author.Username) {
			return deny(ReasonOwnersOnly)
		}
	case TierSubscriber:
		if !privileged && !author.IsSubscriber {
			return deny(ReasonSubscribersOnly)
		}
	case TierVIP:
		if !privileged && !author.IsVIP {
			return deny(ReasonVIPsOnly)
		}
	case TierModerator:
		if !privileged {
			return deny(ReasonModeratorsOnly)
		}
	case TierBroadcaster:
		// moderators are privileged but do not satisfy this tier
		if !author.IsBroadcaster {
			return deny(ReasonBroadcasterOnly)
		}
	}

	return allow()
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), s) {
			return true
		}
	}
	return false
}
