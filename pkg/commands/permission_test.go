package commands

import (
	"testing"

	"twitchbot/pkg/chat"
)

func newTestGate(owners ...string) *Gate {
	return NewGate(
		func() []string { return owners },
		func() string { return "mybot" },
	)
}

func msgFrom(user chat.User) *chat.Message {
	return &chat.Message{Channel: "#streamer", Kind: chat.KindChannel, Author: user, Text: "!x"}
}

var (
	viewer      = chat.User{Username: "viewer"}
	subscriber  = chat.User{Username: "sub", IsSubscriber: true}
	vip         = chat.User{Username: "vip", IsVIP: true}
	moderator   = chat.User{Username: "mod", IsModerator: true}
	broadcaster = chat.User{Username: "streamer", IsBroadcaster: true}
)

func TestGateTiers(t *testing.T) {
	tests := []struct {
		name   string
		tier   Tier
		user   chat.User
		owners []string
		reason string // empty means allowed
	}{
		{"everyone allows viewer", TierEveryone, viewer, nil, ""},

		{"regular without owners allows viewer", TierRegular, viewer, nil, ""},
		{"regular denies non owner", TierRegular, viewer, []string{"alice"}, ReasonOwnersOnly},
		{"regular allows owner", TierRegular, chat.User{Username: "alice"}, []string{"alice"}, ""},
		{"regular owner match ignores case", TierRegular, chat.User{Username: "Alice"}, []string{"alice"}, ""},
		{"regular allows moderator", TierRegular, moderator, []string{"alice"}, ""},
		{"regular allows broadcaster", TierRegular, broadcaster, []string{"alice"}, ""},

		{"subscriber denies viewer", TierSubscriber, viewer, nil, ReasonSubscribersOnly},
		{"subscriber allows subscriber", TierSubscriber, subscriber, nil, ""},
		{"subscriber allows moderator", TierSubscriber, moderator, nil, ""},
		{"subscriber denies vip", TierSubscriber, vip, nil, ReasonSubscribersOnly},

		{"vip denies viewer", TierVIP, viewer, nil, ReasonVIPsOnly},
		{"vip allows vip", TierVIP, vip, nil, ""},
		{"vip allows broadcaster", TierVIP, broadcaster, nil, ""},
		{"vip denies subscriber", TierVIP, subscriber, nil, ReasonVIPsOnly},

		{"moderator denies vip", TierModerator, vip, nil, ReasonModeratorsOnly},
		{"moderator allows moderator", TierModerator, moderator, nil, ""},
		{"moderator allows broadcaster", TierModerator, broadcaster, nil, ""},

		{"broadcaster denies moderator", TierBroadcaster, moderator, nil, ReasonBroadcasterOnly},
		{"broadcaster denies viewer", TierBroadcaster, viewer, nil, ReasonBroadcasterOnly},
		{"broadcaster allows broadcaster", TierBroadcaster, broadcaster, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestGate(tt.owners...).Check(Descriptor{Name: "x", Tier: tt.tier}, msgFrom(tt.user))
			if tt.reason == "" {
				if !d.Allowed {
					t.Fatalf("expected allowed, got denied: %q", d.Reason)
				}
				return
			}
			if d.Allowed {
				t.Fatalf("expected denial %q, got allowed", tt.reason)
			}
			if d.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, d.Reason)
			}
		})
	}
}

func TestGatePrivmsgOnly(t *testing.T) {
	g := newTestGate()
	desc := Descriptor{Name: "x", PrivmsgOnly: true, Tier: TierEveryone}

	d := g.Check(desc, msgFrom(broadcaster))
	if d.Allowed || d.Reason != ReasonPrivmsgOnly {
		t.Fatalf("expected privmsg-only denial even for broadcaster, got %+v", d)
	}

	whisper := msgFrom(viewer)
	whisper.Kind = chat.KindWhisper
	whisper.Channel = ""
	if d := g.Check(desc, whisper); !d.Allowed {
		t.Fatalf("expected whisper to be allowed, got %+v", d)
	}
}

func TestGateHomeChannelOnly(t *testing.T) {
	g := newTestGate()
	desc := Descriptor{Name: "x", HomeChannelOnly: true, Tier: TierEveryone}

	if d := g.Check(desc, msgFrom(broadcaster)); d.Allowed || d.Reason != ReasonHomeChannelOnly {
		t.Fatalf("expected home-channel denial, got %+v", d)
	}

	home := msgFrom(viewer)
	home.Channel = "#MyBot"
	if d := g.Check(desc, home); !d.Allowed {
		t.Fatalf("expected bot channel to be allowed, got %+v", d)
	}
}

func TestGateChecksLocationBeforeTier(t *testing.T) {
	g := newTestGate()
	desc := Descriptor{Name: "x", PrivmsgOnly: true, HomeChannelOnly: true, Tier: TierBroadcaster}

	if d := g.Check(desc, msgFrom(viewer)); d.Reason != ReasonPrivmsgOnly {
		t.Fatalf("expected privmsg rule first, got %q", d.Reason)
	}
}

func TestGateReadsOwnersOnEveryCheck(t *testing.T) {
	owners := []string{"alice"}
	g := NewGate(func() []string { return owners }, nil)
	desc := Descriptor{Name: "x", Tier: TierRegular}

	if d := g.Check(desc, msgFrom(viewer)); d.Allowed {
		t.Fatalf("expected denial before reload")
	}
	owners = append(owners, "viewer")
	if d := g.Check(desc, msgFrom(viewer)); !d.Allowed {
		t.Fatalf("expected reloaded owners to apply, got %+v", d)
	}
}

func TestDenialReasonsAreDistinct(t *testing.T) {
	reasons := []string{
		ReasonPrivmsgOnly, ReasonHomeChannelOnly, ReasonOwnersOnly,
		ReasonSubscribersOnly, ReasonVIPsOnly, ReasonModeratorsOnly, ReasonBroadcasterOnly,
	}
	seen := map[string]bool{}
	for _, r := range reasons {
		if seen[r] {
			t.Fatalf("duplicate reason %q", r)
		}
		seen[r] = true
	}
}
