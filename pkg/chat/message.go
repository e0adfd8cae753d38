// Package chat defines the inbound message context and the outbound
// transport contract shared by the dispatcher and the platform channels.
package chat

import (
	"strings"
	"time"
)

// Kind tells channel messages apart from private ones.
type Kind string

const (
	// KindChannel is a message posted in a channel.
	KindChannel Kind = "chat"
	// KindWhisper is a private message delivered directly to the bot.
	KindWhisper Kind = "whisper"
)

// User is the author of a message with the badges relevant to permissions.
type User struct {
	ID            string `json:"id,omitempty"`
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	IsBroadcaster bool   `json:"broadcaster,omitempty"`
	IsModerator   bool   `json:"moderator,omitempty"`
	IsSubscriber  bool   `json:"subscriber,omitempty"`
	IsVIP         bool   `json:"vip,omitempty"`
	IsTurbo       bool   `json:"turbo,omitempty"`
}

// Privileged reports broadcaster or moderator status in the current channel.
func (u User) Privileged() bool {
	return u.IsBroadcaster || u.IsModerator
}

// Name returns the display name, falling back to the login.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Message is one inbound chat event. It is built by a channel and must not
// be mutated once handed to the dispatcher.
type Message struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	RoomID    string    `json:"room_id,omitempty"`
	Text      string    `json:"text"`
	Author    User      `json:"author"`
	Kind      Kind      `json:"kind"`
	Self      bool      `json:"self,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsWhisper reports whether the message arrived as a private message.
func (m *Message) IsWhisper() bool {
	return m.Kind == KindWhisper
}

// NormalizeChannel lowercases a channel name and strips the leading '#'.
func NormalizeChannel(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}
