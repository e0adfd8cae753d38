// Package channels connects the bot to chat platforms.
package channels

import (
	"context"

	"twitchbot/pkg/chat"
)

// Channel is a chat connection that feeds inbound messages to a handler and
// sends replies through the chat.Transport it implements.
type Channel interface {
	chat.Transport

	// ID returns the unique channel identifier.
	ID() string

	// Name returns the human-readable channel name.
	Name() string

	// Start connects and begins delivering messages.
	Start(ctx context.Context) error

	// Stop disconnects gracefully.
	Stop(ctx context.Context) error

	// SetHandler sets the function receiving inbound messages.
	SetHandler(h MessageHandler)
}

// MessageHandler receives every inbound message.
type MessageHandler func(ctx context.Context, msg *chat.Message)
