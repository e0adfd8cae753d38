package chat

import (
	"context"
	"fmt"
)

// Transport is the outbound side of a chat connection.
type Transport interface {
	SendMessage(ctx context.Context, channel, text string) error
	SendAction(ctx context.Context, channel, text string) error
	SendWhisper(ctx context.Context, username, text string) error
	BotUsername() string
	JoinedChannels() []string
}

// Responder answers inbound messages through a Transport.
type Responder struct {
	transport Transport
}

// NewResponder creates a responder bound to a transport.
func NewResponder(t Transport) *Responder {
	return &Responder{transport: t}
}

// Transport returns the underlying transport.
func (r *Responder) Transport() Transport {
	return r.transport
}

// Reply whispers back to a whisper, otherwise mentions the author in the channel.
func (r *Responder) Reply(ctx context.Context, msg *Message, text string) error {
	if msg.IsWhisper() {
		return r.transport.SendWhisper(ctx, msg.Author.Username, text)
	}
	return r.transport.SendMessage(ctx, msg.Channel, mention(msg, text))
}

// ActionReply is Reply sent as a /me action.
func (r *Responder) ActionReply(ctx context.Context, msg *Message, text string) error {
	if msg.Channel == "" {
		return r.transport.SendWhisper(ctx, msg.Author.Username, text)
	}
	return r.transport.SendAction(ctx, msg.Channel, mention(msg, text))
}

// Say posts text in the message's channel without a mention.
func (r *Responder) Say(ctx context.Context, msg *Message, text string) error {
	if msg.Channel == "" {
		return r.transport.SendWhisper(ctx, msg.Author.Username, text)
	}
	return r.transport.SendMessage(ctx, msg.Channel, text)
}

// ActionSay posts a /me action in the message's channel.
func (r *Responder) ActionSay(ctx context.Context, msg *Message, text string) error {
	if msg.Channel == "" {
		return r.transport.SendWhisper(ctx, msg.Author.Username, text)
	}
	return r.transport.SendAction(ctx, msg.Channel, text)
}

func mention(msg *Message, text string) string {
	return fmt.Sprintf("@%s, %s", msg.Author.Name(), text)
}
