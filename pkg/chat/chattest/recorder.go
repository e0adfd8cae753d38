// Package chattest provides an in-memory chat.Transport for tests.
package chattest

import (
	"context"
	"sync"
)

// Sent is one outbound call captured by Recorder.
type Sent struct {
	Kind   string // "message", "action" or "whisper"
	Target string
	Text   string
}

// Recorder implements chat.Transport and records every outbound call.
type Recorder struct {
	Username string
	Channels []string

	mu   sync.Mutex
	sent []Sent
	// Notify receives a copy of every Sent when non-nil.
	Notify chan Sent
}

// NewRecorder creates a recorder for the given bot login.
func NewRecorder(username string, channels ...string) *Recorder {
	return &Recorder{Username: username, Channels: channels}
}

func (r *Recorder) record(s Sent) error {
	r.mu.Lock()
	r.sent = append(r.sent, s)
	notify := r.Notify
	r.mu.Unlock()
	if notify != nil {
		notify <- s
	}
	return nil
}

// SendMessage records a channel message.
func (r *Recorder) SendMessage(_ context.Context, channel, text string) error {
	return r.record(Sent{Kind: "message", Target: channel, Text: text})
}

// SendAction records a /me action.
func (r *Recorder) SendAction(_ context.Context, channel, text string) error {
	return r.record(Sent{Kind: "action", Target: channel, Text: text})
}

// SendWhisper records a whisper.
func (r *Recorder) SendWhisper(_ context.Context, username, text string) error {
	return r.record(Sent{Kind: "whisper", Target: username, Text: text})
}

// BotUsername returns the configured login.
func (r *Recorder) BotUsername() string {
	return r.Username
}

// JoinedChannels returns the configured channels.
func (r *Recorder) JoinedChannels() []string {
	return append([]string(nil), r.Channels...)
}

// Sent returns a snapshot of everything sent so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}
