package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gempir/go-twitch-irc/v4"
	"go.uber.org/zap"

	"twitchbot/pkg/chat"
	"twitchbot/pkg/logger"
)

// ircClient is the subset of *twitch.Client the channel drives.
type ircClient interface {
	OnConnect(callback func())
	OnPrivateMessage(callback func(message twitch.PrivateMessage))
	OnWhisperMessage(callback func(message twitch.WhisperMessage))
	Join(channels ...string)
	Say(channel, text string)
	SetIRCToken(ircToken string)
	Connect() error
	Disconnect() error
}

// TokenFunc returns a current user access token.
type TokenFunc func(ctx context.Context) (string, error)

// TwitchOptions configures a Twitch channel.
type TwitchOptions struct {
	Username string
	Channels []string
	ClientID string
	// HTTPClient must attach the user token; it is used for whispers.
	HTTPClient *http.Client
	HelixURL   string
	Token      TokenFunc
}

// Twitch is the Twitch IRC channel.
type Twitch struct {
	log      *logger.Logger
	client   ircClient
	helix    *helix
	username string
	channels []string
	token    TokenFunc

	mu      sync.RWMutex
	handler MessageHandler
	ctx     context.Context
	cancel  context.CancelFunc
	joined  []string
	done    chan struct{}
}

// NewTwitch creates the channel with a go-twitch-irc client.
func NewTwitch(log *logger.Logger, opts TwitchOptions) *Twitch {
	username := strings.ToLower(opts.Username)
	return newTwitch(log, twitch.NewClient(username, ""), opts)
}

func newTwitch(log *logger.Logger, client ircClient, opts TwitchOptions) *Twitch {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	channels := make([]string, 0, len(opts.Channels))
	seen := make(map[string]bool, len(opts.Channels))
	for _, ch := range opts.Channels {
		name := chat.NormalizeChannel(ch)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		channels = append(channels, name)
	}

	t := &Twitch{
		log:      log.Module("twitch"),
		client:   client,
		helix:    newHelix(httpClient, opts.ClientID, opts.HelixURL),
		username: strings.ToLower(opts.Username),
		channels: channels,
		token:    opts.Token,
		handler:  func(context.Context, *chat.Message) {},
		ctx:      context.Background(),
	}

	client.OnConnect(t.onConnect)
	client.OnPrivateMessage(t.onPrivateMessage)
	client.OnWhisperMessage(t.onWhisperMessage)
	return t
}

// ID returns the channel identifier.
func (t *Twitch) ID() string {
	return "twitch"
}

// Name returns the channel name.
func (t *Twitch) Name() string {
	return "Twitch"
}

// SetHandler sets the function receiving inbound messages.
func (t *Twitch) SetHandler(h MessageHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Start authenticates, joins the configured channels and connects in the
// background.
func (t *Twitch) Start(ctx context.Context) error {
	t.log.Info("Starting Twitch channel",
		zap.String("username", t.username),
		zap.Strings("channels", t.channels))

	if t.token != nil {
		tok, err := t.token(ctx)
		if err != nil {
			return fmt.Errorf("getting chat token: %w", err)
		}
		t.SetToken(tok)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.ctx = runCtx
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	t.client.Join(t.channels...)

	go func() {
		defer close(done)
		if err := t.client.Connect(); err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
			t.log.Error("Twitch connection closed", zap.Error(err))
		}
	}()
	return nil
}

// Stop disconnects and waits for the connection loop to exit.
func (t *Twitch) Stop(ctx context.Context) error {
	t.log.Info("Stopping Twitch channel")

	t.mu.RLock()
	cancel, done := t.cancel, t.done
	t.mu.RUnlock()
	if cancel == nil {
		return nil
	}
	cancel()

	if err := t.client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
		return fmt.Errorf("disconnecting: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetToken updates the IRC password used on the next (re)connect.
func (t *Twitch) SetToken(accessToken string) {
	if accessToken == "" {
		return
	}
	if !strings.HasPrefix(accessToken, "oauth:") {
		accessToken = "oauth:" + accessToken
	}
	t.client.SetIRCToken(accessToken)
}

// SendMessage posts text in a channel.
func (t *Twitch) SendMessage(_ context.Context, channel, text string) error {
	name := chat.NormalizeChannel(channel)
	if name == "" {
		return fmt.Errorf("empty channel")
	}
	t.client.Say(name, text)
	return nil
}

// SendAction posts a /me action in a channel.
func (t *Twitch) SendAction(ctx context.Context, channel, text string) error {
	return t.SendMessage(ctx, channel, "\x01ACTION "+text+"\x01")
}

// SendWhisper sends a private message through the Helix API.
func (t *Twitch) SendWhisper(ctx context.Context, username, text string) error {
	if err := t.helix.whisper(ctx, t.username, strings.ToLower(username), text); err != nil {
		return fmt.Errorf("whisper to %s: %w", username, err)
	}
	return nil
}

// BotUsername returns the bot login.
func (t *Twitch) BotUsername() string {
	return t.username
}

// JoinedChannels returns the channels joined at startup.
func (t *Twitch) JoinedChannels() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.joined == nil {
		return append([]string(nil), t.channels...)
	}
	return append([]string(nil), t.joined...)
}

func (t *Twitch) onConnect() {
	t.mu.Lock()
	t.joined = append([]string(nil), t.channels...)
	t.mu.Unlock()
	t.log.Info("Connected to Twitch chat", zap.Int("channels", len(t.channels)))
}

func (t *Twitch) onPrivateMessage(m twitch.PrivateMessage) {
	t.deliver(FromPrivateMessage(m, t.username))
}

func (t *Twitch) onWhisperMessage(m twitch.WhisperMessage) {
	t.deliver(FromWhisperMessage(m, t.username))
}

func (t *Twitch) deliver(msg *chat.Message) {
	t.helix.remember(msg.Author.Username, msg.Author.ID)

	t.mu.RLock()
	h, ctx := t.handler, t.ctx
	t.mu.RUnlock()

	h(ctx, msg)
}
