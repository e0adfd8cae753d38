package channels

import (
	"strings"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"twitchbot/pkg/chat"
)

// FromPrivateMessage converts a channel PRIVMSG into a chat.Message.
func FromPrivateMessage(m twitch.PrivateMessage, bot string) *chat.Message {
	author := userFrom(m.User, m.Tags)
	return &chat.Message{
		ID:        messageID(m.ID),
		Channel:   "#" + chat.NormalizeChannel(m.Channel),
		RoomID:    m.RoomID,
		Text:      m.Message,
		Author:    author,
		Kind:      chat.KindChannel,
		Self:      isBot(author, bot),
		Timestamp: timestamp(m.Time),
	}
}

// FromWhisperMessage converts a whisper into a chat.Message with no channel.
func FromWhisperMessage(m twitch.WhisperMessage, bot string) *chat.Message {
	author := userFrom(m.User, m.Tags)
	return &chat.Message{
		ID:        messageID(m.MessageID),
		Text:      m.Message,
		Author:    author,
		Kind:      chat.KindWhisper,
		Self:      isBot(author, bot),
		Timestamp: time.Now(),
	}
}

func userFrom(u twitch.User, tags map[string]string) chat.User {
	return chat.User{
		ID:            u.ID,
		Username:      strings.ToLower(u.Name),
		DisplayName:   u.DisplayName,
		IsBroadcaster: u.Badges["broadcaster"] == 1,
		IsModerator:   tags["mod"] == "1" || u.Badges["moderator"] == 1,
		IsSubscriber:  tags["subscriber"] == "1" || u.Badges["subscriber"] > 0,
		IsVIP:         tags["vip"] == "1" || u.Badges["vip"] == 1,
		IsTurbo:       tags["turbo"] == "1" || u.Badges["turbo"] == 1,
	}
}

func isBot(author chat.User, bot string) bool {
	return bot != "" && strings.EqualFold(author.Username, bot)
}

func messageID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
