// Package auth keeps the bot's Twitch user token valid and persisted.
package auth

import (
	"time"

	"golang.org/x/oauth2"

	"twitchbot/pkg/config"
)

// Endpoint is the Twitch OAuth2 endpoint. Twitch expects the client
// credentials in the request body.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://id.twitch.tv/oauth2/authorize",
	TokenURL:  "https://id.twitch.tv/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// ChatScopes are the scopes a chat bot account needs.
var ChatScopes = []string{
	"chat:read",
	"chat:edit",
	"whispers:read",
	"whispers:edit",
	"user:manage:whispers",
}

// DefaultRedirectURL is where LoginBrowser listens for the authorization code.
const DefaultRedirectURL = "http://localhost:3000/callback"

// NewOAuthConfig builds the oauth2 client configuration for the bot account.
func NewOAuthConfig(tc config.TwitchConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     tc.ClientID,
		ClientSecret: tc.ClientSecret,
		Endpoint:     Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       ChatScopes,
	}
}

// Credential is the stored user token.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// CredentialFrom reads the token fields of the twitch config section.
func CredentialFrom(tc config.TwitchConfig) Credential {
	c := Credential{
		AccessToken:  tc.AccessToken,
		RefreshToken: tc.RefreshToken,
	}
	if tc.ExpiresIn > 0 && tc.ObtainmentTimestamp > 0 {
		c.ExpiresAt = time.UnixMilli(tc.ObtainmentTimestamp).Add(time.Duration(tc.ExpiresIn) * time.Second)
	}
	return c
}

// IsExpired checks if the credential has expired.
func (c Credential) IsExpired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false // No expiry set
	}
	return now.After(c.ExpiresAt)
}

// NeedsRefresh reports whether the token is missing or expires within window.
func (c Credential) NeedsRefresh(now time.Time, window time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Sub(now) < window
}

// Token converts the credential to an oauth2 token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "bearer",
		Expiry:       c.ExpiresAt,
	}
}
