package auth

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"twitchbot/pkg/config"
)

// Store persists tokens in the twitch section of the config file.
type Store struct {
	cfg    *config.Config
	loader *config.Loader
	now    func() time.Time
}

// NewStore creates a store writing through loader. A nil loader keeps
// tokens in memory only.
func NewStore(cfg *config.Config, loader *config.Loader) *Store {
	return &Store{cfg: cfg, loader: loader, now: time.Now}
}

// Credential returns the current token.
func (s *Store) Credential() Credential {
	return CredentialFrom(s.cfg.TwitchSettings())
}

// Save records tok and writes the config file back to disk.
func (s *Store) Save(tok *oauth2.Token) error {
	now := s.now()
	expiresIn := 0
	if !tok.Expiry.IsZero() {
		expiresIn = int(tok.Expiry.Sub(now).Seconds())
	}
	s.cfg.UpdateTokens(tok.AccessToken, tok.RefreshToken, expiresIn, now)

	path := s.cfg.Path()
	if s.loader == nil || path == "" {
		return nil
	}
	if err := s.loader.Save(path, s.cfg); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}
	return nil
}
