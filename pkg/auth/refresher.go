package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"twitchbot/pkg/logger"
)

// ErrNoRefreshToken is returned when a refresh is needed but impossible.
var ErrNoRefreshToken = errors.New("no refresh token configured")

// DefaultRefreshWindow is how long before expiry a token is renewed.
const DefaultRefreshWindow = time.Hour

// Refresher renews the user token on a cron schedule and on demand.
type Refresher struct {
	log      *logger.Logger
	oauth    *oauth2.Config
	store    *Store
	schedule string
	window   time.Duration
	now      func() time.Time

	scheduler *cron.Cron
	mu        sync.Mutex
	listeners []func(*oauth2.Token)
	refreshes int
}

// NewRefresher creates a refresher. schedule is a standard cron spec such
// as "@every 30m"; an empty schedule disables periodic checks.
func NewRefresher(log *logger.Logger, oauth *oauth2.Config, store *Store, schedule string) *Refresher {
	return &Refresher{
		log:       log.Module("auth"),
		oauth:     oauth,
		store:     store,
		schedule:  schedule,
		window:    DefaultRefreshWindow,
		now:       time.Now,
		scheduler: cron.New(),
	}
}

// OnRefresh registers fn to receive every newly obtained token.
func (r *Refresher) OnRefresh(fn func(*oauth2.Token)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Token returns a usable access token, refreshing first when the stored
// one is missing or about to expire.
func (r *Refresher) Token(ctx context.Context) (*oauth2.Token, error) {
	cred := r.store.Credential()
	if !cred.NeedsRefresh(r.now(), r.window) {
		return cred.Token(), nil
	}

	tok, err := r.Refresh(ctx)
	if err != nil {
		if cred.AccessToken != "" && !cred.IsExpired(r.now()) {
			r.log.Warn("Token refresh failed, using current token", zap.Error(err))
			return cred.Token(), nil
		}
		return nil, err
	}
	return tok, nil
}

// TokenSource adapts Token for oauth2.NewClient.
func (r *Refresher) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		return r.Token(ctx)
	})
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

// Refresh exchanges the refresh token for a new access token, persists it
// and notifies listeners.
func (r *Refresher) Refresh(ctx context.Context) (*oauth2.Token, error) {
	cred := r.store.Credential()
	if cred.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	// An empty access token forces the source to hit the token endpoint.
	src := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	if err := r.store.Save(tok); err != nil {
		r.log.Error("Failed to persist refreshed token", zap.Error(err))
	}

	r.mu.Lock()
	r.refreshes++
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.log.Info("Refreshed user token", zap.Time("expires_at", tok.Expiry))
	for _, fn := range listeners {
		fn(tok)
	}
	return tok, nil
}

// Refreshes returns how many refreshes succeeded.
func (r *Refresher) Refreshes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}

// Start schedules the periodic expiry check.
func (r *Refresher) Start() error {
	if r.schedule == "" {
		return nil
	}
	if _, err := r.scheduler.AddFunc(r.schedule, r.check); err != nil {
		return fmt.Errorf("invalid refresh schedule: %w", err)
	}
	r.scheduler.Start()
	r.log.Info("Token refresher started", zap.String("schedule", r.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running check.
func (r *Refresher) Stop() {
	ctx := r.scheduler.Stop()
	<-ctx.Done()
}

func (r *Refresher) check() {
	cred := r.store.Credential()
	if !cred.NeedsRefresh(r.now(), r.window) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := r.Refresh(ctx); err != nil {
		r.log.Error("Scheduled token refresh failed", zap.Error(err))
	}
}
