package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestLoginExchangesCode(t *testing.T) {
	ts := newTokenServer(t)
	oauth := testOAuth(ts)
	oauth.Endpoint.AuthURL = "https://id.twitch.tv/oauth2/authorize"
	oauth.RedirectURL = fmt.Sprintf("http://%s/callback", freeAddr(t))

	login := &Login{
		OAuth:   oauth,
		Timeout: 5 * time.Second,
		Open: func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			if u.Query().Get("client_id") != "client" {
				return fmt.Errorf("unexpected auth url %s", authURL)
			}
			go func() {
				cb := oauth.RedirectURL + "?code=abc&state=" + url.QueryEscape(u.Query().Get("state"))
				if resp, err := http.Get(cb); err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	tok, err := login.Run(context.Background())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok.AccessToken != "fresh-access" {
		t.Fatalf("unexpected token %q", tok.AccessToken)
	}
	form := ts.last.Load().(url.Values)
	if form.Get("code") != "abc" || form.Get("grant_type") != "authorization_code" {
		t.Fatalf("unexpected exchange %v", form)
	}
}

func TestLoginRejectsStateMismatch(t *testing.T) {
	ts := newTokenServer(t)
	oauth := testOAuth(ts)
	oauth.RedirectURL = fmt.Sprintf("http://%s/callback", freeAddr(t))

	login := &Login{
		OAuth:   oauth,
		Timeout: 5 * time.Second,
		Open: func(string) error {
			go func() {
				if resp, err := http.Get(oauth.RedirectURL + "?code=abc&state=forged"); err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	if _, err := login.Run(context.Background()); err == nil {
		t.Fatal("expected state mismatch error")
	}
	if ts.calls.Load() != 0 {
		t.Fatal("code must not be exchanged")
	}
}
