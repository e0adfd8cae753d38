package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"
)

// Login runs the authorization code flow against a local callback server.
type Login struct {
	OAuth *oauth2.Config
	// Open shows the authorization URL to the user. Defaults to the
	// platform browser opener.
	Open    func(url string) error
	Timeout time.Duration
}

// Run waits for the browser to return an authorization code and exchanges it.
func (l *Login) Run(ctx context.Context) (*oauth2.Token, error) {
	redirect, err := url.Parse(l.OAuth.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("invalid redirect url %q", l.OAuth.RedirectURL)
	}

	state, err := generateState()
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			errCh <- fmt.Errorf("authorization denied: %s", e)
			fmt.Fprintf(w, "Authentication failed: %s\nYou can close this window.", e)
			return
		}
		if q.Get("state") != state {
			errCh <- errors.New("state mismatch")
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			errCh <- errors.New("no authorization code received")
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		codeCh <- code
		fmt.Fprint(w, "Authentication successful! You can close this window.")
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server error: %w", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	open := l.Open
	if open == nil {
		open = openBrowser
	}
	authURL := l.OAuth.AuthCodeURL(state, oauth2.SetAuthURLParam("force_verify", "true"))
	if err := open(authURL); err != nil {
		fmt.Printf("Could not open browser automatically: %v\nVisit this URL:\n%s\n", err, authURL)
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(timeout):
		return nil, errors.New("authentication timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := l.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return tok, nil
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}
