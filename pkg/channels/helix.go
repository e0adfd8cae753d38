package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// HelixBaseURL is the Twitch API root.
const HelixBaseURL = "https://api.twitch.tv/helix"

// helix is the small part of the Twitch API the bot needs. IRC no longer
// carries whispers, so they go through the REST endpoint.
type helix struct {
	http     *http.Client
	clientID string
	baseURL  string

	mu  sync.RWMutex
	ids map[string]string // login -> user id
}

func newHelix(client *http.Client, clientID, baseURL string) *helix {
	if baseURL == "" {
		baseURL = HelixBaseURL
	}
	return &helix{
		http:     client,
		clientID: clientID,
		baseURL:  baseURL,
		ids:      make(map[string]string),
	}
}

// remember caches a login to id mapping seen on an inbound message.
func (h *helix) remember(login, id string) {
	if login == "" || id == "" {
		return
	}
	h.mu.Lock()
	h.ids[login] = id
	h.mu.Unlock()
}

func (h *helix) userID(ctx context.Context, login string) (string, error) {
	h.mu.RLock()
	id, ok := h.ids[login]
	h.mu.RUnlock()
	if ok {
		return id, nil
	}

	var out struct {
		Data []struct {
			ID    string `json:"id"`
			Login string `json:"login"`
		} `json:"data"`
	}
	if err := h.do(ctx, http.MethodGet, "/users?login="+url.QueryEscape(login), nil, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("twitch user %q not found", login)
	}

	h.remember(login, out.Data[0].ID)
	return out.Data[0].ID, nil
}

func (h *helix) whisper(ctx context.Context, from, to, text string) error {
	fromID, err := h.userID(ctx, from)
	if err != nil {
		return err
	}
	toID, err := h.userID(ctx, to)
	if err != nil {
		return err
	}

	q := url.Values{"from_user_id": {fromID}, "to_user_id": {toID}}
	body := map[string]string{"message": text}
	return h.do(ctx, http.MethodPost, "/whispers?"+q.Encode(), body, nil)
}

func (h *helix) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", h.clientID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("helix %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("helix %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
