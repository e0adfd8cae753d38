package webui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"twitchbot/pkg/auth"
	"twitchbot/pkg/chat"
	"twitchbot/pkg/chat/chattest"
	"twitchbot/pkg/commands"
	"twitchbot/pkg/config"
	"twitchbot/pkg/cron"
	"twitchbot/pkg/logger"
	"twitchbot/pkg/state"
)

const testSecret = "admin-secret"

type testEnv struct {
	server *Server
	usage  *state.Usage
	cfg    *config.Config
	loader *config.Loader
	rec    *chattest.Recorder
	token  string
}

func newTestEnv(t *testing.T, tokenURL string) *testEnv {
	t.Helper()

	loader := config.NewLoader()
	cfg, err := loader.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Gateway.JWTSecret = testSecret

	log := logger.NewNop()
	rec := chattest.NewRecorder("mybot", "streamer")
	responder := chat.NewResponder(rec)
	registry := commands.NewRegistry(log)
	if err := commands.RegisterBuiltinCommands(registry, responder, func() string { return "!" }); err != nil {
		t.Fatal(err)
	}
	cmdLoader := commands.NewLoader(responder, func() string { return "!" }, log)

	oauth := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	kv, err := state.NewFileStore(log, &state.FileStoreConfig{FilePath: filepath.Join(t.TempDir(), "state.json")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	usage := state.NewUsage(kv, log)

	store := auth.NewStore(cfg, loader)
	refresher := auth.NewRefresher(log, oauth, store, "")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	return &testEnv{
		server: NewServer(cfg, loader, log, registry, cmdLoader, usage, cron.New(log, rec, ""), store, refresher, rec),
		usage:  usage,
		cfg:    cfg,
		loader: loader,
		rec:    rec,
		token:  signed,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t, "")
	if rec := env.do(t, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t, "")

	if rec := env.do(t, http.MethodGet, "/api/status", "", ""); rec.Code < 400 {
		t.Fatalf("expected rejection without token, got %d", rec.Code)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin"})
	signed, err := forged.SignedString([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}
	if rec := env.do(t, http.MethodGet, "/api/status", "", signed); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/status", "", env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload map[string]interface{}
	decode(t, rec, &payload)
	for _, key := range []string{"version", "commit", "go_version", "pid", "uptime", "uptime_seconds", "memory_alloc_bytes"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing %q in %v", key, payload)
		}
	}
	if payload["username"] != "mybot" || payload["operator"] != "admin" || payload["command_count"] != float64(3) {
		t.Fatalf("unexpected status %v", payload)
	}
}

func TestHandleGetConfigHidesSecret(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/config", "", env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), testSecret) {
		t.Fatalf("config response leaks the jwt secret: %s", rec.Body.String())
	}

	var payload map[string]json.RawMessage
	decode(t, rec, &payload)
	var bot config.BotConfig
	if err := json.Unmarshal(payload["bot"], &bot); err != nil {
		t.Fatal(err)
	}
	if bot.Prefix != "!" {
		t.Fatalf("unexpected bot section %+v", bot)
	}

	var gw config.GatewayConfig
	if err := json.Unmarshal(payload["gateway"], &gw); err != nil {
		t.Fatal(err)
	}
	if gw.JWTSecret != "" || gw.Port != env.cfg.Gateway.Port {
		t.Fatalf("unexpected gateway section %+v", gw)
	}
	if _, ok := payload["webui"]; !ok {
		t.Fatalf("webui section missing: %s", rec.Body.String())
	}
}

func TestHandleLogin(t *testing.T) {
	env := newTestEnv(t, "")
	if err := env.cfg.SetAdminCredential("streamer", "correct horse"); err != nil {
		t.Fatal(err)
	}

	if rec := env.do(t, http.MethodPost, "/api/auth/login", `{"username":"streamer"}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without password, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/auth/login", `{"username":"streamer","password":"wrong"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/login", `{"username":"streamer","password":"correct horse"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	decode(t, rec, &out)
	if out.Token == "" || out.ExpiresIn <= 0 {
		t.Fatalf("unexpected login response %+v", out)
	}

	rec = env.do(t, http.MethodGet, "/api/status", "", out.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("issued token rejected: %d", rec.Code)
	}
	var status map[string]any
	decode(t, rec, &status)
	if status["operator"] != "streamer" {
		t.Fatalf("expected operator streamer, got %v", status["operator"])
	}

	rec = env.do(t, http.MethodGet, "/api/config", "", out.Token)
	if strings.Contains(rec.Body.String(), "$2a$") {
		t.Fatalf("config response leaks the password hash: %s", rec.Body.String())
	}
}

func TestHandleUpdateBotPersists(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPut, "/api/bot", `{"prefix":"?","owners":["Streamer"],"cooldown_ms":250}`, env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	bot := env.cfg.BotSettings()
	if bot.Prefix != "?" || bot.CooldownMS != 250 || len(bot.Owners) != 1 {
		t.Fatalf("settings not applied: %+v", bot)
	}

	reloaded, err := config.NewLoader().Load(env.cfg.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.BotSettings(); got.Prefix != "?" || got.CooldownMS != 250 {
		t.Fatalf("settings not persisted: %+v", got)
	}
}

func TestHandleUpdateBotRejectsEmptyPrefix(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPut, "/api/bot", `{"prefix":"  "}`, env.token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.cfg.BotSettings().Prefix != "!" {
		t.Fatal("prefix changed despite rejection")
	}
}

func TestHandleReloadCommands(t *testing.T) {
	env := newTestEnv(t, "")

	if rec := env.do(t, http.MethodPost, "/api/commands/reload", "", env.token); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 without commands_dir, got %d", rec.Code)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lurk.yaml"), []byte("name: lurk\nrun:\n  text: enjoy the lurk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bot := env.cfg.BotSettings()
	bot.CommandsDir = dir
	env.cfg.SetBotSettings(bot)

	rec := env.do(t, http.MethodPost, "/api/commands/reload", "", env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Loaded  int                 `json:"loaded"`
		Invalid []map[string]string `json:"invalid"`
		Total   int                 `json:"total"`
	}
	decode(t, rec, &payload)
	if payload.Loaded != 1 || len(payload.Invalid) != 1 || payload.Total != 4 {
		t.Fatalf("unexpected reload result %+v", payload)
	}

	// A second reload replaces rather than appends.
	rec = env.do(t, http.MethodPost, "/api/commands/reload", "", env.token)
	decode(t, rec, &payload)
	if payload.Total != 4 {
		t.Fatalf("expected 4 commands after second reload, got %d", payload.Total)
	}

	list := env.do(t, http.MethodGet, "/api/commands", "", env.token)
	if !strings.Contains(list.Body.String(), `"lurk"`) {
		t.Fatalf("reloaded command missing from listing: %s", list.Body.String())
	}
}

func TestHandleTokenStatusAndRefresh(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"expires_in":    3600,
			"token_type":    "bearer",
		})
	}))
	defer ts.Close()

	env := newTestEnv(t, ts.URL)

	if rec := env.do(t, http.MethodPost, "/api/auth/refresh", "", env.token); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 without refresh token, got %d", rec.Code)
	}

	env.cfg.UpdateTokens("old-access", "old-refresh", 60, time.Now())
	rec := env.do(t, http.MethodPost, "/api/auth/refresh", "", env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.cfg.TwitchSettings().AccessToken; got != "fresh-access" {
		t.Fatalf("expected stored fresh token, got %q", got)
	}

	var status map[string]interface{}
	decode(t, env.do(t, http.MethodGet, "/api/auth/token", "", env.token), &status)
	if status["has_access_token"] != true || status["refreshes"] != float64(1) || status["expires_at"] == nil {
		t.Fatalf("unexpected token status %v", status)
	}
}

func TestHandleSend(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/chat/send", `{"text":"hello chat"}`, env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/chat/send", `{"channel":"#other","text":"waves","action":true}`, env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/chat/send", `{"text":""}`, env.token); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", rec.Code)
	}

	want := []chattest.Sent{
		{Kind: "message", Target: "streamer", Text: "hello chat"},
		{Kind: "action", Target: "#other", Text: "waves"},
	}
	got := env.rec.Sent()
	if len(got) != len(want) {
		t.Fatalf("expected %d sends, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("send %d: want %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestHandleCommandUsage(t *testing.T) {
	env := newTestEnv(t, "")
	env.usage.Record("ping", false)
	env.usage.Record("ping", true)

	rec := env.do(t, http.MethodGet, "/api/commands/usage", "", env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]state.CommandUsage
	decode(t, rec, &payload)
	if payload["ping"] != (state.CommandUsage{Uses: 2, Failures: 1}) {
		t.Fatalf("unexpected usage %v", payload)
	}

	if rec := env.do(t, http.MethodDelete, "/api/commands/usage/ping", "", env.token); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	var afterReset map[string]state.CommandUsage
	decode(t, env.do(t, http.MethodGet, "/api/commands/usage", "", env.token), &afterReset)
	if len(afterReset) != 0 {
		t.Fatalf("expected empty usage after reset, got %v", afterReset)
	}
}

func TestTimerEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	if rec := env.do(t, http.MethodPost, "/api/timers", `{"schedule":"sometimes","text":"hi"}`, env.token); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad schedule, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/timers", `{"name":"socials","schedule":"@every 30m","text":"Follow on socials!"}`, env.token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var job cron.Job
	decode(t, rec, &job)

	rec = env.do(t, http.MethodPost, "/api/timers/"+job.ID+"/run", "", env.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for run, got %d: %s", rec.Code, rec.Body.String())
	}
	sent := env.rec.Sent()
	if len(sent) != 1 || sent[0].Text != "Follow on socials!" || sent[0].Target != "streamer" {
		t.Fatalf("unexpected sends %+v", sent)
	}

	rec = env.do(t, http.MethodPost, "/api/timers/"+job.ID+"/disable", "", env.token)
	decode(t, rec, &job)
	if rec.Code != http.StatusOK || job.Enabled {
		t.Fatalf("expected disabled timer, got %d %+v", rec.Code, job)
	}

	var jobs []cron.Job
	decode(t, env.do(t, http.MethodGet, "/api/timers", "", env.token), &jobs)
	if len(jobs) != 1 || jobs[0].RunCount != 1 {
		t.Fatalf("unexpected timer list %+v", jobs)
	}

	if rec := env.do(t, http.MethodDelete, "/api/timers/"+job.ID, "", env.token); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/timers/"+job.ID+"/enable", "", env.token); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}
