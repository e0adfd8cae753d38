// Package webui provides the admin API for twitchbot.
// It uses Echo v5 for HTTP routing with JWT authentication and lets an
// operator inspect the bot, adjust dispatch settings, reload command
// definitions and manage the user token without restarting.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v5"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"go.uber.org/zap"

	"twitchbot/pkg/auth"
	"twitchbot/pkg/chat"
	"twitchbot/pkg/commands"
	"twitchbot/pkg/config"
	"twitchbot/pkg/cron"
	"twitchbot/pkg/gateway"
	"twitchbot/pkg/logger"
	"twitchbot/pkg/state"
	"twitchbot/pkg/version"
)

// Server is the admin HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	config     *config.Config
	loader     *config.Loader
	logger     *logger.Logger
	registry   *commands.Registry
	cmdLoader  *commands.Loader
	usage      *state.Usage
	timers     *cron.Manager
	store      *auth.Store
	refresher  *auth.Refresher
	transport  chat.Transport
	port       int
	startedAt  time.Time
}

// NewServer creates a new admin server.
func NewServer(
	cfg *config.Config,
	loader *config.Loader,
	log *logger.Logger,
	registry *commands.Registry,
	cmdLoader *commands.Loader,
	usage *state.Usage,
	timers *cron.Manager,
	store *auth.Store,
	refresher *auth.Refresher,
	transport chat.Transport,
) *Server {
	port := cfg.WebUI.Port
	if port == 0 {
		port = cfg.Gateway.Port + 1
	}

	s := &Server{
		config:    cfg,
		loader:    loader,
		logger:    log.Module("webui"),
		registry:  registry,
		cmdLoader: cmdLoader,
		usage:     usage,
		timers:    timers,
		store:     store,
		refresher: refresher,
		transport: transport,
		port:      port,
		startedAt: time.Now(),
	}

	s.setup()
	return s
}

func (s *Server) setup() {
	e := echo.New()

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	e.GET("/health", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/api/auth/login", s.handleLogin)

	api := e.Group("/api")
	api.Use(echojwt.WithConfig(echojwt.Config{
		KeyFunc: func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(s.config.Gateway.JWTSecret), nil
		},
	}))

	api.GET("/status", s.handleStatus)
	api.GET("/config", s.handleGetConfig)
	api.PUT("/bot", s.handleUpdateBot)

	api.GET("/commands", s.handleListCommands)
	api.POST("/commands/reload", s.handleReloadCommands)
	api.GET("/commands/usage", s.handleCommandUsage)
	api.DELETE("/commands/usage/:name", s.handleResetUsage)

	api.GET("/timers", s.handleListTimers)
	api.POST("/timers", s.handleCreateTimer)
	api.POST("/timers/:id/enable", s.handleEnableTimer)
	api.POST("/timers/:id/disable", s.handleDisableTimer)
	api.POST("/timers/:id/run", s.handleRunTimer)
	api.DELETE("/timers/:id", s.handleDeleteTimer)

	api.GET("/auth/token", s.handleTokenStatus)
	api.POST("/auth/refresh", s.handleRefreshToken)

	api.POST("/chat/send", s.handleSend)

	s.echo = e
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the admin server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.port)
	s.logger.Info("Admin server starting", zap.String("addr", addr))

	// fx owns shutdown, so echo's own Start is not used.
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Admin server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the admin server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Admin server stopping")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(c *echo.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startedAt)
	bot := s.config.BotSettings()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":            version.GetVersion(),
		"commit":             version.GitCommit,
		"build_time":         version.BuildTime,
		"go_version":         runtime.Version(),
		"pid":                os.Getpid(),
		"uptime":             uptime.Round(time.Second).String(),
		"uptime_seconds":     int64(uptime.Seconds()),
		"memory_alloc_bytes": mem.Alloc,
		"username":           s.transport.BotUsername(),
		"channels":           s.transport.JoinedChannels(),
		"prefix":             bot.Prefix,
		"command_count":      s.registry.Len(),
		"operator":           currentSubject(c),
	})
}

// loginTTL bounds tokens issued by password login.
const loginTTL = 24 * time.Hour

func (s *Server) handleLogin(c *echo.Context) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "username and password are required"})
	}

	if !s.config.CheckAdminCredential(username, body.Password) {
		s.logger.Warn("Admin login rejected", zap.String("username", username))
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	token, err := gateway.IssueToken(s.config.Gateway.JWTSecret, username, loginTTL)
	if err != nil {
		s.logger.Error("Failed to issue admin token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
	}

	s.logger.Info("Admin logged in", zap.String("username", username))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": int(loginTTL.Seconds()),
	})
}

func (s *Server) handleGetConfig(c *echo.Context) error {
	// Secrets stay server side.
	gw := s.config.Gateway
	gw.JWTSecret = ""

	ui := s.config.WebUI
	ui.AdminPasswordHash = ""

	return c.JSON(http.StatusOK, map[string]interface{}{
		"bot":     s.config.BotSettings(),
		"gateway": gw,
		"webui":   ui,
		"logger":  s.config.Logger,
		"bus":     s.config.Bus,
	})
}

func (s *Server) handleUpdateBot(c *echo.Context) error {
	var body struct {
		Prefix     *string   `json:"prefix"`
		Owners     *[]string `json:"owners"`
		CooldownMS *int      `json:"cooldown_ms"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	bot := s.config.BotSettings()
	if body.Prefix != nil {
		prefix := strings.TrimSpace(*body.Prefix)
		if prefix == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "prefix must not be empty"})
		}
		bot.Prefix = prefix
	}
	if body.Owners != nil {
		bot.Owners = append([]string(nil), (*body.Owners)...)
	}
	if body.CooldownMS != nil {
		if *body.CooldownMS < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "cooldown_ms must not be negative"})
		}
		bot.CooldownMS = *body.CooldownMS
	}
	s.config.SetBotSettings(bot)

	if path := s.config.Path(); path != "" && s.loader != nil {
		if err := s.loader.Save(path, s.config); err != nil {
			s.logger.Error("Failed to persist bot settings", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to save config"})
		}
	}

	s.logger.Info("Bot settings updated",
		zap.String("operator", currentSubject(c)),
		zap.String("prefix", bot.Prefix),
		zap.Int("owners", len(bot.Owners)))
	return c.JSON(http.StatusOK, bot)
}

func (s *Server) handleListCommands(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"prefix":   s.config.BotSettings().Prefix,
		"commands": commands.HelpListing(s.registry, s.config.BotSettings().Prefix),
	})
}

func (s *Server) handleReloadCommands(c *echo.Context) error {
	dir := s.config.BotSettings().CommandsDir
	if dir == "" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "bot.commands_dir is not set"})
	}

	results, err := commands.ReloadDir(s.registry, s.cmdLoader, dir)
	if err != nil {
		s.logger.Error("Command reload failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	invalid := make([]map[string]string, 0)
	for _, res := range results {
		if inv, ok := res.(commands.Invalid); ok {
			invalid = append(invalid, map[string]string{"path": inv.Path, "reason": inv.Reason})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"loaded":  len(results) - len(invalid),
		"invalid": invalid,
		"total":   s.registry.Len(),
	})
}

func (s *Server) handleCommandUsage(c *echo.Context) error {
	usage, err := s.usage.Snapshot(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to read command usage", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read usage"})
	}
	return c.JSON(http.StatusOK, usage)
}

func (s *Server) handleResetUsage(c *echo.Context) error {
	name := c.Param("name")
	if err := s.usage.Reset(c.Request().Context(), name); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListTimers(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.timers.ListJobs())
}

func (s *Server) handleCreateTimer(c *echo.Context) error {
	var spec cron.Spec
	if err := c.Bind(&spec); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	job, err := s.timers.AddJob(spec)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, job)
}

func (s *Server) handleEnableTimer(c *echo.Context) error {
	return s.timerAction(c, s.timers.EnableJob)
}

func (s *Server) handleDisableTimer(c *echo.Context) error {
	return s.timerAction(c, s.timers.DisableJob)
}

func (s *Server) handleRunTimer(c *echo.Context) error {
	return s.timerAction(c, s.timers.RunJob)
}

func (s *Server) handleDeleteTimer(c *echo.Context) error {
	id := c.Param("id")
	if err := s.timers.RemoveJob(id); err != nil {
		return timerError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) timerAction(c *echo.Context, fn func(string) error) error {
	id := c.Param("id")
	if err := fn(id); err != nil {
		return timerError(c, err)
	}
	job, err := s.timers.GetJob(id)
	if err != nil {
		return timerError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

func timerError(c *echo.Context, err error) error {
	if errors.Is(err, cron.ErrJobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
}

func (s *Server) handleTokenStatus(c *echo.Context) error {
	cred := s.store.Credential()
	status := map[string]interface{}{
		"has_access_token":  cred.AccessToken != "",
		"has_refresh_token": cred.RefreshToken != "",
		"expired":           cred.IsExpired(time.Now()),
		"refreshes":         s.refresher.Refreshes(),
	}
	if !cred.ExpiresAt.IsZero() {
		status["expires_at"] = cred.ExpiresAt.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleRefreshToken(c *echo.Context) error {
	tok, err := s.refresher.Refresh(c.Request().Context())
	if errors.Is(err, auth.ErrNoRefreshToken) {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	if err != nil {
		s.logger.Warn("Manual token refresh failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"expires_at": tok.Expiry.Format(time.RFC3339)})
}

func (s *Server) handleSend(c *echo.Context) error {
	var body struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
		Action  bool   `json:"action"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if strings.TrimSpace(body.Text) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text required"})
	}

	channel := body.Channel
	if channel == "" {
		joined := s.transport.JoinedChannels()
		if len(joined) == 0 {
			return c.JSON(http.StatusConflict, map[string]string{"error": "no joined channel"})
		}
		channel = joined[0]
	}

	ctx := c.Request().Context()
	var err error
	if body.Action {
		err = s.transport.SendAction(ctx, channel, body.Text)
	} else {
		err = s.transport.SendMessage(ctx, channel, body.Text)
	}
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	s.logger.Info("Operator message sent",
		zap.String("operator", currentSubject(c)),
		zap.String("channel", channel))
	return c.JSON(http.StatusOK, map[string]string{"channel": chat.NormalizeChannel(channel)})
}

func currentSubject(c *echo.Context) string {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return strings.TrimSpace(sub)
}
