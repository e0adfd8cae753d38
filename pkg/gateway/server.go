// Package gateway exposes the bot over HTTP: a WebSocket stream of chat
// and command events plus REST endpoints for status and the command list.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"twitchbot/pkg/bus"
	"twitchbot/pkg/chat"
	"twitchbot/pkg/commands"
	"twitchbot/pkg/config"
	"twitchbot/pkg/logger"
	"twitchbot/pkg/version"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSMessage is the JSON format for WebSocket messages.
type WSMessage struct {
	Type      string     `json:"type"` // "event", "invoke", "ping", "pong", "error", "system"
	Content   string     `json:"content,omitempty"`
	Command   string     `json:"command,omitempty"`
	Channel   string     `json:"channel,omitempty"`
	Event     *bus.Event `json:"event,omitempty"`
	Timestamp int64      `json:"timestamp,omitempty"`
}

// Client represents a connected WebSocket client.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	username string
}

// Server is the WebSocket/REST gateway server.
type Server struct {
	config     config.GatewayConfig
	logger     *logger.Logger
	bus        bus.Bus
	dispatcher *commands.Dispatcher
	transport  chat.Transport
	started    time.Time

	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
	clients  map[string]*Client
	mu       sync.RWMutex
}

// NewServer creates a new gateway server.
func NewServer(cfg config.GatewayConfig, log *logger.Logger, messageBus bus.Bus, d *commands.Dispatcher, t chat.Transport) *Server {
	s := &Server{
		config:     cfg,
		logger:     log.Module("gateway"),
		bus:        messageBus,
		dispatcher: d,
		transport:  t,
		started:    time.Now(),
		clients:    make(map[string]*Client),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/events", s.requireAuth(s.handleWSEvents))

	mux.HandleFunc("GET /api/v1/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("GET /api/v1/connections", s.requireAuth(s.handleConnections))
	mux.HandleFunc("GET /api/v1/commands", s.requireAuth(s.handleCommands))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.mux = mux
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start subscribes to the bus and starts listening.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	s.bus.RegisterHandler(bus.TopicMessageReceived, s.broadcastEvent)
	s.bus.RegisterHandler(bus.TopicCommandResult, s.broadcastEvent)

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("Gateway server starting", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Gateway server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Gateway server stopping")

	s.bus.UnregisterHandlers(bus.TopicMessageReceived)
	s.bus.UnregisterHandlers(bus.TopicCommandResult)

	s.mu.Lock()
	for id, client := range s.clients {
		close(client.send)
		client.conn.Close()
		delete(s.clients, id)
	}
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// --- WebSocket Handler ---

func (s *Server) handleWSEvents(w http.ResponseWriter, r *http.Request) {
	username := subjectFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:       uuid.New().String(),
		conn:     conn,
		send:     make(chan []byte, 256),
		username: username,
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	s.logger.Info("WebSocket client connected",
		zap.String("client_id", client.id),
		zap.String("user", username),
	)

	s.sendTo(client, WSMessage{
		Type:      "system",
		Content:   "Connected to " + version.GetFullVersion(),
		Timestamp: time.Now().Unix(),
	})

	go s.readPump(client)
	go s.writePump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.removeClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(65536)
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error",
					zap.String("client_id", client.id),
					zap.Error(err),
				)
			}
			return
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			s.sendError(client, "invalid message format")
			continue
		}

		switch wsMsg.Type {
		case "ping":
			s.sendTo(client, WSMessage{Type: "pong", Timestamp: time.Now().Unix()})
		case "invoke":
			go s.invoke(client, wsMsg)
		default:
			s.sendError(client, fmt.Sprintf("unsupported message type %q", wsMsg.Type))
		}
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// invoke runs a command's execute entry point on behalf of a gateway
// client. The synthetic message is authored by the bot in the target channel.
func (s *Server) invoke(client *Client, wsMsg WSMessage) {
	if wsMsg.Command == "" {
		s.sendError(client, "missing command")
		return
	}

	channel := wsMsg.Channel
	if channel == "" {
		if joined := s.transport.JoinedChannels(); len(joined) > 0 {
			channel = joined[0]
		}
	}
	if channel == "" {
		s.sendError(client, "missing channel")
		return
	}

	bot := s.transport.BotUsername()
	msg := &chat.Message{
		ID:        uuid.New().String(),
		Channel:   "#" + chat.NormalizeChannel(channel),
		Text:      wsMsg.Content,
		Author:    chat.User{Username: bot, DisplayName: bot},
		Kind:      chat.KindChannel,
		Self:      true,
		Timestamp: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.dispatcher.Invoke(ctx, wsMsg.Command, msg); err != nil {
		s.sendError(client, err.Error())
		return
	}
	s.sendTo(client, WSMessage{
		Type:      "system",
		Content:   "invoked " + wsMsg.Command,
		Command:   wsMsg.Command,
		Channel:   msg.Channel,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) broadcastEvent(_ context.Context, ev *bus.Event) error {
	data, err := json.Marshal(WSMessage{Type: "event", Event: ev, Timestamp: ev.Timestamp.Unix()})
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		select {
		case client.send <- data:
		default:
			s.logger.Warn("Dropping event for slow client", zap.String("client_id", client.id))
		}
	}
	return nil
}

func (s *Server) sendTo(client *Client, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[client.id]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (s *Server) sendError(client *Client, errMsg string) {
	s.sendTo(client, WSMessage{
		Type:      "error",
		Content:   errMsg,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.id]; ok {
		close(client.send)
		delete(s.clients, client.id)
		s.logger.Info("WebSocket client disconnected",
			zap.String("client_id", client.id),
		)
	}
}

// --- REST Handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connCount := len(s.clients)
	s.mu.RUnlock()

	status := map[string]any{
		"version":     version.Get(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"connections": connCount,
		"bus_metrics": s.bus.GetMetrics(),
		"bot": map[string]any{
			"username": s.transport.BotUsername(),
			"channels": s.transport.JoinedChannels(),
			"prefix":   s.dispatcher.Prefix(),
			"commands": s.dispatcher.Registry().Len(),
		},
	}

	writeJSON(w, status)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make([]map[string]string, 0, len(s.clients))
	for _, client := range s.clients {
		conns = append(conns, map[string]string{
			"id":       client.id,
			"username": client.username,
		})
	}

	writeJSON(w, conns)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	entries := commands.HelpListing(s.dispatcher.Registry(), s.dispatcher.Prefix())
	if entries == nil {
		entries = []commands.HelpEntry{}
	}
	writeJSON(w, map[string]any{
		"prefix":   s.dispatcher.Prefix(),
		"commands": entries,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// --- Auth ---

type subjectKey struct{}

func subjectFrom(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey{}).(string); ok {
		return sub
	}
	return "anonymous"
}

// requireAuth validates a bearer JWT when a secret is configured.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.JWTSecret == "" {
			next(w, r)
			return
		}

		sub, err := s.authenticate(r)
		if err != nil {
			s.logger.Debug("Gateway auth failed", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub)))
	}
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		return "", fmt.Errorf("no token provided")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		sub = "anonymous"
	}
	return sub, nil
}

// IssueToken signs a token for sub, used by `twitchbot gateway token`.
func IssueToken(secret, sub string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("gateway.jwt_secret is not set")
	}
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
