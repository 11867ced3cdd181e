package eventsocket

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	"homehub/internal/core/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errMessageRateExceeded = errors.New("message rate exceeded")

// WebSocketServer pushes relay events to connected clients. Each
// connection gets its own relay subscription, so the per-user scoping
// the relay enforces carries straight through to the socket.
type WebSocketServer struct {
	relay       ports.EventRelay
	authService services.AuthService

	upgrader websocket.Upgrader

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	limits       MessageLimits

	mu          sync.Mutex
	connections int

	logger *zap.SugaredLogger
}

// clientMessage is what a connected client may send. Ping keeps the
// connection alive from environments without ws ping support; filter
// narrows delivery to the named providers.
type clientMessage struct {
	Type      string   `json:"type"`
	Providers []string `json:"providers,omitempty"`
}

type serverMessage struct {
	Type  string        `json:"type"`
	Event *domain.Event `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}

// MessageLimits bounds what one client may send. Zero values disable
// the corresponding limit.
type MessageLimits struct {
	PerSecond float64
	Burst     int
	MaxBytes  int64
}

func NewWebSocketServer(
	relay ports.EventRelay,
	authService services.AuthService,
	allowedOrigins []string,
	pingInterval, pongTimeout time.Duration,
	limits MessageLimits,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	return &WebSocketServer{
		relay:       relay,
		authService: authService,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		writeTimeout: 10 * time.Second,
		limits:       limits,
		logger:       logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, err := s.relay.Subscribe(claims.UserID)
	if err != nil {
		s.logger.Errorw("relay subscribe failed", "user_id", claims.UserID, "error", err)
		return
	}
	defer s.relay.Unsubscribe(sub.Token)

	s.mu.Lock()
	s.connections++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connections--
		s.mu.Unlock()
	}()

	s.logger.Infow("event feed connected", "user_id", claims.UserID, "token", sub.Token)

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})
	if s.limits.MaxBytes > 0 {
		conn.SetReadLimit(s.limits.MaxBytes)
	}

	// writeMu serializes frames on this connection: the write loop and
	// the read pump's pong reply share it, and gorilla permits a single
	// writer.
	var writeMu sync.Mutex
	writeJSON := func(msg serverMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		return conn.WriteJSON(msg)
	}

	// filterChan carries provider filters from the read pump to the
	// write loop, which owns all delivery decisions.
	filterChan := make(chan map[domain.Provider]bool, 1)
	errorChan := make(chan error, 1)

	go s.readPump(conn, writeJSON, filterChan, errorChan)

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	var filter map[domain.Provider]bool

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if filter != nil && !filter[event.Provider] {
				continue
			}
			if err := writeJSON(serverMessage{Type: "event", Event: event}); err != nil {
				s.logger.Infow("event write failed, closing feed",
					"user_id", claims.UserID, "error", err)
				return
			}

		case filter = <-filterChan:

		case <-pingTicker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("event feed read error", "user_id", claims.UserID, "error", err)
			}
			s.logger.Infow("event feed disconnected", "user_id", claims.UserID)
			return
		}
	}
}

func (s *WebSocketServer) readPump(conn *websocket.Conn, writeJSON func(serverMessage) error, filterChan chan map[domain.Provider]bool, errorChan chan<- error) {
	var limiter *rate.Limiter
	if s.limits.PerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.limits.PerSecond), s.limits.Burst)
	}

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			errorChan <- err
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))

		if limiter != nil && !limiter.Allow() {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "message rate exceeded"),
				time.Now().Add(s.writeTimeout))
			errorChan <- errMessageRateExceeded
			return
		}

		switch msg.Type {
		case "ping":
			writeJSON(serverMessage{Type: "pong"})
		case "filter":
			filter := make(map[domain.Provider]bool, len(msg.Providers))
			for _, p := range msg.Providers {
				provider := domain.Provider(p)
				if provider.Valid() {
					filter[provider] = true
				}
			}
			if len(filter) == 0 {
				filter = nil
			}
			// Replace any unconsumed filter.
			select {
			case <-filterChan:
			default:
			}
			filterChan <- filter
		}
	}
}

// authenticate accepts the token as a query parameter or bearer header.
// Stream-scoped tokens are rejected; the event feed is part of the
// general API surface.
func (s *WebSocketServer) authenticate(r *http.Request) (*services.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if parts := strings.Split(r.Header.Get("Authorization"), " "); len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return nil, services.ErrUnauthorized
	}
	return s.authService.ValidateToken(token)
}

// ConnectionCount reports live feed connections, for health reporting.
func (s *WebSocketServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}
