package sinks

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qiboda/atom-sub003/logging"
)

// WebSocket broadcasts every event as a JSON text frame to connected
// debug clients. Slow or broken clients are disconnected.
type WebSocket struct {
	upgrader   websocket.Upgrader
	writeWait  time.Duration
	maxClients int
	logger     *log.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

// NewWebSocket constructs a broadcast sink from cfg.
func NewWebSocket(cfg logging.WebSocketConfig, logger *log.Logger) *WebSocket {
	if logger == nil {
		logger = log.Default()
	}
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}
	return &WebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		writeWait:  writeWait,
		maxClients: cfg.MaxClients,
		logger:     logger,
		clients:    make(map[*websocket.Conn]struct{}),
	}
}

// Handle upgrades the request and keeps the subscriber registered until the
// peer disconnects.
func (s *WebSocket) Handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	full := s.closed || (s.maxClients > 0 && len(s.clients) >= s.maxClients)
	s.mu.Unlock()
	if full {
		http.Error(w, "event feed unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("event feed upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.drop(conn)
			return
		}
	}
}

// Clients reports the number of connected subscribers.
func (s *WebSocket) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *WebSocket) Write(event logging.Event) error {
	data, err := json.Marshal(feedRecord{
		Type:     event.Type,
		Tick:     event.Tick,
		Time:     event.Time.UnixMilli(),
		Severity: event.Severity.String(),
		Category: event.Category,
		Actor:    event.Actor,
		Targets:  event.Targets,
		Payload:  event.Payload,
		Extra:    event.Extra,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(s.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.drop(conn)
		}
	}
	return nil
}

// Close sends a close frame to every subscriber and rejects new ones.
func (s *WebSocket) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := s.clients
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown")
	for conn := range conns {
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(s.writeWait))
		conn.Close()
	}
	return nil
}

func (s *WebSocket) drop(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()
	if ok {
		conn.Close()
	}
}

type feedRecord struct {
	Type     logging.EventType   `json:"type"`
	Tick     uint64              `json:"tick"`
	Time     int64               `json:"time"`
	Severity string              `json:"severity"`
	Category string              `json:"category,omitempty"`
	Actor    logging.EntityRef   `json:"actor"`
	Targets  []logging.EntityRef `json:"targets,omitempty"`
	Payload  any                 `json:"payload,omitempty"`
	Extra    map[string]any      `json:"extra,omitempty"`
}
