// Package relay mirrors the live session to local clients over a websocket.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/C23038/URITOMO-Frontend/internal/handler/stream"
	sessionService "github.com/C23038/URITOMO-Frontend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Session is the live session seen by relay clients.
type Session interface {
	stream.Source
	SendText(text string) error
	UpdateProfile(name string) error
}

type WebSocketHandler struct {
	session  Session
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(session Session, log *slog.Logger) *WebSocketHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketHandler{
		session: session,
		log:     log.With("component", "relay"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type textMessage struct {
	Text string `json:"text"`
}

type profileMessage struct {
	Name string `json:"name"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// client serialises writes; updates and replies come from different goroutines.
type client struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *client) send(msgType string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, sessionID: h.session.Session().ID}
	h.log.Debug("relay client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	if err := c.send("snapshot", stream.Snapshot{
		Session:      h.session.Session(),
		State:        h.session.ConnectionState(),
		LocalName:    h.session.LocalName(),
		Messages:     h.session.Messages(),
		Participants: h.session.Participants(),
	}); err != nil {
		return
	}

	go h.forward(ctx, cancel, c, updates)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("relay read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(c, &msg)
	}
}

// forward pushes session updates and keeps the socket alive until ctx ends or the session closes.
func (h *WebSocketHandler) forward(ctx context.Context, cancel context.CancelFunc, c *client, updates <-chan sessionService.Update) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				_ = c.send("closed", nil)
				cancel()
				_ = c.conn.Close()
				return
			}
			if err := c.send(string(u.Kind), u); err != nil {
				cancel()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				cancel()
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(c *client, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var payload textMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			h.sendError(c, "invalid text payload")
			return
		}
		if err := h.session.SendText(payload.Text); err != nil {
			h.sendError(c, err.Error())
			return
		}
		_ = c.send("sent", map[string]string{"text": payload.Text})
	case "profile":
		var payload profileMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			h.sendError(c, "invalid profile payload")
			return
		}
		if err := h.session.UpdateProfile(payload.Name); err != nil {
			h.sendError(c, err.Error())
		}
	default:
		h.sendError(c, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) sendError(c *client, message string) {
	if err := c.send("error", map[string]string{"message": message}); err != nil {
		h.log.Debug("write error failed", "error", err)
	}
}
