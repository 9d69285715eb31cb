package alerts

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

const (
	TypeWelcome = "WELCOME"
	TypeAlert   = "DROWSY_ALERT"
	TypePing    = "PING"
	TypePong    = "PONG"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 256
)

type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Observer is notified about connection and delivery counts.
type Observer interface {
	IncrementWebSocketConnections()
	DecrementWebSocketConnections()
	IncrementWebSocketMessages()
	IncrementWebSocketErrors()
}

type client struct {
	conn *websocket.Conn
	id   string
	send chan Message
}

// Hub fans drowsy alerts out to connected websocket clients on this replica.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	closed   bool
	upgrader websocket.Upgrader
	observer Observer
	logger   *slog.Logger
}

func NewHub(observer Observer, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		observer: observer,
		logger:   slog.Default().With("component", "alerts"),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		if h.observer != nil {
			h.observer.IncrementWebSocketErrors()
		}
		return
	}

	c := &client{
		conn: conn,
		id:   r.URL.Query().Get("clientId"),
		send: make(chan Message, sendBuffer),
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	c.send <- Message{
		Type:      TypeWelcome,
		ClientID:  c.id,
		Timestamp: time.Now().Unix(),
		Payload: map[string]string{
			"message": "Subscribed to drowsiness alerts",
		},
	}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if old, ok := h.clients[c.id]; ok {
		// same clientId reconnecting; the old connection is dropped
		close(old.send)
	} else if h.observer != nil {
		h.observer.IncrementWebSocketConnections()
	}
	h.clients[c.id] = c
	h.logger.Info("websocket client connected", "client_id", c.id)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	if h.observer != nil {
		h.observer.DecrementWebSocketConnections()
	}
	h.logger.Info("websocket client disconnected", "client_id", c.id)
}

// readPump only handles PING and keeps the read deadline moving; the feed is one-way.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
		if msg.Type == TypePing {
			h.deliver(c, Message{Type: TypePong, ClientID: c.id, Timestamp: time.Now().Unix()})
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				if h.observer != nil {
					h.observer.IncrementWebSocketErrors()
				}
				return
			}
			if h.observer != nil {
				h.observer.IncrementWebSocketMessages()
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) deliver(c *client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Broadcast queues the alert for every client. Clients with a full buffer miss it.
func (h *Hub) Broadcast(alert models.DrowsyAlert) {
	msg := Message{Type: TypeAlert, Payload: alert, Timestamp: alert.Timestamp.Unix()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("alert dropped for slow client", "client_id", id, "session_id", alert.SessionID)
		}
	}
}

// Publish satisfies the ledger's alert publisher for single-replica deployments.
func (h *Hub) Publish(_ context.Context, alert models.DrowsyAlert) error {
	h.Broadcast(alert)
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
		if h.observer != nil {
			h.observer.DecrementWebSocketConnections()
		}
	}
	h.logger.Info("websocket clients closed")
}
