package textservice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neboloop/focusrelay/internal/relay"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 32768 // 32KB
)

// ErrClientClosed is returned when sending to a disconnected client.
var ErrClientClosed = errors.New("client connection closed")

// Client is one connected relay.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub

	// Buffered channel of outbound messages.
	send chan []byte

	closed   bool
	closedMu sync.Mutex
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:   "client-" + uuid.New().String()[:8],
		conn: conn,
		hub:  hub,
		send: make(chan []byte, 64),
	}
}

// Send queues msg for the client. A full buffer drops the message.
func (c *Client) Send(msg relay.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

func (c *Client) close() {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.closedMu.Unlock()
}

// readPump reads requests until the connection ends.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("client read error", "client", c.ID, "error", err)
			}
			return
		}

		msg, err := relay.ParseMessage(data)
		if err != nil {
			c.hub.logger.Debug("discarding frame", "client", c.ID, "error", err)
			continue
		}
		c.hub.handle(c, msg)
	}
}

// writePump pumps queued messages to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// RequestHandler answers one parsed client frame.
type RequestHandler func(c *Client, msg relay.Message)

// Hub tracks connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	handler RequestHandler
	logger  *slog.Logger

	onConnect    func(id string)
	onDisconnect func(id string)
}

// NewHub returns an empty hub dispatching client frames to handler.
func NewHub(handler RequestHandler, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default().With("component", "hub")
	}
	return &Hub{
		clients: make(map[string]*Client),
		handler: handler,
		logger:  logger,
	}
}

// OnConnect registers a callback for new clients.
func (h *Hub) OnConnect(fn func(id string)) {
	h.mu.Lock()
	h.onConnect = fn
	h.mu.Unlock()
}

// OnDisconnect registers a callback for departed clients.
func (h *Hub) OnDisconnect(fn func(id string)) {
	h.mu.Lock()
	h.onDisconnect = fn
	h.mu.Unlock()
}

// Serve registers conn and starts its pumps.
func (h *Hub) Serve(conn *websocket.Conn) *Client {
	c := newClient(conn, h)

	h.mu.Lock()
	h.clients[c.ID] = c
	onConnect := h.onConnect
	h.mu.Unlock()

	h.logger.Info("client connected", "client", c.ID, "remote", conn.RemoteAddr().String())
	if onConnect != nil {
		onConnect(c.ID)
	}

	go c.writePump()
	go c.readPump()
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	onDisconnect := h.onDisconnect
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.logger.Info("client disconnected", "client", c.ID)
	if onDisconnect != nil {
		onDisconnect(c.ID)
	}
}

func (h *Hub) handle(c *Client, msg relay.Message) {
	if h.handler != nil {
		h.handler(c, msg)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client and returns how many accepted it.
func (h *Hub) Broadcast(msg relay.Message) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if err := c.Send(msg); err != nil {
			h.logger.Warn("broadcast failed", "client", c.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Shutdown closes every client connection.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	onDisconnect := h.onDisconnect
	h.mu.Unlock()

	// The read pumps find their clients gone, so the disconnects are
	// reported here.
	for _, c := range clients {
		c.close()
		h.logger.Info("client disconnected", "client", c.ID, "reason", "shutdown")
		if onDisconnect != nil {
			onDisconnect(c.ID)
		}
	}
	if len(clients) == 0 {
		return
	}
	// Give write pumps a moment to flush the close frames.
	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
	}
}
