// Package socket is the background context's websocket connection to the
// local text service.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/neboloop/focusrelay/internal/relay"
)

// ErrNotOpen is returned by Send while the connection is not open. The
// message is dropped, never queued.
var ErrNotOpen = fmt.Errorf("%w: connection not open", relay.ErrConnection)

// State is the connection state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ReconnectPolicy bounds automatic reconnection after the connection drops.
// A zero MaxAttempts disables reconnection: Closed and Errored are terminal.
type ReconnectPolicy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// JitterPercent randomises each delay by up to this many percent.
	JitterPercent uint64
}

func (p ReconnectPolicy) enabled() bool {
	return p.MaxAttempts > 0
}

func (p ReconnectPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	return retry.WithMaxRetries(p.MaxAttempts, b)
}

// Client owns one websocket connection. Inbound text frames are parsed and
// handed to the OnMessage handler from the read loop goroutine.
type Client struct {
	url       string
	dialer    *websocket.Dialer
	reconnect ReconnectPolicy
	writeWait time.Duration

	conn  *websocket.Conn
	state State

	onMessage func(relay.Message)
	onState   func(State)

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	mu      sync.RWMutex
	writeMu sync.Mutex // serializes writes
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithReconnect enables reconnection with the given policy.
func WithReconnect(p ReconnectPolicy) Option {
	return func(c *Client) { c.reconnect = p }
}

// WithWriteTimeout bounds a single frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeWait = d }
}

// New creates a client for url. Nothing is dialled until Connect.
func New(url string, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:       url,
		dialer:    websocket.DefaultDialer,
		writeWait: 5 * time.Second,
		state:     StateConnecting,
		ctx:       ctx,
		cancel:    cancel,
		logger:    slog.Default().With("component", "socket"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the service endpoint.
func (c *Client) URL() string { return c.url }

// OnMessage registers the handler for parsed inbound messages.
func (c *Client) OnMessage(fn func(relay.Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnStateChange registers a callback invoked on every state transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect makes one dial attempt and starts the read loop. On failure the
// client is Errored; with a reconnect policy, further attempts continue in the
// background.
func (c *Client) Connect(ctx context.Context) error {
	err := c.dial(ctx)
	if err == nil {
		return nil
	}
	c.logger.Warn("connection failed", "url", c.url, "error", err)
	if c.reconnect.enabled() {
		go c.reconnectLoop()
	}
	return err
}

// Send writes msg as one text frame. It fails with ErrNotOpen unless the
// connection is open.
func (c *Client) Send(msg relay.Message) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()
	if state != StateOpen || conn == nil {
		c.logger.Debug("send while not open, dropped", "type", msg.String(), "state", state)
		return ErrNotOpen
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write: %v", relay.ErrConnection, err)
	}
	return nil
}

// Close shuts the connection down and stops reconnection. It is safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		c.setState(StateClosed)
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := conn.Close()
	c.setState(StateClosed)
	return err
}

// --- Internal ---

func (c *Client) dial(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return fmt.Errorf("%w: client closed", relay.ErrConnection)
	}
	c.setState(StateConnecting)

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setState(StateErrored)
		return fmt.Errorf("%w: dial %s: %v", relay.ErrConnection, c.url, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("%w: client closed", relay.ErrConnection)
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateOpen)
	c.logger.Info("connected", "url", c.url)

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(conn, err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := relay.ParseMessage(data)
		if err != nil {
			c.logger.Debug("discarding frame", "error", err)
			continue
		}

		c.mu.RLock()
		fn := c.onMessage
		c.mu.RUnlock()
		if fn != nil {
			fn(msg)
		}
	}
}

func (c *Client) connectionLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	closed := c.closed
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	if closed {
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Warn("connection closed by service", "code", ce.Code, "reason", ce.Text)
		c.setState(StateClosed)
	} else {
		c.logger.Warn("connection lost", "error", fmt.Errorf("%w: %v", relay.ErrConnection, err))
		c.setState(StateErrored)
	}

	if c.reconnect.enabled() {
		go c.reconnectLoop()
	}
}

func (c *Client) reconnectLoop() {
	attempt := 0
	err := retry.Do(c.ctx, c.reconnect.backoff(), func(ctx context.Context) error {
		attempt++
		if err := c.dial(ctx); err != nil {
			c.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	switch {
	case err == nil:
		c.logger.Info("reconnected", "attempts", attempt)
	case c.ctx.Err() != nil:
	default:
		c.logger.Error("giving up reconnecting", "attempts", attempt, "error", err)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}
