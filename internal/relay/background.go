package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neboloop/focusrelay/internal/events"
)

// ErrNoActiveTab is returned by a TabLocator when no window has an active tab.
var ErrNoActiveTab = errors.New("no active tab")

// Conn is the background's duplex channel to the local service.
type Conn interface {
	Send(Message) error
	OnMessage(func(Message))
}

// TabLocator resolves the active tab of the focused window. Implementations
// must resolve on every call; the result is never cached by the caller.
type TabLocator interface {
	ActiveTab(ctx context.Context) (string, error)
}

// Delivery records one delivery attempt made by the tab relay.
type Delivery struct {
	TabID   string
	Message Message
	Err     error
}

// Background is the background context: it answers content requests by
// writing to the service, and relays every inbound frame to the active tab.
// All work happens on the goroutine running Run.
type Background struct {
	conn   Conn
	tabs   TabLocator
	bus    *Bus
	logger *slog.Logger

	resolveTimeout time.Duration
	onDelivery     func(Delivery)

	inbound  chan Message
	requests chan Request
	sub      events.Subscription
	done     chan struct{}
}

// BackgroundOption configures a Background.
type BackgroundOption func(*Background)

// WithBackgroundLogger sets a custom logger.
func WithBackgroundLogger(l *slog.Logger) BackgroundOption {
	return func(b *Background) { b.logger = l }
}

// WithResolveTimeout bounds each active-tab lookup.
func WithResolveTimeout(d time.Duration) BackgroundOption {
	return func(b *Background) { b.resolveTimeout = d }
}

// WithDeliveryHook observes every delivery attempt, successful or not.
func WithDeliveryHook(fn func(Delivery)) BackgroundOption {
	return func(b *Background) { b.onDelivery = fn }
}

// NewBackground wires the background context. Call Run to start it.
func NewBackground(conn Conn, tabs TabLocator, bus *Bus, opts ...BackgroundOption) *Background {
	b := &Background{
		conn:           conn,
		tabs:           tabs,
		bus:            bus,
		logger:         slog.Default().With("component", "background"),
		resolveTimeout: 3 * time.Second,
		inbound:        make(chan Message, 256),
		requests:       make(chan Request, 256),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	// Subscribe before anything can connect: traffic that arrives ahead of
	// Run waits in the buffers.
	b.sub = bus.HandleRequests(func(req Request) {
		select {
		case b.requests <- req:
		case <-b.done:
		}
	})
	conn.OnMessage(func(msg Message) {
		select {
		case b.inbound <- msg:
		case <-b.done:
		}
	})
	return b
}

// Run processes bus and connection traffic until ctx is cancelled. A
// Background runs once.
func (b *Background) Run(ctx context.Context) error {
	defer b.sub.Unsubscribe()
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.inbound:
			_ = b.Relay(ctx, msg)
		case req := <-b.requests:
			b.forward(req)
		}
	}
}

// Relay makes exactly one attempt to deliver msg to the content context of
// the tab that is active right now. Failures are logged and returned; the
// message is never retried or queued.
func (b *Background) Relay(ctx context.Context, msg Message) error {
	tabID, err := b.resolveActiveTab(ctx)
	if err == nil {
		err = b.bus.DeliverToTab(tabID, msg)
	}

	if b.onDelivery != nil {
		b.onDelivery(Delivery{TabID: tabID, Message: msg, Err: err})
	}

	if err != nil {
		b.logger.Warn("delivery failed, message dropped", "type", msg.String(), "tab", tabID, "error", err)
		return err
	}
	b.logger.Debug("delivered", "type", msg.String(), "tab", tabID)
	return nil
}

func (b *Background) resolveActiveTab(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.resolveTimeout)
	defer cancel()

	tabID, err := b.tabs.ActiveTab(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if tabID == "" {
		return "", fmt.Errorf("%w: %w", ErrDelivery, ErrNoActiveTab)
	}
	return tabID, nil
}

// forward turns a content request into one outbound frame.
func (b *Background) forward(req Request) {
	if req.Message.Type != TypeGetLastText {
		b.logger.Debug("ignoring request", "type", req.Message.String(), "tab", req.TabID)
		return
	}
	if err := b.conn.Send(GetLastText()); err != nil {
		b.logger.Warn("request dropped", "tab", req.TabID, "error", err)
		return
	}
	b.logger.Debug("requested last text", "tab", req.TabID)
}
