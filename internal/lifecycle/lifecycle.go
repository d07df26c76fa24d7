// Package lifecycle provides event hooks for relay startup and shutdown.
package lifecycle

import (
	"sync"

	"github.com/neboloop/focusrelay/internal/logging"
)

// Event types for lifecycle hooks
type Event string

const (
	// Process lifecycle events
	EventRelayStarted     Event = "relay_started"
	EventServiceStarted   Event = "service_started"
	EventShutdownStarted  Event = "shutdown_started"
	EventShutdownComplete Event = "shutdown_complete"

	// Socket state events
	EventSocketOpen   Event = "socket_open"
	EventSocketClosed Event = "socket_closed"

	// Content context events
	EventTabAttached Event = "tab_attached"
	EventTabDetached Event = "tab_detached"

	// Text service events
	EventClientConnected    Event = "client_connected"
	EventClientDisconnected Event = "client_disconnected"
	EventNoteUpdated        Event = "note_updated"
)

// Handler is a function that handles a lifecycle event
type Handler func(event Event, data any)

// Manager manages lifecycle event subscriptions and dispatching
type Manager struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{handlers: make(map[Event][]Handler)}
}

// Global lifecycle manager
var global = NewManager()

// On registers a handler for a lifecycle event
func On(event Event, handler Handler) {
	global.On(event, handler)
}

// Emit dispatches an event to all registered handlers
func Emit(event Event, data any) {
	global.Emit(event, data)
}

// On registers a handler for a lifecycle event
func (m *Manager) On(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Emit dispatches an event to all registered handlers
func (m *Manager) Emit(event Event, data any) {
	m.mu.RLock()
	handlers := m.handlers[event]
	m.mu.RUnlock()

	logging.Debugf("[lifecycle] Emitting event: %s", event)
	for _, h := range handlers {
		// Run handlers synchronously (they can spawn goroutines if needed)
		h(event, data)
	}
}

// TabEventData identifies a tab in attach/detach events
type TabEventData struct {
	TabID string
	URL   string
}

// SocketEventData carries a socket state change
type SocketEventData struct {
	URL   string
	State string
}

// OnTabAttached is a convenience function to register a tab attached handler
func OnTabAttached(handler func(data TabEventData)) {
	On(EventTabAttached, func(e Event, data any) {
		if d, ok := data.(TabEventData); ok {
			handler(d)
		}
	})
}

// OnTabDetached is a convenience function to register a tab detached handler
func OnTabDetached(handler func(data TabEventData)) {
	On(EventTabDetached, func(e Event, data any) {
		if d, ok := data.(TabEventData); ok {
			handler(d)
		}
	})
}

// OnSocketState registers one handler for both socket state events
func OnSocketState(handler func(data SocketEventData)) {
	fn := func(e Event, data any) {
		if d, ok := data.(SocketEventData); ok {
			handler(d)
		}
	}
	On(EventSocketOpen, fn)
	On(EventSocketClosed, fn)
}

// OnShutdown is a convenience function to register a shutdown handler
func OnShutdown(handler func()) {
	On(EventShutdownStarted, func(e Event, data any) {
		handler()
	})
}
