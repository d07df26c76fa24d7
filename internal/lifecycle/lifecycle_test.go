package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// isolate swaps in a fresh global manager for the duration of a test.
func isolate(t *testing.T) {
	t.Helper()
	prev := global
	global = NewManager()
	t.Cleanup(func() { global = prev })
}

func TestManagerDispatchesInOrder(t *testing.T) {
	m := NewManager()
	var got []string
	m.On(EventShutdownStarted, func(Event, any) { got = append(got, "first") })
	m.On(EventShutdownStarted, func(Event, any) { got = append(got, "second") })
	m.On(EventRelayStarted, func(Event, any) { got = append(got, "other") })

	m.Emit(EventShutdownStarted, nil)
	assert.Equal(t, []string{"first", "second"}, got)

	m.Emit(EventShutdownComplete, nil)
	assert.Len(t, got, 2)
}

func TestTypedHelpers(t *testing.T) {
	isolate(t)

	var attached, detached []string
	var states []string
	OnTabAttached(func(d TabEventData) { attached = append(attached, d.TabID) })
	OnTabDetached(func(d TabEventData) { detached = append(detached, d.TabID) })
	OnSocketState(func(d SocketEventData) { states = append(states, d.State) })

	Emit(EventTabAttached, TabEventData{TabID: "A"})
	Emit(EventTabAttached, "not tab data")
	Emit(EventTabDetached, TabEventData{TabID: "A"})
	Emit(EventSocketOpen, SocketEventData{State: "open"})
	Emit(EventSocketClosed, SocketEventData{State: "errored"})

	assert.Equal(t, []string{"A"}, attached)
	assert.Equal(t, []string{"A"}, detached)
	assert.Equal(t, []string{"open", "errored"}, states)
}

func TestOnShutdown(t *testing.T) {
	isolate(t)

	calls := 0
	OnShutdown(func() { calls++ })
	Emit(EventShutdownComplete, nil)
	assert.Equal(t, 0, calls)
	Emit(EventShutdownStarted, nil)
	assert.Equal(t, 1, calls)
}
