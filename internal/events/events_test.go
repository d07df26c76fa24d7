package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndEmit(t *testing.T) {
	s := NewSubject()
	defer Complete(s)

	got := make(chan string, 1)
	sub := Subscribe(s, "greet", func(_ context.Context, msg string) error {
		got <- msg
		return nil
	})
	defer sub.Unsubscribe()

	require.NoError(t, Emit(s, "greet", "hello"))

	select {
	case msg := <-got:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEmitPreservesOrder(t *testing.T) {
	s := NewSubject()
	defer Complete(s)

	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})
	Subscribe(s, "n", func(_ context.Context, n int) error {
		mu.Lock()
		seen = append(seen, n)
		if len(seen) == 50 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	for i := 0; i < 50; i++ {
		require.NoError(t, Emit(s, "n", i))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		assert.Equal(t, i, n)
	}
}

func TestDeliverWithoutSubscribers(t *testing.T) {
	s := NewSubject()
	defer Complete(s)

	err := Deliver(s, TabTopic("missing"), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSubscribers))
}

func TestUnsubscribeRemovesTopic(t *testing.T) {
	s := NewSubject()
	defer Complete(s)

	sub := Subscribe(s, TabTopic("a"), func(context.Context, string) error { return nil })
	assert.True(t, s.HasSubscribers(TabTopic("a")))

	sub.Unsubscribe()
	assert.False(t, s.HasSubscribers(TabTopic("a")))
	// Second unsubscribe is a no-op.
	sub.Unsubscribe()
}

func TestEmitAfterComplete(t *testing.T) {
	s := NewSubject()
	Complete(s)
	Complete(s)

	assert.ErrorIs(t, Emit(s, "t", 1), ErrClosed)
}

func TestTypeMismatchIsNotDelivered(t *testing.T) {
	s := NewSubject()
	defer Complete(s)

	called := make(chan struct{}, 1)
	Subscribe(s, "typed", func(context.Context, int) error {
		called <- struct{}{}
		return nil
	})

	require.NoError(t, Emit(s, "typed", "not an int"))
	require.NoError(t, Emit(s, "typed", 7))

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("int event not delivered")
	}
	assert.Eventually(t, func() bool { return s.EventCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, called, 0)
}
