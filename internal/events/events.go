// Package events is the message channel between isolated contexts. Each
// context subscribes to its own topic; senders never hold a reference to the
// receiver, only the topic name.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neboloop/focusrelay/internal/crashlog"
)

// ErrNoSubscribers is returned by Deliver when nobody listens on the topic.
var ErrNoSubscribers = errors.New("no subscribers for topic")

// ErrClosed is returned when emitting on a completed Subject.
var ErrClosed = errors.New("subject closed")

// HandlerFunc is the function called when an event is emitted.
type HandlerFunc func(context.Context, any) error

// SubjectOption configures a Subject
type SubjectOption func(*subjectConfig)

type subjectConfig struct {
	bufferSize  int
	emitTimeout time.Duration
	logger      *slog.Logger
}

// WithBufferSize sets the event channel buffer size
func WithBufferSize(size int) SubjectOption {
	return func(cfg *subjectConfig) {
		cfg.bufferSize = size
	}
}

// WithEmitTimeout bounds how long Emit waits for room in the buffer.
func WithEmitTimeout(d time.Duration) SubjectOption {
	return func(cfg *subjectConfig) {
		cfg.emitTimeout = d
	}
}

// WithLogger sets a structured logger for event system errors
func WithLogger(logger *slog.Logger) SubjectOption {
	return func(cfg *subjectConfig) {
		cfg.logger = logger
	}
}

// Emit emits an event to the given topic. Delivery happens later on the
// subject's event loop.
func Emit[T any](subject *Subject, topic string, value T) error {
	if atomic.LoadInt32(&subject.closed) == 1 {
		return ErrClosed
	}

	evt := event{
		topic:   topic,
		message: value,
	}

	select {
	case subject.events <- evt:
		return nil
	case <-subject.shutdown:
		return ErrClosed
	case <-time.After(subject.config.emitTimeout):
		return fmt.Errorf("emit on %s: buffer full", topic)
	}
}

// Deliver is Emit for point-to-point topics: it fails fast with
// ErrNoSubscribers when nobody listens, instead of silently dropping.
func Deliver[T any](subject *Subject, topic string, value T) error {
	if !subject.HasSubscribers(topic) {
		return fmt.Errorf("%w: %s", ErrNoSubscribers, topic)
	}
	return Emit(subject, topic, value)
}

// Subscribe subscribes a typed handler to the given topic.
// A Subscription is returned that can be used to unsubscribe from the topic.
func Subscribe[T any](subject *Subject, topic string, handler func(context.Context, T) error) Subscription {
	wrappedHandler := HandlerFunc(func(ctx context.Context, data any) error {
		if typed, ok := data.(T); ok {
			return handler(ctx, typed)
		}
		return fmt.Errorf("type assertion failed for %T, expected %T", data, *new(T))
	})

	subID := atomic.AddInt64(&subject.nextSubID, 1)

	sub := Subscription{
		Topic:   topic,
		Handler: wrappedHandler,
		ID:      fmt.Sprintf("%s-%d", topic, subID),
	}

	subject.addSubscription(sub)

	sub.Unsubscribe = func() {
		subject.removeSubscription(sub.ID)
	}

	return sub
}

// Complete shuts down the event system, stopping all goroutines and cleaning up resources.
// This function is idempotent and safe to call multiple times.
func Complete(s *Subject) {
	if s == nil {
		return
	}

	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		close(s.shutdown)

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
}

type event struct {
	topic   string
	message any
}

// Subscription represents a handler subscribed to a specific topic.
type Subscription struct {
	Topic       string
	Handler     HandlerFunc
	ID          string
	Unsubscribe func()
}

type subscriberMap map[string]map[string]Subscription

// Subject fans events out to topic subscribers from a single event loop, so
// handlers on one Subject never run concurrently with each other.
type Subject struct {
	subscribers atomic.Pointer[subscriberMap]
	nextSubID   int64
	eventCount  int64

	events   chan event
	shutdown chan struct{}

	config subjectConfig

	closed int32
	wg     sync.WaitGroup
}

// NewSubject creates a new Subject with optional configuration.
func NewSubject(opts ...SubjectOption) *Subject {
	cfg := subjectConfig{
		bufferSize:  512,
		emitTimeout: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Subject{
		events:   make(chan event, cfg.bufferSize),
		shutdown: make(chan struct{}),
		config:   cfg,
	}

	emptySubscribers := make(subscriberMap)
	s.subscribers.Store(&emptySubscribers)

	s.wg.Add(1)
	go s.eventLoop()
	return s
}

// HasSubscribers reports whether at least one handler listens on topic.
func (s *Subject) HasSubscribers(topic string) bool {
	subs := s.subscribers.Load()
	return len((*subs)[topic]) > 0
}

// EventCount returns the number of events processed so far.
func (s *Subject) EventCount() int64 {
	return atomic.LoadInt64(&s.eventCount)
}

func (s *Subject) eventLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.shutdown:
			return
		case evt := <-s.events:
			atomic.AddInt64(&s.eventCount, 1)

			subs := s.subscribers.Load()
			for _, sub := range (*subs)[evt.topic] {
				s.deliver(sub, evt)
			}
		}
	}
}

// addSubscription adds a subscription using copy-on-write
func (s *Subject) addSubscription(sub Subscription) {
	for {
		oldSubs := s.subscribers.Load()
		newSubs := copySubscribers(*oldSubs)

		if _, ok := newSubs[sub.Topic]; !ok {
			newSubs[sub.Topic] = make(map[string]Subscription)
		}
		newSubs[sub.Topic][sub.ID] = sub

		if s.subscribers.CompareAndSwap(oldSubs, &newSubs) {
			return
		}
	}
}

// removeSubscription removes a subscription using copy-on-write
func (s *Subject) removeSubscription(subID string) {
	for {
		oldSubs := s.subscribers.Load()
		newSubs := copySubscribers(*oldSubs)

		found := false
		for topic, topicSubs := range newSubs {
			if _, ok := topicSubs[subID]; ok {
				delete(topicSubs, subID)
				if len(topicSubs) == 0 {
					delete(newSubs, topic)
				}
				found = true
				break
			}
		}

		if !found {
			return
		}

		if s.subscribers.CompareAndSwap(oldSubs, &newSubs) {
			return
		}
	}
}

func copySubscribers(original subscriberMap) subscriberMap {
	cp := make(subscriberMap, len(original))
	for topic, topicSubs := range original {
		cp[topic] = make(map[string]Subscription, len(topicSubs))
		for id, sub := range topicSubs {
			cp[topic][id] = sub
		}
	}
	return cp
}

// deliver runs one handler inline on the event loop. Handlers are expected to
// hand work off to their own context quickly.
func (s *Subject) deliver(sub Subscription, evt event) {
	defer crashlog.Recover("events", "topic", evt.topic)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sub.Handler(ctx, evt.message); err != nil && s.config.logger != nil {
		s.config.logger.Debug("event handler error",
			"topic", evt.topic,
			"error", err,
			"subscription_id", sub.ID)
	}
}
