package relay

import (
	"context"
	"fmt"

	"github.com/neboloop/focusrelay/internal/events"
)

// Request is a content → background notification. TabID names the sender for
// diagnostics only; responses are never routed by it.
type Request struct {
	TabID   string
	Message Message
}

// Bus is the asynchronous channel joining the background context to the
// content contexts. Neither side holds a reference to the other.
type Bus struct {
	subject *events.Subject
}

// NewBus wraps an event subject.
func NewBus(subject *events.Subject) *Bus {
	return &Bus{subject: subject}
}

// RequestLastText posts a GET_LAST_TEXT request from tabID to the background.
func (b *Bus) RequestLastText(tabID string) error {
	err := events.Deliver(b.subject, events.TopicBackground, Request{
		TabID:   tabID,
		Message: GetLastText(),
	})
	if err != nil {
		return fmt.Errorf("%w: background: %w", ErrDelivery, err)
	}
	return nil
}

// DeliverToTab posts msg to the content context of tabID. It fails with
// ErrDelivery when that context has not subscribed.
func (b *Bus) DeliverToTab(tabID string, msg Message) error {
	if err := events.Deliver(b.subject, events.TabTopic(tabID), msg); err != nil {
		return fmt.Errorf("%w: tab %s: %w", ErrDelivery, tabID, err)
	}
	return nil
}

// HandleRequests subscribes the background context to content requests.
func (b *Bus) HandleRequests(fn func(Request)) events.Subscription {
	return events.Subscribe(b.subject, events.TopicBackground, func(_ context.Context, req Request) error {
		fn(req)
		return nil
	})
}

// AttachTab subscribes a content context to its inbox. Until this is called
// deliveries to tabID fail.
func (b *Bus) AttachTab(tabID string, fn func(Message)) events.Subscription {
	return events.Subscribe(b.subject, events.TabTopic(tabID), func(_ context.Context, msg Message) error {
		fn(msg)
		return nil
	})
}

// TabAttached reports whether a content context listens for tabID.
func (b *Bus) TabAttached(tabID string) bool {
	return b.subject.HasSubscribers(events.TabTopic(tabID))
}
