package content

import (
	"context"
	"sync"
)

// fakeElement records mutations and dispatched events.
type fakeElement struct {
	mu     sync.Mutex
	info   ElementInfo
	value  string
	text   string
	calls  []string
	events []Event
}

func (e *fakeElement) Describe(context.Context) (ElementInfo, error) {
	return e.info, nil
}

func (e *fakeElement) SetValue(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = text
	e.calls = append(e.calls, "value")
	return nil
}

func (e *fakeElement) SetText(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
	e.calls = append(e.calls, "text")
	return nil
}

func (e *fakeElement) Dispatch(_ context.Context, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *fakeElement) snapshot() (value, text string, calls []string, events []Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.text, append([]string(nil), e.calls...), append([]Event(nil), e.events...)
}

// fakeDocument reports whichever element is focused at call time.
type fakeDocument struct {
	mu      sync.Mutex
	focused *fakeElement
}

func (d *fakeDocument) focus(el *fakeElement) {
	d.mu.Lock()
	d.focused = el
	d.mu.Unlock()
}

func (d *fakeDocument) ActiveElement(context.Context) (Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.focused == nil {
		return nil, nil
	}
	return d.focused, nil
}

// countingRequester counts requests per tab.
type countingRequester struct {
	mu    sync.Mutex
	count map[string]int
	err   error
}

func newCountingRequester() *countingRequester {
	return &countingRequester{count: make(map[string]int)}
}

func (r *countingRequester) RequestLastText(tabID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.count[tabID]++
	return nil
}

func (r *countingRequester) requests(tabID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count[tabID]
}
