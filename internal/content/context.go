package content

import (
	"context"
	"log/slog"
	"time"

	"github.com/neboloop/focusrelay/internal/crashlog"
	"github.com/neboloop/focusrelay/internal/relay"
)

// Context is one tab's content context. Focus events and delivered frames are
// queued and handled one at a time on the goroutine running Run.
type Context struct {
	tabID    string
	watcher  *Watcher
	inserter *Inserter
	logger   *slog.Logger

	insertTimeout time.Duration
	onResult      func(relay.Message, error)

	inbox chan work
	done  chan struct{}
}

type work struct {
	msg   relay.Message
	focus *ElementInfo
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithInboxSize sets how many pending items the context buffers.
func WithInboxSize(n int) Option {
	return func(c *Context) { c.inbox = make(chan work, n) }
}

// WithInsertTimeout bounds one insertion.
func WithInsertTimeout(d time.Duration) Option {
	return func(c *Context) { c.insertTimeout = d }
}

// WithResult registers an acknowledgement callback, invoked after each
// delivered frame is handled. Nothing depends on it.
func WithResult(fn func(relay.Message, error)) Option {
	return func(c *Context) { c.onResult = fn }
}

// NewContext builds the content context of tabID over doc.
func NewContext(tabID string, doc Document, requests Requester, opts ...Option) *Context {
	c := &Context{
		tabID:         tabID,
		logger:        slog.Default().With("component", "content", "tab", tabID),
		insertTimeout: 5 * time.Second,
		inbox:         make(chan work, 64),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.watcher = NewWatcher(tabID, requests, c.logger)
	c.inserter = NewInserter(doc, c.logger)
	return c
}

// TabID returns the tab this context belongs to.
func (c *Context) TabID() string {
	return c.tabID
}

// Post queues a delivered frame. It reports false when the context has
// stopped or its inbox is full; the frame is then dropped.
func (c *Context) Post(msg relay.Message) bool {
	return c.enqueue(work{msg: msg})
}

// FocusIn queues a focus-entry report.
func (c *Context) FocusIn(info ElementInfo) bool {
	return c.enqueue(work{focus: &info})
}

func (c *Context) enqueue(w work) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- w:
		return true
	default:
		c.logger.Warn("content inbox full, dropping")
		return false
	}
}

// Run processes queued work until ctx is cancelled.
func (c *Context) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-c.inbox:
			c.handle(ctx, w)
		}
	}
}

func (c *Context) handle(ctx context.Context, w work) {
	defer crashlog.Recover("content", "tab", c.tabID)

	if w.focus != nil {
		c.watcher.FocusIn(*w.focus)
		return
	}

	ictx, cancel := context.WithTimeout(ctx, c.insertTimeout)
	defer cancel()

	err := c.inserter.Insert(ictx, w.msg)
	if err != nil {
		c.logger.Debug("frame not applied", "type", w.msg.String(), "error", err)
	}
	if c.onResult != nil {
		c.onResult(w.msg, err)
	}
}
