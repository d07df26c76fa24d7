package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/neboloop/focusrelay/internal/content"
	"github.com/neboloop/focusrelay/internal/crashlog"
	"github.com/neboloop/focusrelay/internal/events"
	"github.com/neboloop/focusrelay/internal/lifecycle"
	"github.com/neboloop/focusrelay/internal/relay"
)

// ErrNotStarted is returned when the manager has no browser connection.
var ErrNotStarted = errors.New("browser manager not started")

// tab is one page target with its content context.
type tab struct {
	id      string
	url     string
	ctx     context.Context
	cancel  context.CancelFunc
	doc     *cdpDocument
	content *content.Context

	mu        sync.Mutex
	sub       *events.Subscription
	activated time.Time
}

func (t *tab) activatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activated
}

func (t *tab) markActivated() {
	t.mu.Lock()
	t.activated = time.Now()
	t.mu.Unlock()
}

// Manager owns the browser connection and one content context per page.
// It is the relay's TabLocator.
type Manager struct {
	mu sync.RWMutex

	cfg    Config
	bus    *relay.Bus
	logger *slog.Logger
	audit  *cdpAuditLogger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabs          map[string]*tab
	started       bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets a custom logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager that attaches content contexts to bus.
func NewManager(cfg Config, bus *relay.Bus, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:    cfg,
		bus:    bus,
		logger: slog.Default().With("component", "browser"),
		tabs:   make(map[string]*tab),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.InsertTimeout <= 0 {
		m.cfg.InsertTimeout = 5 * time.Second
	}
	if m.cfg.ProbeTimeout <= 0 {
		m.cfg.ProbeTimeout = time.Second
	}
	m.audit = newCDPAuditLogger(m.logger)
	return m
}

// Start connects to the browser and attaches every open page.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	allocCtx, allocCancel, err := NewAllocator(ctx, m.cfg)
	if err != nil {
		return err
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			m.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	actions := []chromedp.Action{}
	if !m.cfg.Remote() && m.cfg.StartURL != "" {
		actions = append(actions, chromedp.Navigate(m.cfg.StartURL))
	}
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}

	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel

	chromedp.ListenBrowser(browserCtx, m.onBrowserEvent)

	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		bctx := cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser)
		return target.SetDiscoverTargets(true).Do(bctx)
	})); err != nil {
		m.logger.Warn("target discovery unavailable", "error", err)
	}

	var targets []*target.Info
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		targets, err = target.GetTargets().Do(ctx)
		return err
	})); err != nil {
		m.shutdownLocked()
		return fmt.Errorf("list targets: %w", err)
	}

	m.started = true
	for _, info := range targets {
		if info.Type != "page" {
			continue
		}
		id, url := string(info.TargetID), info.URL
		crashlog.Go("browser", func() { m.attach(id, url) })
	}

	m.logger.Info("browser connected", "remote", m.cfg.Remote(), "pages", len(targets))
	return nil
}

func (m *Manager) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo != nil && e.TargetInfo.Type == "page" {
			id, url := string(e.TargetInfo.TargetID), e.TargetInfo.URL
			crashlog.Go("browser", func() { m.attach(id, url) })
		}
	case *target.EventTargetInfoChanged:
		if e.TargetInfo != nil {
			m.updateURL(string(e.TargetInfo.TargetID), e.TargetInfo.URL)
		}
	case *target.EventTargetDestroyed:
		id := string(e.TargetID)
		crashlog.Go("browser", func() { m.detach(id) })
	}
}

// attach installs the content script in a page and starts its content
// context. The page is not reachable for deliveries until the script reports
// ready.
func (m *Manager) attach(id, url string) {
	m.mu.Lock()
	if !m.started || m.browserCtx == nil {
		m.mu.Unlock()
		return
	}
	if _, ok := m.tabs[id]; ok {
		m.mu.Unlock()
		return
	}
	tabCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(target.ID(id)))
	t := &tab{id: id, url: url, ctx: tabCtx, cancel: cancel}
	m.tabs[id] = t
	m.mu.Unlock()

	if err := chromedp.Run(tabCtx); err != nil {
		m.logger.Debug("attach failed", "tab", truncateID(id), "error", err)
		m.detach(id)
		return
	}

	doc := newCDPDocument(id, chromedp.FromContext(tabCtx).Target, m.audit)
	cc := content.NewContext(id, doc, m.bus,
		content.WithLogger(m.logger.With("tab", truncateID(id))),
		content.WithInsertTimeout(m.cfg.InsertTimeout),
	)
	m.mu.Lock()
	t.doc, t.content = doc, cc
	m.mu.Unlock()
	go cc.Run(tabCtx)

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == BindingName {
			m.handlePageEvent(t, e.Payload)
		}
	})

	var installed bool
	err := chromedp.Run(tabCtx,
		runtime.Enable(),
		runtime.AddBinding(BindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(contentScript).Do(ctx)
			return err
		}),
		chromedp.Evaluate(contentScript, &installed),
	)
	m.audit.logCommand(id, "Page.addScriptToEvaluateOnNewDocument", err)
	if err != nil {
		m.logger.Warn("content script not installed", "tab", truncateID(id), "error", err)
		return
	}
	m.logger.Debug("tab attached", "tab", truncateID(id), "url", url)
}

func (m *Manager) handlePageEvent(t *tab, payload string) {
	ev, err := parsePageEvent(payload)
	if err != nil {
		m.logger.Debug("ignoring page event", "tab", truncateID(t.id), "error", err)
		return
	}

	switch ev.Event {
	case EventReady:
		crashlog.Go("browser", func() { m.listen(t) })
	case EventFocusIn:
		t.content.FocusIn(ev.Element())
	case EventActivate:
		t.markActivated()
	}
}

// listen subscribes the tab's content context to its inbox once.
func (m *Manager) listen(t *tab) {
	t.mu.Lock()
	if t.sub != nil || t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	sub := m.bus.AttachTab(t.id, func(msg relay.Message) {
		t.content.Post(msg)
	})
	t.sub = &sub
	t.mu.Unlock()

	lifecycle.Emit(lifecycle.EventTabAttached, lifecycle.TabEventData{TabID: t.id, URL: m.tabURL(t.id)})
}

func (m *Manager) detach(id string) {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if ok {
		delete(m.tabs, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	listening := t.sub != nil
	if listening {
		t.sub.Unsubscribe()
		t.sub = nil
	}
	t.mu.Unlock()
	t.cancel()

	if listening {
		lifecycle.Emit(lifecycle.EventTabDetached, lifecycle.TabEventData{TabID: id, URL: t.url})
	}
}

func (m *Manager) updateURL(id, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tabs[id]; ok {
		t.url = url
	}
}

func (m *Manager) tabURL(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tabs[id]; ok {
		return t.url
	}
	return ""
}

// snapshot returns the tabs whose document is reachable.
func (m *Manager) snapshot() []*tab {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		if t.doc != nil {
			out = append(out, t)
		}
	}
	return out
}

// Tabs returns the IDs of the attached pages.
func (m *Manager) Tabs() []string {
	tabs := m.snapshot()
	ids := make([]string, len(tabs))
	for i, t := range tabs {
		ids[i] = t.id
	}
	return ids
}

// Stop detaches every page and releases the browser. A launched browser is
// closed; a remote one is left running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.shutdownLocked()
	return nil
}

func (m *Manager) shutdownLocked() {
	for id, t := range m.tabs {
		t.mu.Lock()
		if t.sub != nil {
			t.sub.Unsubscribe()
			t.sub = nil
		}
		t.mu.Unlock()
		t.cancel()
		delete(m.tabs, id)
	}
	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.browserCtx = nil
	m.started = false
}

func (m *Manager) running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}
