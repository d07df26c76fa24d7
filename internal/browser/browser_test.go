package browser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/focusrelay/internal/content"
	"github.com/neboloop/focusrelay/internal/relay"
)

type call struct {
	method string
	params map[string]any
}

// fakeExecutor answers CDP methods from canned JSON.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]string
	errs    map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{replies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeExecutor) Execute(_ context.Context, method string, params, res any) error {
	raw, _ := json.Marshal(params)
	var p map[string]any
	_ = json.Unmarshal(raw, &p)

	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, params: p})
	reply, err := f.replies[method], f.errs[method]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if res != nil && reply != "" {
		return json.Unmarshal([]byte(reply), res)
	}
	return nil
}

func (f *fakeExecutor) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

func (f *fakeExecutor) callsTo(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// stuckExecutor never answers, like a page blocked on an alert() dialog.
type stuckExecutor struct{}

func (stuckExecutor) Execute(ctx context.Context, _ string, _, _ any) error {
	<-ctx.Done()
	return ctx.Err()
}

// startedManager returns a manager that believes it is connected, holding
// one tab per executor.
func startedManager(cfg Config, pages map[string]Executor) *Manager {
	m := NewManager(cfg, nil)
	m.started = true
	for id, exec := range pages {
		ctx, cancel := context.WithCancel(context.Background())
		m.tabs[id] = &tab{id: id, ctx: ctx, cancel: cancel, doc: newCDPDocument(id, exec, nil)}
	}
	return m
}

func TestParsePageEvent(t *testing.T) {
	ev, err := parsePageEvent(`{"event":"focusin","tag":"INPUT","type":"email"}`)
	require.NoError(t, err)
	assert.Equal(t, EventFocusIn, ev.Event)
	assert.Equal(t, content.ElementInfo{Tag: "INPUT", Type: "email"}, ev.Element())

	ev, err = parsePageEvent(`{"event":"ready"}`)
	require.NoError(t, err)
	assert.Equal(t, EventReady, ev.Event)

	_, err = parsePageEvent(`{"event":"scroll"}`)
	assert.ErrorIs(t, err, errUnknownEvent)

	_, err = parsePageEvent(`not json`)
	assert.Error(t, err)
}

func TestPickActive(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		states []tabState
		want   string
		ok     bool
	}{
		{"none", nil, "", false},
		{"focused wins", []tabState{
			{ID: "a", Visible: true, ActivatedAt: now},
			{ID: "b", Visible: true, Focused: true, ActivatedAt: now.Add(-time.Minute)},
		}, "b", true},
		{"visible beats hidden", []tabState{
			{ID: "a", ActivatedAt: now},
			{ID: "b", Visible: true},
		}, "b", true},
		{"latest activation among visible", []tabState{
			{ID: "a", Visible: true, ActivatedAt: now.Add(-time.Second)},
			{ID: "b", Visible: true, ActivatedAt: now},
		}, "b", true},
		{"hidden but activated", []tabState{
			{ID: "a"},
			{ID: "b", ActivatedAt: now},
		}, "b", true},
		{"nothing qualifies", []tabState{{ID: "a"}, {ID: "b"}}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickActive(tt.states)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActiveElement(t *testing.T) {
	exec := newFakeExecutor()
	exec.replies["Runtime.evaluate"] = `{"result":{"type":"object","subtype":"node","objectId":"obj-1"}}`
	doc := newCDPDocument("tab-1", exec, nil)

	el, err := doc.ActiveElement(context.Background())
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, "obj-1", el.(*cdpElement).objectID)
	assert.Equal(t, []string{"Runtime.releaseObjectGroup", "Runtime.evaluate"}, exec.methods())

	eval := exec.callsTo("Runtime.evaluate")[0]
	assert.Equal(t, objectGroup, eval.params["objectGroup"])
}

func TestActiveElementNothingFocused(t *testing.T) {
	exec := newFakeExecutor()
	exec.replies["Runtime.evaluate"] = `{"result":{"type":"object","subtype":"null"}}`
	doc := newCDPDocument("tab-1", exec, nil)

	el, err := doc.ActiveElement(context.Background())
	require.NoError(t, err)
	assert.Nil(t, el)
}

func TestActiveElementPageException(t *testing.T) {
	exec := newFakeExecutor()
	exec.replies["Runtime.evaluate"] = `{"result":{"type":"object"},"exceptionDetails":{"text":"Uncaught"}}`
	doc := newCDPDocument("tab-1", exec, nil)

	_, err := doc.ActiveElement(context.Background())
	assert.ErrorContains(t, err, "Uncaught")
}

func TestProbe(t *testing.T) {
	exec := newFakeExecutor()
	exec.replies["Runtime.evaluate"] = `{"result":{"type":"object","value":[true,false]}}`
	doc := newCDPDocument("tab-1", exec, nil)

	visible, focused, err := doc.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, visible)
	assert.False(t, focused)

	exec.errs["Runtime.evaluate"] = errors.New("target closed")
	_, _, err = doc.Probe(context.Background())
	assert.ErrorContains(t, err, "target closed")
}

func TestElementCallsPassArguments(t *testing.T) {
	exec := newFakeExecutor()
	exec.replies["Runtime.callFunctionOn"] = `{"result":{"type":"object","value":{"tag":"TEXTAREA","type":"textarea"}}}`
	el := &cdpElement{doc: newCDPDocument("tab-1", exec, nil), objectID: "obj-7"}
	ctx := context.Background()

	info, err := el.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TEXTAREA", info.Tag)
	assert.Equal(t, content.KindTextArea, content.Classify(info))

	require.NoError(t, el.SetValue(ctx, "hello"))
	require.NoError(t, el.Dispatch(ctx, content.InputEvent))

	calls := exec.callsTo("Runtime.callFunctionOn")
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, "obj-7", c.params["objectId"])
		assert.Equal(t, true, c.params["returnByValue"])
	}
	assert.Equal(t, []any{map[string]any{"value": "hello"}}, calls[1].params["arguments"])
	assert.Equal(t, []any{
		map[string]any{"value": "input"},
		map[string]any{"value": true},
	}, calls[2].params["arguments"])
}

type nopRequester struct{}

func (nopRequester) RequestLastText(string) error { return nil }

func TestContentContextInsertsOverCDP(t *testing.T) {
	exec := newFakeExecutor()
	exec.replies["Runtime.evaluate"] = `{"result":{"type":"object","subtype":"node","objectId":"obj-1"}}`
	exec.replies["Runtime.callFunctionOn"] = `{"result":{"type":"object","value":{"tag":"INPUT","type":"text"}}}`

	results := make(chan error, 1)
	cc := content.NewContext("tab-1", newCDPDocument("tab-1", exec, nil), nopRequester{},
		content.WithResult(func(_ relay.Message, err error) { results <- err }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cc.Run(ctx)

	require.True(t, cc.Post(relay.InsertText("snippet")))
	select {
	case err := <-results:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("insertion did not complete")
	}

	var args []any
	for _, c := range exec.callsTo("Runtime.callFunctionOn") {
		if a, ok := c.params["arguments"].([]any); ok && len(a) > 0 {
			args = append(args, a[0].(map[string]any)["value"])
		}
	}
	assert.Equal(t, []any{"snippet", "input", "change"}, args)
}

func TestNormalizeCDPURL(t *testing.T) {
	tests := map[string]string{
		"":                       "",
		"9333":                   "http://127.0.0.1:9333",
		"localhost":              "http://localhost:9222",
		"10.0.0.2:9229":          "http://10.0.0.2:9229",
		"http://127.0.0.1:9222/": "http://127.0.0.1:9222",
		"ws://127.0.0.1:9222/devtools/browser/x": "ws://127.0.0.1:9222/devtools/browser/x",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeCDPURL(in), in)
	}
}

func TestGetChromeWebSocketURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/browser/abc",
		})
	}))
	defer srv.Close()

	ws, err := GetChromeWebSocketURL(srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", ws)
	assert.True(t, IsChromeReachable(srv.URL, time.Second))

	ws, err = GetChromeWebSocketURL("ws://host:1/devtools/browser/x", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ws://host:1/devtools/browser/x", ws)
}

func TestContentScriptIsEmbedded(t *testing.T) {
	assert.True(t, strings.Contains(contentScript, "window."+BindingName))
	for _, ev := range []string{EventReady, EventFocusIn, EventActivate} {
		assert.Contains(t, contentScript, `"`+ev+`"`)
	}
}

func TestAuditLoggerIsNilSafe(t *testing.T) {
	var l *cdpAuditLogger
	assert.NotPanics(t, func() { l.logCommand("tab", "Runtime.evaluate", nil) })
	assert.Equal(t, "abcdefgh", truncateID("abcdefghijkl"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestActiveTabBeforeStart(t *testing.T) {
	m := NewManager(Config{}, nil)
	_, err := m.ActiveTab(context.Background())
	assert.ErrorIs(t, err, relay.ErrNoActiveTab)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Empty(t, m.Tabs())
	assert.NoError(t, m.Stop())
}

func TestActiveTabSurvivesStuckPage(t *testing.T) {
	focused := newFakeExecutor()
	focused.replies["Runtime.evaluate"] = `{"result":{"type":"object","value":[true,true]}}`

	m := startedManager(Config{ProbeTimeout: time.Second}, map[string]Executor{
		"dialog":  stuckExecutor{},
		"focused": focused,
	})

	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		id, err := m.ActiveTab(ctx)
		cancel()
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, "focused", id, "run %d", i)
	}
}

func TestActiveTabProbeDeadlineIsPerPage(t *testing.T) {
	visible := newFakeExecutor()
	visible.replies["Runtime.evaluate"] = `{"result":{"type":"object","value":[true,false]}}`

	m := startedManager(Config{ProbeTimeout: 20 * time.Millisecond}, map[string]Executor{
		"dialog":  stuckExecutor{},
		"visible": visible,
	})

	start := time.Now()
	id, err := m.ActiveTab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "visible", id)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTargetDestroyedDetachesTab(t *testing.T) {
	m := startedManager(Config{}, map[string]Executor{
		"gone": newFakeExecutor(),
		"kept": newFakeExecutor(),
	})
	m.mu.RLock()
	goneCtx := m.tabs["gone"].ctx
	m.mu.RUnlock()

	m.onBrowserEvent(&target.EventTargetDestroyed{TargetID: "gone"})

	require.Eventually(t, func() bool { return len(m.Tabs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"kept"}, m.Tabs())
	assert.Error(t, goneCtx.Err())
}
