package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neboloop/focusrelay/internal/content"
)

// Executor runs one raw CDP method against a page target. chromedp's
// *Target satisfies it.
type Executor interface {
	Execute(ctx context.Context, method string, params, res any) error
}

const activeElementJS = `(() => {
  let el = document.activeElement;
  while (el && el.shadowRoot && el.shadowRoot.activeElement) el = el.shadowRoot.activeElement;
  return el && el !== document.body && el !== document.documentElement ? el : null;
})()`

const (
	describeFn = `function() {
  return {
    tag: this.tagName || "",
    type: this.tagName === "INPUT" || this.tagName === "TEXTAREA" ? String(this.type || "") : "",
    editable: !!this.isContentEditable
  };
}`

	// The prototype setter keeps framework value trackers in sync.
	setValueFn = `function(v) {
  const d = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(this), "value");
  if (d && d.set) d.set.call(this, v); else this.value = v;
}`

	setTextFn = `function(v) { this.innerText = v; }`

	dispatchFn = `function(type, bubbles) { this.dispatchEvent(new Event(type, { bubbles: bubbles })); }`
)

type remoteObject struct {
	Type     string          `json:"type"`
	Subtype  string          `json:"subtype,omitempty"`
	ObjectID string          `json:"objectId,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

type exceptionDetails struct {
	Text      string        `json:"text"`
	Exception *remoteObject `json:"exception,omitempty"`
}

type evalResult struct {
	Result           remoteObject      `json:"result"`
	ExceptionDetails *exceptionDetails `json:"exceptionDetails,omitempty"`
}

func (r evalResult) err(method string) error {
	if r.ExceptionDetails == nil {
		return nil
	}
	return fmt.Errorf("%s: page exception: %s", method, r.ExceptionDetails.Text)
}

// cdpDocument is a tab's document reached over CDP.
type cdpDocument struct {
	tabID string
	exec  Executor
	audit *cdpAuditLogger
}

func newCDPDocument(tabID string, exec Executor, audit *cdpAuditLogger) *cdpDocument {
	return &cdpDocument{tabID: tabID, exec: exec, audit: audit}
}

func (d *cdpDocument) call(ctx context.Context, method string, params, res any) error {
	err := d.exec.Execute(ctx, method, params, res)
	d.audit.logCommand(d.tabID, method, err)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// ActiveElement resolves the focused element, descending into open shadow
// roots. The handle from the previous call is released first.
func (d *cdpDocument) ActiveElement(ctx context.Context) (content.Element, error) {
	_ = d.call(ctx, "Runtime.releaseObjectGroup", map[string]any{"objectGroup": objectGroup}, nil)

	var res evalResult
	if err := d.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":  activeElementJS,
		"objectGroup": objectGroup,
	}, &res); err != nil {
		return nil, err
	}
	if err := res.err("Runtime.evaluate"); err != nil {
		return nil, err
	}
	if res.Result.ObjectID == "" || res.Result.Subtype == "null" {
		return nil, nil
	}
	return &cdpElement{doc: d, objectID: res.Result.ObjectID}, nil
}

// Probe reports whether the page is visible and holds window focus.
func (d *cdpDocument) Probe(ctx context.Context) (visible, focused bool, err error) {
	var res evalResult
	if err := d.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    `[document.visibilityState === "visible", document.hasFocus()]`,
		"returnByValue": true,
	}, &res); err != nil {
		return false, false, err
	}
	if err := res.err("Runtime.evaluate"); err != nil {
		return false, false, err
	}
	var flags []bool
	if err := json.Unmarshal(res.Result.Value, &flags); err != nil || len(flags) != 2 {
		return false, false, fmt.Errorf("unexpected probe result %s", res.Result.Value)
	}
	return flags[0], flags[1], nil
}

// cdpElement is a remote handle to one element.
type cdpElement struct {
	doc      *cdpDocument
	objectID string
}

func (e *cdpElement) callOn(ctx context.Context, fn string, res any, args ...any) error {
	arguments := make([]map[string]any, len(args))
	for i, a := range args {
		arguments[i] = map[string]any{"value": a}
	}

	var out evalResult
	if err := e.doc.call(ctx, "Runtime.callFunctionOn", map[string]any{
		"objectId":            e.objectID,
		"functionDeclaration": fn,
		"arguments":           arguments,
		"returnByValue":       true,
	}, &out); err != nil {
		return err
	}
	if err := out.err("Runtime.callFunctionOn"); err != nil {
		return err
	}
	if res != nil && len(out.Result.Value) > 0 {
		if err := json.Unmarshal(out.Result.Value, res); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func (e *cdpElement) Describe(ctx context.Context) (content.ElementInfo, error) {
	var info content.ElementInfo
	err := e.callOn(ctx, describeFn, &info)
	return info, err
}

func (e *cdpElement) SetValue(ctx context.Context, text string) error {
	return e.callOn(ctx, setValueFn, nil, text)
}

func (e *cdpElement) SetText(ctx context.Context, text string) error {
	return e.callOn(ctx, setTextFn, nil, text)
}

func (e *cdpElement) Dispatch(ctx context.Context, ev content.Event) error {
	return e.callOn(ctx, dispatchFn, nil, ev.Type, ev.Bubbles)
}
