package browser

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/neboloop/focusrelay/internal/content"
)

// contentScript is installed in every page. It reports focus entry, tab
// activation and its own readiness through the BindingName binding.
//
//go:embed content.js
var contentScript string

// pageEvent is one binding payload sent by the content script.
type pageEvent struct {
	Event    string `json:"event"`
	Tag      string `json:"tag,omitempty"`
	Type     string `json:"type,omitempty"`
	Editable bool   `json:"editable,omitempty"`
}

// Element returns the element described by a focusin event.
func (e pageEvent) Element() content.ElementInfo {
	return content.ElementInfo{Tag: e.Tag, Type: e.Type, Editable: e.Editable}
}

var errUnknownEvent = errors.New("unknown page event")

func parsePageEvent(payload string) (pageEvent, error) {
	var ev pageEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("decode binding payload: %w", err)
	}
	switch ev.Event {
	case EventReady, EventFocusIn, EventActivate:
		return ev, nil
	default:
		return ev, fmt.Errorf("%w: %q", errUnknownEvent, ev.Event)
	}
}
