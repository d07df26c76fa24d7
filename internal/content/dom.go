// Package content is the per-tab content context: it watches focus entering
// editable fields and writes relayed text into whatever field is focused when
// the text arrives.
package content

import (
	"context"
	"strings"
)

// Kind is the insertion target class of an element.
type Kind int

const (
	KindNone Kind = iota
	KindTextInput
	KindTextArea
	KindContentEditable
)

func (k Kind) String() string {
	switch k {
	case KindTextInput:
		return "text-input"
	case KindTextArea:
		return "textarea"
	case KindContentEditable:
		return "contenteditable"
	default:
		return "none"
	}
}

// Editable reports whether text can be inserted into elements of this kind.
func (k Kind) Editable() bool {
	return k != KindNone
}

// ElementInfo is what the page reports about an element.
type ElementInfo struct {
	Tag      string `json:"tag"`
	Type     string `json:"type,omitempty"`
	Editable bool   `json:"editable,omitempty"`
}

// textInputTypes are the <input> types that hold free-form single-line text.
var textInputTypes = map[string]bool{
	"":         true,
	"text":     true,
	"search":   true,
	"email":    true,
	"url":      true,
	"tel":      true,
	"password": true,
}

// Classify maps an element to its insertion kind. Content-editable wins over
// the tag, matching how browsers route typing.
func Classify(info ElementInfo) Kind {
	if info.Editable {
		return KindContentEditable
	}
	switch strings.ToUpper(info.Tag) {
	case "TEXTAREA":
		return KindTextArea
	case "INPUT":
		if textInputTypes[strings.ToLower(info.Type)] {
			return KindTextInput
		}
	}
	return KindNone
}

// Event is a synthetic DOM event.
type Event struct {
	Type    string
	Bubbles bool
}

// Notifications dispatched after every insertion so that frameworks bound to
// the element observe the new value.
var (
	InputEvent  = Event{Type: "input", Bubbles: true}
	ChangeEvent = Event{Type: "change", Bubbles: true}
)

// Element is a live handle to a DOM element.
type Element interface {
	Describe(ctx context.Context) (ElementInfo, error)
	SetValue(ctx context.Context, text string) error
	SetText(ctx context.Context, text string) error
	Dispatch(ctx context.Context, ev Event) error
}

// Document is the page's document as seen from the content context.
type Document interface {
	// ActiveElement returns the focused element, or nil when nothing is.
	ActiveElement(ctx context.Context) (Element, error)
}
