// Package relay defines the frames exchanged between the local text service,
// the background context and the per-tab content contexts, and the background
// side of the relay (request bridge and tab relay).
package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type discriminates a Message.
type Type string

const (
	// TypeGetLastText asks the service for its latest text. No payload.
	TypeGetLastText Type = "GET_LAST_TEXT"

	// TypeInsertText carries text to insert into the focused field.
	TypeInsertText Type = "INSERT_TEXT"
)

// Message is a relay frame. Only GET_LAST_TEXT and INSERT_TEXT are
// interpreted; any other well-formed frame is carried opaquely and forwarded
// byte-for-byte.
type Message struct {
	Type Type
	Text string

	raw json.RawMessage
}

type frame struct {
	Type Type   `json:"type"`
	Text string `json:"text,omitempty"`
}

type insertTextFrame struct {
	Type Type   `json:"type"`
	Text string `json:"text"`
}

// GetLastText returns the request frame.
func GetLastText() Message {
	return Message{Type: TypeGetLastText}
}

// InsertText returns an insertion frame carrying text.
func InsertText(text string) Message {
	return Message{Type: TypeInsertText, Text: text}
}

// ParseMessage parses an inbound text frame. Any valid JSON value is accepted;
// type and text are lifted out when the frame is an object carrying them as
// strings. Malformed input returns an error wrapping ErrParse.
func ParseMessage(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return Message{}, fmt.Errorf("%w: frame is not valid JSON", ErrParse)
	}

	msg := Message{raw: append(json.RawMessage(nil), trimmed...)}

	if trimmed[0] != '{' {
		return msg, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	var typ string
	if json.Unmarshal(fields["type"], &typ) == nil {
		msg.Type = Type(typ)
	}
	var text string
	if json.Unmarshal(fields["text"], &text) == nil {
		msg.Text = text
	}
	return msg, nil
}

// Raw returns the original frame bytes, or nil for locally built messages.
func (m Message) Raw() json.RawMessage {
	return m.raw
}

// Recognized reports whether the frame is one of the two interpreted types.
func (m Message) Recognized() bool {
	return m.Type == TypeGetLastText || m.Type == TypeInsertText
}

// MarshalJSON re-emits a parsed frame verbatim; locally built messages are
// encoded from their fields.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	if m.Type == TypeInsertText {
		// An empty INSERT_TEXT still carries its text field.
		return json.Marshal(insertTextFrame{Type: m.Type, Text: m.Text})
	}
	return json.Marshal(frame{Type: m.Type, Text: m.Text})
}

func (m Message) String() string {
	if m.Type == "" {
		return "<untyped>"
	}
	return string(m.Type)
}
