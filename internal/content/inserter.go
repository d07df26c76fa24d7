package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neboloop/focusrelay/internal/relay"
)

type insertFunc func(ctx context.Context, el Element, text string) error

// strategies holds the mutation applied per element kind.
var strategies = map[Kind]insertFunc{
	KindTextInput:       setValue,
	KindTextArea:        setValue,
	KindContentEditable: setText,
}

func setValue(ctx context.Context, el Element, text string) error {
	return el.SetValue(ctx, text)
}

func setText(ctx context.Context, el Element, text string) error {
	return el.SetText(ctx, text)
}

// Inserter applies INSERT_TEXT frames to the element focused at receipt.
type Inserter struct {
	doc    Document
	logger *slog.Logger
}

// NewInserter returns an inserter over doc.
func NewInserter(doc Document, logger *slog.Logger) *Inserter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inserter{doc: doc, logger: logger}
}

// Insert handles one delivered frame. Frames other than INSERT_TEXT are
// ignored. When nothing editable has focus the text is dropped with a warning
// and an error wrapping relay.ErrFocusMismatch is returned.
func (in *Inserter) Insert(ctx context.Context, msg relay.Message) error {
	if msg.Type != relay.TypeInsertText {
		in.logger.Debug("ignoring frame", "type", msg.String())
		return nil
	}

	el, err := in.doc.ActiveElement(ctx)
	if err != nil {
		return fmt.Errorf("resolve focused element: %w", err)
	}
	if el == nil {
		in.logger.Warn("no focused input, text dropped")
		return fmt.Errorf("%w: nothing focused", relay.ErrFocusMismatch)
	}

	info, err := el.Describe(ctx)
	if err != nil {
		return fmt.Errorf("describe focused element: %w", err)
	}
	kind := Classify(info)
	apply, ok := strategies[kind]
	if !ok {
		in.logger.Warn("focused element is not editable, text dropped", "tag", info.Tag, "type", info.Type)
		return fmt.Errorf("%w: focused <%s> is not editable", relay.ErrFocusMismatch, info.Tag)
	}

	if err := apply(ctx, el, msg.Text); err != nil {
		return fmt.Errorf("insert into %s: %w", kind, err)
	}
	for _, ev := range []Event{InputEvent, ChangeEvent} {
		if err := el.Dispatch(ctx, ev); err != nil {
			return fmt.Errorf("dispatch %s: %w", ev.Type, err)
		}
	}

	in.logger.Info("text inserted", "kind", kind, "chars", len([]rune(msg.Text)))
	return nil
}
