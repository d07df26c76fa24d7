package relay

import "errors"

// Error taxonomy. Every kind is non-fatal: the failing frame is dropped and the
// failure logged.
var (
	// ErrConnection: the transport failed to establish, dropped, or is not
	// open for writing.
	ErrConnection = errors.New("connection error")

	// ErrParse: an inbound frame is not well-formed JSON.
	ErrParse = errors.New("parse error")

	// ErrDelivery: no active tab, or the active tab's content context cannot
	// receive yet.
	ErrDelivery = errors.New("delivery error")

	// ErrFocusMismatch: nothing focused at insertion time, or the focused
	// element is not an editable field.
	ErrFocusMismatch = errors.New("focus mismatch")
)
