// Package browser attaches the relay to Chrome over the DevTools protocol. It
// injects the content script into every page, turns the script's reports into
// content-context events, and resolves which tab is active.
package browser

const (
	// DefaultCDPPort is the Chrome DevTools Protocol port assumed for a bare host.
	DefaultCDPPort = 9222

	// BindingName is the page-side function the content script reports through.
	BindingName = "__focusRelay"

	// objectGroup scopes the remote objects held for insertion.
	objectGroup = "focusrelay"
)

// Page event kinds sent by the content script.
const (
	EventReady    = "ready"
	EventFocusIn  = "focusin"
	EventActivate = "activate"
)
