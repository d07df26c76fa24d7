package content

import (
	"log/slog"
)

// Requester carries content requests to the background context.
type Requester interface {
	RequestLastText(tabID string) error
}

// Watcher turns focus-entry reports into GET_LAST_TEXT requests.
type Watcher struct {
	tabID    string
	requests Requester
	logger   *slog.Logger
}

// NewWatcher returns a watcher for one tab.
func NewWatcher(tabID string, requests Requester, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{tabID: tabID, requests: requests, logger: logger}
}

// FocusIn handles one focus-entry event. Every qualifying event emits exactly
// one request; nothing is debounced. It reports whether a request went out.
func (w *Watcher) FocusIn(info ElementInfo) bool {
	kind := Classify(info)
	if !kind.Editable() {
		return false
	}

	if err := w.requests.RequestLastText(w.tabID); err != nil {
		w.logger.Warn("request not delivered", "tab", w.tabID, "error", err)
		return false
	}
	w.logger.Debug("editable field focused, requested text", "tab", w.tabID, "kind", kind)
	return true
}
