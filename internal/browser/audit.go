package browser

import (
	"log/slog"
)

// mutatingCommands are CDP methods that change page state; they are logged
// at info, everything else at debug.
var mutatingCommands = map[string]bool{
	"Runtime.callFunctionOn":                true,
	"Runtime.addBinding":                    true,
	"Page.addScriptToEvaluateOnNewDocument": true,
}

type cdpAuditLogger struct {
	logger *slog.Logger
}

func newCDPAuditLogger(logger *slog.Logger) *cdpAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &cdpAuditLogger{
		logger: logger.With("component", "cdp-audit"),
	}
}

func (l *cdpAuditLogger) logCommand(tabID string, method string, err error) {
	if l == nil {
		return
	}

	attrs := []any{
		"tab", truncateID(tabID),
		"method", method,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
		l.logger.Warn("cdp_command_failed", attrs...)
		return
	}

	if mutatingCommands[method] {
		l.logger.Info("cdp_command", attrs...)
	} else {
		l.logger.Debug("cdp_command", attrs...)
	}
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
