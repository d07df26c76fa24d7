// Package crashlog records recovered panics so one failing goroutine does not
// take the relay down.
package crashlog

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
)

var panics atomic.Int64

// LogPanic records a recovered panic with a stack trace.
func LogPanic(module string, r any, attrs ...any) {
	panics.Add(1)

	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	args := append([]any{"module", module, "panic", fmt.Sprintf("%v", r)}, attrs...)
	args = append(args, "stack", string(stack[:n]))
	slog.Default().Error("recovered panic", args...)
}

// Recover is deferred at the top of a goroutine or handler. It swallows a
// panic after logging it.
func Recover(module string, attrs ...any) {
	if r := recover(); r != nil {
		LogPanic(module, r, attrs...)
	}
}

// Go runs fn on a new goroutine with Recover installed.
func Go(module string, fn func()) {
	go func() {
		defer Recover(module)
		fn()
	}()
}

// Count returns how many panics have been recovered since start.
func Count() int64 {
	return panics.Load()
}
