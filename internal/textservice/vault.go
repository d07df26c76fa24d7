// Package textservice is the local text service the relay connects to. It
// tracks the newest note in a vault directory and hands its text to browser
// clients over a websocket.
package textservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrNoNote is returned when no note is pending.
var ErrNoNote = errors.New("no note pending")

// Vault tracks the most recently written note in a directory.
type Vault struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	latest string

	onUpdate func(path string)
}

// NewVault returns a vault over dir. The directory is created if needed when
// Watch starts.
func NewVault(dir string, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.Default().With("component", "vault")
	}
	return &Vault{dir: dir, logger: logger}
}

// Dir returns the watched directory.
func (v *Vault) Dir() string { return v.dir }

// OnUpdate registers a callback for every newly tracked note.
func (v *Vault) OnUpdate(fn func(path string)) {
	v.mu.Lock()
	v.onUpdate = fn
	v.mu.Unlock()
}

// Latest returns the pending note path, or "".
func (v *Vault) Latest() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.latest
}

// Track makes path the pending note.
func (v *Vault) Track(path string) {
	v.mu.Lock()
	v.latest = path
	fn := v.onUpdate
	v.mu.Unlock()

	v.logger.Info("note tracked", "path", path)
	if fn != nil {
		fn(path)
	}
}

// Consume reads the pending note, trims it and forgets the path so the same
// note is handed out at most once. The path is kept when the read fails.
func (v *Vault) Consume() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.latest == "" {
		return "", ErrNoNote
	}
	data, err := os.ReadFile(v.latest)
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	v.latest = ""
	return strings.TrimSpace(string(data)), nil
}

// Peek reads the pending note without consuming it.
func (v *Vault) Peek() (string, error) {
	path := v.Latest()
	if path == "" {
		return "", ErrNoNote
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return string(data), nil
}

// Watch monitors the vault for created or rewritten notes. It blocks until
// the context is cancelled.
func (v *Vault) Watch(ctx context.Context) error {
	if err := os.MkdirAll(v.dir, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(v.dir); err != nil {
		return fmt.Errorf("watch vault dir: %w", err)
	}

	v.logger.Info("watching vault", "dir", v.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			v.handleFSEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn("watcher error", "error", err)
		}
	}
}

func (v *Vault) handleFSEvent(event fsnotify.Event) {
	if !isNote(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		if v.Latest() != event.Name {
			v.Track(event.Name)
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		v.mu.Lock()
		if v.latest == event.Name {
			v.latest = ""
		}
		v.mu.Unlock()
	}
}

// isNote reports whether name is a visible markdown file.
func isNote(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(strings.ToLower(base), ".md") && !strings.HasPrefix(base, ".")
}
