package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/neboloop/focusrelay/internal/crashlog"
	"github.com/neboloop/focusrelay/internal/relay"
)

// tabState is what ActiveTab knows about one page when it decides.
type tabState struct {
	ID          string
	Visible     bool
	Focused     bool
	ActivatedAt time.Time
}

// pickActive chooses the active tab of the focused window: a page holding
// window focus wins, then a visible page, then the most recently activated
// one. Within a class the latest activation wins.
func pickActive(states []tabState) (string, bool) {
	if len(states) == 0 {
		return "", false
	}
	sorted := append([]tabState(nil), states...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Focused != b.Focused {
			return a.Focused
		}
		if a.Visible != b.Visible {
			return a.Visible
		}
		if !a.ActivatedAt.Equal(b.ActivatedAt) {
			return a.ActivatedAt.After(b.ActivatedAt)
		}
		return a.ID < b.ID
	})

	best := sorted[0]
	if !best.Focused && !best.Visible && best.ActivatedAt.IsZero() {
		return "", false
	}
	return best.ID, true
}

// ActiveTab resolves the active tab now. Every known page is probed
// concurrently, each under its own deadline. Nothing is cached between calls.
func (m *Manager) ActiveTab(ctx context.Context) (string, error) {
	if !m.running() {
		return "", fmt.Errorf("%w: %w", relay.ErrNoActiveTab, ErrNotStarted)
	}
	tabs := m.snapshot()

	states := make([]tabState, len(tabs))
	var wg sync.WaitGroup
	for i, t := range tabs {
		states[i] = tabState{ID: t.id, ActivatedAt: t.activatedAt()}
		wg.Add(1)
		go func(st *tabState, t *tab) {
			defer wg.Done()
			defer crashlog.Recover("browser", "tab", t.id)

			pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
			defer cancel()
			visible, focused, err := t.doc.Probe(pctx)
			if err != nil {
				m.logger.Debug("tab probe failed", "tab", truncateID(t.id), "error", err)
				return
			}
			st.Visible, st.Focused = visible, focused
		}(&states[i], t)
	}
	wg.Wait()

	id, ok := pickActive(states)
	if !ok {
		return "", relay.ErrNoActiveTab
	}
	return id, nil
}
