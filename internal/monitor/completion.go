package monitor

import (
	"context"
	"time"
)

// WaitForCompletion blocks until the page is judged idle — no new request
// observed for at least MinIdle and no paused-event handlers still in
// flight — or until timeout elapses, whichever comes first. It polls at
// timeout/60 (spec §4.2), with a floor so a very small timeout in tests
// doesn't busy-loop.
func (m *Monitor) WaitForCompletion(ctx context.Context, timeout time.Duration) error {
	interval := timeout / 60
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if m.idle() {
			return nil
		}

		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// idle reports whether MinIdle has elapsed since the last observed request
// and no paused-event handler is currently running.
func (m *Monitor) idle() bool {
	m.mu.Lock()
	sinceLast := time.Since(m.lastRequestTime)
	m.mu.Unlock()

	if sinceLast < m.cfg.MinIdle {
		return false
	}

	return m.drained()
}

// drained reports whether every dispatched paused-event handler has
// returned, without blocking. Called on every WaitForCompletion poll tick,
// so this must be a plain counter read under mu rather than spawning a
// goroutine per call.
func (m *Monitor) drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight == 0
}

// Finalize stops accepting new paused-event captures and waits (bounded by
// Config.FinalizeDrainTimeout) for handlers already in flight to finish, so
// that PausedResponses() reflects a consistent snapshot before the tab is
// torn down. Any fetch.EventRequestPaused that arrives after Finalize is
// still continued (never recorded) so the browser never stalls waiting on
// a continuation that will never come.
func (m *Monitor) Finalize() {
	m.mu.Lock()
	m.accepting = false
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		for m.inFlight > 0 {
			m.drainCond.Wait()
		}
		m.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.cfg.FinalizeDrainTimeout):
		m.logger.Warn("finalize drain timed out, proceeding with partial capture")
	}
}
