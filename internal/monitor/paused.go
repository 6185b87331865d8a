package monitor

import (
	"context"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/fetch"

	"github.com/desoul99/project-fish/internal/scanmodel"
)

// dispatchPaused is the fetch.EventRequestPaused handler. chromedp's
// ListenTarget contract forbids blocking the dispatch goroutine, so the
// actual work — the body-capture decision tree, the GetResponseBody round
// trip, and the exactly-once continuation call — runs on its own goroutine,
// counted in m.inFlight so Finalize can drain it.
func (m *Monitor) dispatchPaused(ctx context.Context, ev *fetch.EventRequestPaused) {
	m.mu.Lock()
	accepting := m.accepting
	if accepting {
		m.inFlight++
	}
	m.mu.Unlock()

	if !accepting {
		// Past Finalize: still owe the browser a continuation or the
		// navigation hangs, but nothing is recorded any longer.
		m.continueRequest(ctx, ev.RequestID)
		return
	}

	go func() {
		defer m.doneInFlight()
		m.handlePaused(ctx, ev)
	}()
}

// doneInFlight records that one dispatched paused-event handler has
// returned, waking any goroutine blocked on drainCond in Finalize.
func (m *Monitor) doneInFlight() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
	m.drainCond.Broadcast()
}

func (m *Monitor) handlePaused(ctx context.Context, ev *fetch.EventRequestPaused) {
	body, hash, captured := m.maybeCaptureBody(ctx, ev)

	if captured {
		m.mu.Lock()
		m.pausedResponses = append(m.pausedResponses, scanmodel.PausedResponse{
			Event:      ev,
			Body:       body,
			SHA256Hash: hash,
		})
		m.mu.Unlock()
	}

	m.continueResponse(ctx, ev.RequestID)
}

// maybeCaptureBody implements the spec §4.2 capture policy: skip when there
// are no response headers, when Content-Length is present and zero, when a
// present Content-Length exceeds MaxContentSize, or when the response is a
// redirect carrying a Location header (the body, if any, is never the
// resource the scan cares about). A missing Content-Length (chunked or
// streamed responses, including most main documents) falls through to
// fetch.GetResponseBody rather than being skipped. Any GetResponseBody
// failure is swallowed — the continuation still happens, just without a
// captured body.
func (m *Monitor) maybeCaptureBody(ctx context.Context, ev *fetch.EventRequestPaused) (body []byte, hash string, captured bool) {
	if len(ev.ResponseHeaders) == 0 {
		return nil, "", false
	}

	contentLength, hasLength := headerInt64(ev.ResponseHeaders, "content-length")
	if hasLength && contentLength == 0 {
		return nil, "", false
	}
	if hasLength && contentLength > m.cfg.MaxContentSize {
		return nil, "", false
	}

	if redirectStatuses[ev.ResponseStatusCode] {
		if _, hasLocation := headerString(ev.ResponseHeaders, "location"); hasLocation {
			return nil, "", false
		}
	}

	got, _, err := fetch.GetResponseBody(ev.RequestID).Do(executorContext(ctx))
	if err != nil {
		m.logger.Debug("get response body failed", "request_id", ev.RequestID, "err", err)
		return nil, "", false
	}

	hash = ""
	if m.hasher != nil {
		hash = m.hasher.Hash(got)
	}
	return got, hash, true
}

func (m *Monitor) continueResponse(ctx context.Context, id fetch.RequestID) {
	err := fetch.ContinueResponse(id).Do(executorContext(ctx))
	if err != nil {
		m.logger.Debug("continue response failed", "request_id", id, "err", err)
	}
}

func (m *Monitor) continueRequest(ctx context.Context, id fetch.RequestID) {
	err := fetch.ContinueRequest(id).Do(executorContext(ctx))
	if err != nil {
		m.logger.Debug("continue request failed", "request_id", id, "err", err)
	}
}

func headerString(headers []*fetch.HeaderEntry, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func headerInt64(headers []*fetch.HeaderEntry, name string) (int64, bool) {
	v, ok := headerString(headers, name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
