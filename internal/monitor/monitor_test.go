package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(name, value string) *fetch.HeaderEntry {
	return &fetch.HeaderEntry{Name: name, Value: value}
}

func TestHeaderLookups(t *testing.T) {
	headers := []*fetch.HeaderEntry{
		header("Content-Type", "text/html"),
		header("Content-Length", " 42 "),
	}

	v, ok := headerString(headers, "content-type")
	require.True(t, ok)
	assert.Equal(t, "text/html", v)

	n, ok := headerInt64(headers, "content-length")
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = headerInt64(headers, "missing")
	assert.False(t, ok)
}

func TestMaybeCaptureBody_NoHeaders(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	ev := &fetch.EventRequestPaused{RequestID: "r1"}

	_, _, captured := m.maybeCaptureBody(context.Background(), ev)
	assert.False(t, captured, "no response headers should skip capture")
}

func TestMaybeCaptureBody_ZeroContentLength(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	ev := &fetch.EventRequestPaused{
		RequestID:       "r1",
		ResponseHeaders: []*fetch.HeaderEntry{header("content-length", "0")},
	}

	_, _, captured := m.maybeCaptureBody(context.Background(), ev)
	assert.False(t, captured)
}

func TestMaybeCaptureBody_OversizedContentLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContentSize = 100
	m := New(cfg, nil, nil)
	ev := &fetch.EventRequestPaused{
		RequestID:       "r1",
		ResponseHeaders: []*fetch.HeaderEntry{header("content-length", "101")},
	}

	_, _, captured := m.maybeCaptureBody(context.Background(), ev)
	assert.False(t, captured)
}

func TestMaybeCaptureBody_RedirectWithLocation(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	ev := &fetch.EventRequestPaused{
		RequestID: "r1",
		ResponseHeaders: []*fetch.HeaderEntry{
			header("content-length", "10"),
			header("location", "https://example.com/next"),
		},
		ResponseStatusCode: 302,
	}

	_, _, captured := m.maybeCaptureBody(context.Background(), ev)
	assert.False(t, captured, "redirect with Location header must not be fetched")
}

func TestWaitForCompletion_IdleImmediately(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.mu.Lock()
	m.lastRequestTime = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	err := m.WaitForCompletion(context.Background(), 50*time.Millisecond)
	assert.NoError(t, err)
}

func TestWaitForCompletion_TimesOutWhenNeverIdle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinIdle = time.Hour
	m := New(cfg, nil, nil)
	m.mu.Lock()
	m.lastRequestTime = time.Now()
	m.mu.Unlock()

	err := m.WaitForCompletion(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFinalize_StopsAccepting(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.mu.Lock()
	m.accepting = true
	m.mu.Unlock()

	m.Finalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.False(t, m.accepting)
}
