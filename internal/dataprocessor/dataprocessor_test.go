package dataprocessor

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desoul99/project-fish/internal/scanmodel"
)

type fakeASN struct{}

func (fakeASN) Lookup(ip string) (string, error) { return "AS1234", nil }

func reqEvent(id network.RequestID, url, docURL string, frame cdp.FrameID, ts float64, redirect *network.Response) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID:       id,
		LoaderID:        network.LoaderID(id),
		DocumentURL:     docURL,
		Request:         &network.Request{URL: url, Method: "GET"},
		Timestamp:       network.MonotonicTime(ts),
		WallTime:        network.TimeSinceEpoch(ts),
		Type:            network.ResourceTypeDocument,
		FrameID:         frame,
		RedirectResponse: redirect,
	}
}

func respEvent(id network.RequestID, status int64, url string, ts float64, frame cdp.FrameID) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		RequestID: id,
		Timestamp: network.MonotonicTime(ts),
		Type:      network.ResourceTypeDocument,
		FrameID:   frame,
		Response: &network.Response{
			URL:    url,
			Status: status,
		},
	}
}

func TestProcess_StaticPageSingleRequest(t *testing.T) {
	frame := cdp.FrameID("frame1")
	scanID := uuid.New()

	req := reqEvent("r1", "http://example/", "http://example/", frame, 1.0, nil)
	resp := respEvent("r1", 200, "http://example/", 1.1, frame)

	networkID := network.RequestID("r1")
	paused := scanmodel.PausedResponse{
		Event: &fetch.EventRequestPaused{
			RequestID:          "f1",
			NetworkID:          &networkID,
			ResponseStatusCode: 200,
		},
		Body:       []byte("hello"),
		SHA256Hash: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	}

	record := Process(Input{
		ScanID:          scanID,
		ScanURL:         "http://example/",
		Requests:        []*network.EventRequestWillBeSent{req},
		Responses:       []*network.EventResponseReceived{resp},
		PausedResponses: []scanmodel.PausedResponse{paused},
	}, fakeASN{})

	require.Len(t, record.Requests, 1)
	entry := record.Requests[0]
	require.NotNil(t, entry.Response)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", entry.Response.SHA256Hash)
	assert.Equal(t, "http://example/", record.ScanInfo.FinalURL)
	assert.Contains(t, record.ExtractedData.Hashes, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
}

func TestProcess_RedirectChain(t *testing.T) {
	frame := cdp.FrameID("frame1")
	scanID := uuid.New()

	reqA := reqEvent("r1", "http://a/", "http://a/", frame, 1.0, nil)
	// second hop: same request-id (folded as redirect group), later doc url
	reqB := reqEvent("r1", "http://b/", "http://b/", frame, 2.0, &network.Response{URL: "http://a/", Status: 302})
	respB := respEvent("r1", 200, "http://b/", 2.1, frame)

	record := Process(Input{
		ScanID:    scanID,
		ScanURL:   "http://a/",
		Requests:  []*network.EventRequestWillBeSent{reqA, reqB},
		Responses: []*network.EventResponseReceived{respB},
	}, fakeASN{})

	require.Len(t, record.Requests, 1)
	group := record.Requests[0]
	assert.True(t, group.IsGroup())
	require.Len(t, group.Requests, 2)
	assert.Equal(t, group.Requests[0].RequestID, group.Requests[1].RequestID)
	assert.LessOrEqual(t, group.Requests[0].Timestamp, group.Requests[1].Timestamp)

	assert.Equal(t, "http://b/", record.ScanInfo.FinalURL)
	require.Len(t, record.ExtractedData.Redirects, 1)
	assert.Equal(t, []string{"http://a/", "http://b/"}, record.ExtractedData.Redirects[0])
}

func TestProcess_OversizedBodyNoHash(t *testing.T) {
	frame := cdp.FrameID("frame1")
	req := reqEvent("r1", "http://example/", "http://example/", frame, 1.0, nil)
	resp := respEvent("r1", 200, "http://example/", 1.1, frame)

	record := Process(Input{
		ScanID:    uuid.New(),
		ScanURL:   "http://example/",
		Requests:  []*network.EventRequestWillBeSent{req},
		Responses: []*network.EventResponseReceived{resp},
		// no paused-response captured: body exceeded cap upstream in monitor
	}, fakeASN{})

	require.Len(t, record.Requests, 1)
	require.NotNil(t, record.Requests[0].Response)
	assert.Empty(t, record.Requests[0].Response.SHA256Hash)
	assert.Empty(t, record.ExtractedData.Hashes)
}

func TestProcess_ExcludesChromeScheme(t *testing.T) {
	frame := cdp.FrameID("frame1")
	req := reqEvent("r1", "chrome://settings/", "chrome://settings/", frame, 1.0, nil)

	record := Process(Input{
		ScanID:   uuid.New(),
		ScanURL:  "http://example/",
		Requests: []*network.EventRequestWillBeSent{req},
	}, fakeASN{})

	assert.Empty(t, record.Requests)
}

func TestProcess_FinalURLDefaultsToScanURLWithoutRedirect(t *testing.T) {
	record := Process(Input{
		ScanID:  uuid.New(),
		ScanURL: "http://example/",
	}, fakeASN{})

	assert.Equal(t, "http://example/", record.ScanInfo.FinalURL)
}

func TestCertificateHash_InvariantUnderKeyOrderAndVolatileFields(t *testing.T) {
	a := &network.SecurityDetails{
		Protocol:   "TLS 1.3",
		SubjectName: "example.com",
		Issuer:     "Example CA",
	}
	b := &network.SecurityDetails{
		SubjectName: "example.com",
		Issuer:      "Example CA",
		Protocol:    "TLS 1.2", // volatile field, differs but must not affect hash
	}

	hashA, _ := certificateHashAndCanonical(a)
	hashB, _ := certificateHashAndCanonical(b)
	assert.Equal(t, hashA, hashB)
}

func TestCertificateHash_NilReturnsEmpty(t *testing.T) {
	hash, canonical := certificateHashAndCanonical(nil)
	assert.Equal(t, "", hash)
	assert.Nil(t, canonical)
}
