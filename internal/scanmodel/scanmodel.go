// Package scanmodel defines the data shapes that flow through the scan
// pipeline: the inbound ScanRequest, the raw devtools events RequestMonitor
// accumulates, and the ScanRecord DataProcessor assembles for persistence.
package scanmodel

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/google/uuid"
)

// ErrValidation marks a ScanRequest as invalid in a way that will never
// succeed on retry (spec §7 kind 1, "immediate reject, no requeue") —
// as opposed to a transient processing failure, which should be
// reject-requeued. busconsumer checks errors.Is(err, ErrValidation) to
// choose which Reject to issue; any component that rejects a request for
// a reason inherent to the request itself (not infrastructure) should wrap
// its error with %w around this sentinel.
var ErrValidation = errors.New("scanmodel: invalid scan request")

// Cookie is one cookie supplied on a ScanRequest, applied to the tab before
// navigation via EmulationProfile.Apply.
type Cookie struct {
	Name   string            `json:"name"`
	Value  string            `json:"value"`
	Domain string            `json:"domain"`
	Path   string            `json:"path"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// ScanRequest is the validated, decoded form of a bus message (see
// busconsumer for decode/validate).
type ScanRequest struct {
	URL             string
	EmulationDevice string
	Proxy           string
	PageCookies     []Cookie
}

// PausedResponse pairs a fetch-stage paused event with its captured body,
// when one was captured per the policy in monitor's maybeCaptureBody.
type PausedResponse struct {
	Event      *fetch.EventRequestPaused
	Body       []byte
	SHA256Hash string
}

// RedirectResponseInfo is the enriched form of a requestWillBeSent event's
// embedded redirect response (spec §4.5 step 4): the certificate hash
// replaces the raw securityDetails, ASN is attached when a remote IP was
// present, and timing is stripped entirely (Response.Timing is left nil).
type RedirectResponseInfo struct {
	Response        *network.Response `json:"response"`
	RemoteIPAddress string            `json:"remote_ip_address,omitempty"`
	ASN             string            `json:"asn,omitempty"`
	CertificateHash string            `json:"certificate_hash,omitempty"`

	// CertificateDetails is the canonical, volatile-field-stripped JSON
	// that CertificateHash is a digest of. Not part of the persisted
	// scan record (json:"-"); ScanOrchestrator reads it to build the
	// CertificateDocument for ContentStore.PutCertificate.
	CertificateDetails json.RawMessage `json:"-"`
}

// EncodedRequest is the bounded field projection of a requestWillBeSent
// event kept in a ScanRecord (spec §6 "Encoded request projection").
type EncodedRequest struct {
	Request              *network.Request       `json:"request"`
	RequestID            network.RequestID       `json:"request_id"`
	LoaderID             network.LoaderID        `json:"loader_id"`
	DocumentURL          string                  `json:"document_url"`
	Timestamp            float64                 `json:"timestamp"`
	WallTime             float64                 `json:"wall_time"`
	Initiator            *network.Initiator      `json:"initiator"`
	RedirectHasExtraInfo bool                    `json:"redirect_has_extra_info"`
	RedirectResponse     *RedirectResponseInfo   `json:"redirect_response,omitempty"`
	Type                 network.ResourceType    `json:"type"`
	FrameID              string                  `json:"frame_id"`
	HasUserGesture       bool                    `json:"has_user_gesture"`
}

// EncodedResponse is the bounded field projection of a responseReceived
// event kept in a ScanRecord (spec §6 "Encoded response projection"),
// enriched per spec §4.5 step 5: securityDetails is replaced by the
// certificate hash, ASN is standardised at this (response) level per
// spec §9's resolution of the source's inconsistent placement, and timing
// is stripped (Response.Timing is left nil).
type EncodedResponse struct {
	Response     *network.Response    `json:"response"`
	RequestID    network.RequestID    `json:"request_id"`
	LoaderID     network.LoaderID     `json:"loader_id"`
	Timestamp    float64              `json:"timestamp"`
	Type         network.ResourceType `json:"type"`
	HasExtraInfo bool                 `json:"has_extra_info"`
	FrameID      string               `json:"frame_id"`
	SHA256Hash   string               `json:"sha256_hash,omitempty"`
	ASN          string               `json:"asn,omitempty"`
	CertificateHash string            `json:"certificate_hash,omitempty"`

	// CertificateDetails mirrors RedirectResponseInfo.CertificateDetails.
	CertificateDetails json.RawMessage `json:"-"`
}

// RequestEntry is one element of ScanRecord.Requests: either a single
// request/response pair, or a redirect group where Requests holds the
// chain and Request/Response describe the last hop.
type RequestEntry struct {
	Request  *EncodedRequest   `json:"request"`
	Response *EncodedResponse  `json:"response,omitempty"`
	Requests []*EncodedRequest `json:"requests,omitempty"`
}

// IsGroup reports whether this entry represents a folded redirect chain.
func (e RequestEntry) IsGroup() bool {
	return len(e.Requests) > 0
}

// ScanInfo is the scan's top-level summary (spec §3).
type ScanInfo struct {
	URL             string `json:"url"`
	FinalURL        string `json:"final_url"`
	Domain          string `json:"domain"`
	IP              string `json:"ip"`
	ASN             string `json:"asn"`
	CertificateHash string `json:"certificate_hash"`
	InitialFrameID  string `json:"initial_frame_id"`
	ScreenshotHash  string `json:"screenshot_hash,omitempty"`
}

// ConsoleLogEntry is one captured console message.
type ConsoleLogEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractedData holds the sets-as-lists artefacts swept from a scan (spec
// §3). Fields that are conceptually sets are deduplicated and rendered as
// lists by DataProcessor before assembly.
type ExtractedData struct {
	URLs         []string           `json:"urls"`
	IPs          []string           `json:"ips"`
	Domains      []string           `json:"domains"`
	ASNs         []string           `json:"asns"`
	Servers      []string           `json:"servers"`
	Hashes       []string           `json:"hashes"`
	Certificates []string           `json:"certificates"`
	Cookies      []*network.Cookie  `json:"cookies"`
	ConsoleLogs  []ConsoleLogEntry  `json:"console_logs"`
	Redirects    [][]string         `json:"redirects"`
}

// ScanRecord is the canonical persisted artefact describing one URL scan
// (spec §3).
type ScanRecord struct {
	ScanID        uuid.UUID      `json:"scan_id"`
	ScanInfo      ScanInfo       `json:"scan_info"`
	Requests      []RequestEntry `json:"requests"`
	ExtractedData ExtractedData  `json:"extracted_data"`
}

// BodyDocument is the body collection's persisted shape (spec §6).
type BodyDocument struct {
	SHA256Hash string `json:"sha256_hash" bson:"sha256_hash"`
	Body       []byte `json:"body" bson:"body"`
}

// CertificateDocument is the certificate collection's persisted shape
// (spec §6), keyed by the hash described in spec §4.5.
type CertificateDocument struct {
	SHA256SecurityDetails string          `json:"sha256_securityDetails" bson:"sha256_securityDetails"`
	SecurityDetails       json.RawMessage `json:"securityDetails" bson:"securityDetails"`
}

// ConsoleSource distinguishes runtime console-API messages from the
// browser's own Log domain entries, both of which feed ConsoleLogEntry.
type ConsoleSource string

const (
	ConsoleSourceRuntime ConsoleSource = "runtime"
	ConsoleSourceLog     ConsoleSource = "log"
)

// RawConsoleEntry is an internal accumulator type; kept here so monitor and
// dataprocessor share one definition.
type RawConsoleEntry struct {
	Source    ConsoleSource
	Level     string
	Text      string
	Timestamp time.Time
}
