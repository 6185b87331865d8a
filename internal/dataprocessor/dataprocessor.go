// Package dataprocessor assembles the canonical ScanRecord from one scan's
// accumulated devtools events: it folds redirect chains, enriches redirect
// and final responses with certificate hashes and ASN lookups, attaches
// captured body hashes, sweeps every event once for extracted artefacts,
// and picks the scan's final URL. Process is a pure function of its input;
// it performs no I/O itself.
package dataprocessor

import (
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/google/uuid"

	"github.com/desoul99/project-fish/internal/scanmodel"
)

// ASNLookup resolves an IP address to an autonomous system number. Callers
// pass a geoip-backed implementation; Process never touches the database
// directly, keeping the transformation pure and independently testable.
type ASNLookup interface {
	Lookup(ip string) (string, error)
}

// Input is everything RequestMonitor accumulated over one scan.
type Input struct {
	ScanID          uuid.UUID
	ScanURL         string
	Requests        []*network.EventRequestWillBeSent
	Responses       []*network.EventResponseReceived
	PausedResponses []scanmodel.PausedResponse
	Cookies         []*network.Cookie
	ConsoleLogs     []scanmodel.RawConsoleEntry
}

var redirectStatusSet = map[int64]bool{
	300: true, 301: true, 302: true, 303: true, 304: true, 305: true, 306: true, 307: true, 308: true,
}

// Process builds the ScanRecord for one scan (spec §4.5).
func Process(in Input, asn ASNLookup) scanmodel.ScanRecord {
	initialFrameID := pickInitialFrame(in.Requests)

	order, index := encodeAndFold(in.Requests, asn)
	attachResponses(order, index, in.Responses, in.PausedResponses, asn)

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Request.Timestamp < order[j].Request.Timestamp
	})
	for _, entry := range order {
		if entry.IsGroup() {
			sort.SliceStable(entry.Requests, func(i, j int) bool {
				return entry.Requests[i].Timestamp < entry.Requests[j].Timestamp
			})
		}
	}

	extracted := sweep(order, in.Cookies, in.ConsoleLogs)

	info := walkFinalURL(in.ScanURL, initialFrameID, order, &extracted)

	entries := make([]scanmodel.RequestEntry, len(order))
	for i, e := range order {
		entries[i] = *e
	}

	return scanmodel.ScanRecord{
		ScanID:        in.ScanID,
		ScanInfo:      info,
		Requests:      entries,
		ExtractedData: extracted,
	}
}

// pickInitialFrame returns the frame-id of the first request that carries
// one (spec §4.5 step 1).
func pickInitialFrame(reqs []*network.EventRequestWillBeSent) string {
	for _, ev := range reqs {
		if ev.FrameID != "" {
			return string(ev.FrameID)
		}
	}
	return ""
}

func isChromeScheme(u string) bool {
	return strings.HasPrefix(u, "chrome")
}

// encodeAndFold implements spec §4.5 steps 2-4: filter chrome-scheme
// requests, encode the retained field projection, fold repeated
// request-ids into redirect groups, and enrich any embedded
// redirect_response with its certificate hash and ASN.
func encodeAndFold(reqs []*network.EventRequestWillBeSent, asn ASNLookup) ([]*scanmodel.RequestEntry, map[network.RequestID]int) {
	order := make([]*scanmodel.RequestEntry, 0, len(reqs))
	index := make(map[network.RequestID]int, len(reqs))

	for _, ev := range reqs {
		initiatorURL := ""
		if ev.Initiator != nil {
			initiatorURL = ev.Initiator.URL
		}
		if ev.Request != nil && (isChromeScheme(ev.Request.URL) || isChromeScheme(initiatorURL)) {
			continue
		}

		er := &scanmodel.EncodedRequest{
			Request:              ev.Request,
			RequestID:            ev.RequestID,
			LoaderID:             ev.LoaderID,
			DocumentURL:          ev.DocumentURL,
			Timestamp:            float64(ev.Timestamp),
			WallTime:             float64(ev.WallTime),
			Initiator:            ev.Initiator,
			RedirectHasExtraInfo: ev.RedirectHasExtraInfo,
			Type:                 ev.Type,
			FrameID:              string(ev.FrameID),
			HasUserGesture:       ev.HasUserGesture,
		}

		if ev.RedirectResponse != nil {
			er.RedirectResponse = enrichRedirectResponse(ev.RedirectResponse, asn)
		}

		if idx, ok := index[ev.RequestID]; ok {
			entry := order[idx]
			if !entry.IsGroup() {
				entry.Requests = []*scanmodel.EncodedRequest{entry.Request}
			}
			entry.Requests = append(entry.Requests, er)
			entry.Request = er
		} else {
			order = append(order, &scanmodel.RequestEntry{Request: er})
			index[ev.RequestID] = len(order) - 1
		}
	}

	return order, index
}

func enrichRedirectResponse(resp *network.Response, asn ASNLookup) *scanmodel.RedirectResponseInfo {
	copyResp := *resp
	certHash, certDetails := certificateHashAndCanonical(copyResp.SecurityDetails)
	copyResp.SecurityDetails = nil
	copyResp.Timing = nil

	info := &scanmodel.RedirectResponseInfo{
		Response:           &copyResp,
		RemoteIPAddress:    resp.RemoteIPAddress,
		CertificateHash:    certHash,
		CertificateDetails: certDetails,
	}
	if resp.RemoteIPAddress != "" && asn != nil {
		if a, err := asn.Lookup(resp.RemoteIPAddress); err == nil {
			info.ASN = a
		}
	}
	return info
}

// attachResponses implements spec §4.5 step 5: for every top-level entry
// (never a grouped redirect's inner element), attach the non-redirect
// response sharing its request-id, replace its securityDetails with the
// certificate hash, strip timing, attach ASN, and attach the body hash
// from any paused-response matching both request-id and status code.
func attachResponses(order []*scanmodel.RequestEntry, index map[network.RequestID]int, responses []*network.EventResponseReceived, paused []scanmodel.PausedResponse, asn ASNLookup) {
	for _, ev := range responses {
		if ev.Response == nil || redirectStatusSet[ev.Response.Status] {
			continue
		}
		idx, ok := index[ev.RequestID]
		if !ok {
			continue
		}
		entry := order[idx]

		copyResp := *ev.Response
		certHash, certDetails := certificateHashAndCanonical(copyResp.SecurityDetails)
		copyResp.SecurityDetails = nil
		copyResp.Timing = nil

		er := &scanmodel.EncodedResponse{
			Response:           &copyResp,
			RequestID:          ev.RequestID,
			LoaderID:           ev.LoaderID,
			Timestamp:          float64(ev.Timestamp),
			Type:               ev.Type,
			HasExtraInfo:       ev.HasExtraInfo,
			FrameID:            string(ev.FrameID),
			CertificateHash:    certHash,
			CertificateDetails: certDetails,
		}
		if ev.Response.RemoteIPAddress != "" && asn != nil {
			if a, err := asn.Lookup(ev.Response.RemoteIPAddress); err == nil {
				er.ASN = a
			}
		}

		for _, pr := range paused {
			if pr.Event == nil || pr.Event.NetworkID == nil {
				continue
			}
			if *pr.Event.NetworkID == ev.RequestID && pr.Event.ResponseStatusCode == ev.Response.Status && pr.SHA256Hash != "" {
				er.SHA256Hash = pr.SHA256Hash
				break
			}
		}

		entry.Response = er
	}
}

// sweep implements spec §4.5 step 6: a single walk over every retained
// request/response collecting urls, ips, domains, servers, hashes,
// certificates, asns and the raw cookies/console logs. asns are taken from
// the ASN already attached to each response and redirect response above,
// not looked up again from the ips set.
func sweep(order []*scanmodel.RequestEntry, cookies []*network.Cookie, consoleLogs []scanmodel.RawConsoleEntry) scanmodel.ExtractedData {
	urls := newStringSet()
	ips := newStringSet()
	domains := newStringSet()
	servers := newStringSet()
	hashes := newStringSet()
	certs := newStringSet()
	asns := newStringSet()

	visit := func(er *scanmodel.EncodedRequest) {
		if er == nil || er.Request == nil {
			return
		}
		addURL(urls, domains, er.Request.URL)
		if er.RedirectResponse != nil {
			if ip := er.RedirectResponse.RemoteIPAddress; isIP(ip) {
				ips.add(ip)
			}
			if er.RedirectResponse.CertificateHash != "" {
				certs.add(er.RedirectResponse.CertificateHash)
			}
			if er.RedirectResponse.ASN != "" {
				asns.add(er.RedirectResponse.ASN)
			}
		}
	}

	for _, entry := range order {
		visit(entry.Request)
		for _, inner := range entry.Requests {
			visit(inner)
		}

		if entry.Response == nil {
			continue
		}
		rsp := entry.Response
		if rsp.Response != nil {
			addURL(urls, domains, rsp.Response.URL)
			if ip := rsp.Response.RemoteIPAddress; isIP(ip) {
				ips.add(ip)
			}
			if s, ok := headerValue(rsp.Response.Headers, "server"); ok {
				servers.add(s)
			}
		}
		if rsp.CertificateHash != "" {
			certs.add(rsp.CertificateHash)
		}
		if rsp.ASN != "" {
			asns.add(rsp.ASN)
		}
		if rsp.SHA256Hash != "" {
			hashes.add(rsp.SHA256Hash)
		}
	}

	logs := make([]scanmodel.ConsoleLogEntry, 0, len(consoleLogs))
	for _, l := range consoleLogs {
		logs = append(logs, scanmodel.ConsoleLogEntry{Level: l.Level, Text: l.Text, Timestamp: l.Timestamp})
	}

	return scanmodel.ExtractedData{
		URLs:         urls.list(),
		IPs:          ips.list(),
		Domains:      domains.list(),
		ASNs:         asns.list(),
		Servers:      servers.list(),
		Hashes:       hashes.list(),
		Certificates: certs.list(),
		Cookies:      cookies,
		ConsoleLogs:  logs,
		Redirects:    nil,
	}
}

// walkFinalURL implements spec §4.5 step 8: starting from scanURL, walk
// requests belonging to initialFrameID in timestamp order; each time the
// document_url changes, advance final_url and capture the attached
// response's remote_ip/asn/certificate/domain. For groups whose last URL
// equals the final URL, append the chain's URL sequence to Redirects.
func walkFinalURL(scanURL, initialFrameID string, order []*scanmodel.RequestEntry, extracted *scanmodel.ExtractedData) scanmodel.ScanInfo {
	info := scanmodel.ScanInfo{
		URL:            scanURL,
		FinalURL:       scanURL,
		InitialFrameID: initialFrameID,
		Domain:         hostnameOf(scanURL),
	}

	for _, entry := range order {
		if entry.Request == nil || entry.Request.FrameID != initialFrameID {
			continue
		}
		if entry.Request.DocumentURL == "" || entry.Request.DocumentURL == info.FinalURL {
			continue
		}

		info.FinalURL = entry.Request.DocumentURL
		info.Domain = hostnameOf(info.FinalURL)

		if entry.Response != nil && entry.Response.Response != nil {
			info.IP = entry.Response.Response.RemoteIPAddress
			info.ASN = entry.Response.ASN
			info.CertificateHash = entry.Response.CertificateHash
		}

		if entry.IsGroup() {
			chain := make([]string, 0, len(entry.Requests))
			for _, inner := range entry.Requests {
				if inner.Request != nil {
					chain = append(chain, inner.Request.URL)
				}
			}
			if len(chain) > 0 && chain[len(chain)-1] == info.FinalURL {
				extracted.Redirects = append(extracted.Redirects, chain)
			}
		}
	}

	return info
}

func addURL(urls, domains *stringSet, raw string) {
	if raw == "" {
		return
	}
	if strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "blob:") {
		return
	}
	urls.add(raw)
	if h := hostnameOf(raw); h != "" {
		domains.add(h)
	}
}

func hostnameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func isIP(s string) bool {
	return s != "" && net.ParseIP(s) != nil
}

func headerValue(headers network.Headers, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

type stringSet struct {
	seen  map[string]struct{}
	order []string
}

func newStringSet() *stringSet {
	return &stringSet{seen: make(map[string]struct{})}
}

func (s *stringSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *stringSet) list() []string {
	if len(s.order) == 0 {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
