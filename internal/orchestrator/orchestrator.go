// Package orchestrator ties one scan together end to end: it generates a
// scan ID, runs BrowserSession within the overall browser-timeout deadline,
// hands the monitor's accumulated state to DataProcessor, hashes and uploads
// the optional post-scan screenshot the session captured, and persists
// everything through
// ContentStore. Grounded on the teacher's capture.Capture lifecycle and
// internal/operation's Run bookkeeping, generalised to the full
// scan→persist pipeline (spec §4.7).
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/google/uuid"

	"github.com/desoul99/project-fish/internal/browsersession"
	"github.com/desoul99/project-fish/internal/contentstore"
	"github.com/desoul99/project-fish/internal/dataprocessor"
	"github.com/desoul99/project-fish/internal/emulation"
	"github.com/desoul99/project-fish/internal/hasher"
	"github.com/desoul99/project-fish/internal/scanmodel"
	"github.com/desoul99/project-fish/internal/storage"
)

// Deadlines bounds the three nested timeouts described in spec §5.
type Deadlines struct {
	Pageload time.Duration
	Browser  time.Duration
}

// Orchestrator runs one scan per Run call. It holds no per-scan state
// between calls; every field is a shared, process-lifetime collaborator.
type Orchestrator struct {
	Sessions  SessionFactory
	Emulation *emulation.Registry
	ASN       dataprocessor.ASNLookup
	Store     contentstore.ContentStore
	Hasher    *hasher.Pool

	// Uploader is optional. When nil, screenshots are never requested from
	// Sessions.Run and ScanInfo.ScreenshotHash is left empty.
	Uploader storage.Uploader
	Logger   *slog.Logger
}

// SessionFactory constructs a fresh BrowserSession.Session-shaped
// collaborator per scan. Introduced so tests can substitute a fake browser
// session without chromedp actually launching a browser.
type SessionFactory interface {
	Run(ctx context.Context, scanURL string, device emulation.Device, cookies []*network.CookieParam, proxy string, pageloadTimeout time.Duration, captureScreenshot bool) (*browsersession.Result, error)
}

// Run executes one scan for req and persists the result. Most non-nil
// errors should reject-requeue the originating bus message (spec §7 kind
// 3); an error wrapping scanmodel.ErrValidation — currently just an
// unknown emulation device name — never will, since retrying it cannot
// succeed, and must instead reject-no-requeue (spec §7 kind 1). Callers
// (busconsumer.dispatch) classify which Reject to issue via
// errors.Is(err, scanmodel.ErrValidation).
func (o *Orchestrator) Run(ctx context.Context, req scanmodel.ScanRequest, deadlines Deadlines) (scanmodel.ScanRecord, error) {
	scanID := uuid.New()
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("scan_id", scanID.String(), "url", req.URL)

	device, err := o.deviceFor(req.EmulationDevice)
	if err != nil {
		return scanmodel.ScanRecord{}, fmt.Errorf("orchestrator: resolve emulation device: %w: %w", scanmodel.ErrValidation, err)
	}

	cookies := toCDPCookies(req.PageCookies)

	browserCtx, cancel := context.WithTimeout(ctx, deadlines.Browser)
	defer cancel()

	result, err := o.Sessions.Run(browserCtx, req.URL, device, cookies, req.Proxy, deadlines.Pageload, o.Uploader != nil)
	if err != nil {
		return scanmodel.ScanRecord{}, fmt.Errorf("orchestrator: browser session: %w", err)
	}
	if result.TimedOut {
		logger.Warn("scan timed out before completion; building record from partial state")
	}

	in := dataprocessor.Input{
		ScanID:          scanID,
		ScanURL:         req.URL,
		Requests:        result.Monitor.Requests(),
		Responses:       result.Monitor.Responses(),
		PausedResponses: result.Monitor.PausedResponses(),
		ConsoleLogs:     result.Monitor.ConsoleLogs(),
		Cookies:         result.Cookies,
	}

	record := dataprocessor.Process(in, o.ASN)

	if o.Uploader != nil && len(result.Screenshot) > 0 {
		if hash, err := o.storeScreenshot(ctx, result.Screenshot); err != nil {
			logger.Warn("screenshot upload failed", "error", err)
		} else {
			record.ScanInfo.ScreenshotHash = hash
		}
	}

	if err := o.persist(ctx, record, in.PausedResponses); err != nil {
		return scanmodel.ScanRecord{}, fmt.Errorf("orchestrator: persist: %w", err)
	}

	return record, nil
}

func (o *Orchestrator) deviceFor(name string) (emulation.Device, error) {
	if name == "" {
		return emulation.Device{}, nil
	}
	return o.Emulation.GetByName(name)
}

// storeScreenshot uploads png keyed by its own content hash rather than by
// scan ID, so two scans that land on an identical rendering (e.g. a
// near-empty error page) share one stored object — the same
// content-addressing invariant the content store applies to bodies and
// certificates.
func (o *Orchestrator) storeScreenshot(ctx context.Context, png []byte) (string, error) {
	hash := o.Hasher.Hash(png)

	objectName := fmt.Sprintf("screenshots/%s.png", hash)
	_, err := o.Uploader.Upload(ctx, &storage.UploadRequest{
		ObjectName:  objectName,
		Content:     bytes.NewReader(png),
		ContentType: "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: upload screenshot: %w", err)
	}
	return hash, nil
}

// persist writes the scan record plus every referenced body and
// certificate document (spec §4.7 step 5). Both are deduplicated by hash
// within the call: ContentStore.PutBody/PutCertificate are themselves
// idempotent, but there is no reason to round-trip Mongo/Redis twice for
// the same hash inside one scan.
func (o *Orchestrator) persist(ctx context.Context, record scanmodel.ScanRecord, paused []scanmodel.PausedResponse) error {
	if err := o.Store.PutScan(ctx, record); err != nil {
		return err
	}

	seenBodies := make(map[string]struct{})
	for _, pr := range paused {
		if pr.SHA256Hash == "" || len(pr.Body) == 0 {
			continue
		}
		if _, ok := seenBodies[pr.SHA256Hash]; ok {
			continue
		}
		seenBodies[pr.SHA256Hash] = struct{}{}
		if err := o.Store.PutBody(ctx, scanmodel.BodyDocument{SHA256Hash: pr.SHA256Hash, Body: pr.Body}); err != nil {
			return err
		}
	}

	seenCerts := make(map[string]struct{})
	for _, entry := range record.Requests {
		if err := o.persistCertificate(ctx, entry.Response, seenCerts); err != nil {
			return err
		}
		for _, req := range entry.Requests {
			if req.RedirectResponse == nil {
				continue
			}
			hash := req.RedirectResponse.CertificateHash
			details := req.RedirectResponse.CertificateDetails
			if err := o.putCertificateOnce(ctx, hash, details, seenCerts); err != nil {
				return err
			}
		}
	}

	return nil
}

func (o *Orchestrator) persistCertificate(ctx context.Context, resp *scanmodel.EncodedResponse, seen map[string]struct{}) error {
	if resp == nil {
		return nil
	}
	return o.putCertificateOnce(ctx, resp.CertificateHash, resp.CertificateDetails, seen)
}

func (o *Orchestrator) putCertificateOnce(ctx context.Context, hash string, details []byte, seen map[string]struct{}) error {
	if hash == "" {
		return nil
	}
	if _, ok := seen[hash]; ok {
		return nil
	}
	seen[hash] = struct{}{}
	return o.Store.PutCertificate(ctx, scanmodel.CertificateDocument{
		SHA256SecurityDetails: hash,
		SecurityDetails:       details,
	})
}

func toCDPCookies(cookies []scanmodel.Cookie) []*network.CookieParam {
	if len(cookies) == 0 {
		return nil
	}
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, emulation.ToCDPCookie(c.Name, c.Value, c.Domain, c.Path))
	}
	return out
}
