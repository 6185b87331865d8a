package orchestrator

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desoul99/project-fish/internal/browsersession"
	"github.com/desoul99/project-fish/internal/emulation"
	"github.com/desoul99/project-fish/internal/hasher"
	"github.com/desoul99/project-fish/internal/monitor"
	"github.com/desoul99/project-fish/internal/scanmodel"
	"github.com/desoul99/project-fish/internal/storage"
)

type fakeSessions struct {
	result *browsersession.Result
	err    error

	lastCaptureScreenshot bool
}

func (f *fakeSessions) Run(ctx context.Context, scanURL string, device emulation.Device, cookies []*network.CookieParam, proxy string, pageloadTimeout time.Duration, captureScreenshot bool) (*browsersession.Result, error) {
	f.lastCaptureScreenshot = captureScreenshot
	return f.result, f.err
}

type fakeASN struct{}

func (fakeASN) Lookup(ip string) (string, error) { return "AS1", nil }

type fakeStore struct {
	scans []scanmodel.ScanRecord
	certs []scanmodel.CertificateDocument
}

func (s *fakeStore) PutScan(ctx context.Context, record scanmodel.ScanRecord) error {
	s.scans = append(s.scans, record)
	return nil
}

func (s *fakeStore) PutBody(ctx context.Context, doc scanmodel.BodyDocument) error {
	return nil
}

func (s *fakeStore) PutCertificate(ctx context.Context, doc scanmodel.CertificateDocument) error {
	s.certs = append(s.certs, doc)
	return nil
}

type fakeUploader struct {
	uploaded int
}

func (u *fakeUploader) Upload(ctx context.Context, req *storage.UploadRequest) (*storage.UploadResult, error) {
	u.uploaded++
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(req.Content)
	return &storage.UploadResult{ObjectName: req.ObjectName}, nil
}

func emptyMonitorResult() *browsersession.Result {
	m := monitor.New(monitor.DefaultConfig(), nil, nil)
	return &browsersession.Result{Monitor: m}
}

func TestRun_PersistsScanRecord(t *testing.T) {
	store := &fakeStore{}
	sessions := &fakeSessions{result: emptyMonitorResult()}

	o := &Orchestrator{
		Sessions: sessions,
		ASN:      fakeASN{},
		Store:    store,
		Hasher:   hasher.New(1),
	}
	defer o.Hasher.Close()

	req := scanmodel.ScanRequest{URL: "http://example.com"}
	record, err := o.Run(context.Background(), req, Deadlines{Pageload: time.Second, Browser: 2 * time.Second})

	require.NoError(t, err)
	require.Len(t, store.scans, 1)
	assert.Equal(t, record.ScanID, store.scans[0].ScanID)
	assert.False(t, sessions.lastCaptureScreenshot, "no uploader configured, screenshot must not be requested")
}

func TestRun_UnknownEmulationDeviceRejectsBeforeSession(t *testing.T) {
	sessions := &fakeSessions{result: emptyMonitorResult()}
	reg, err := emulation.Load([]byte("devices: []\n"))
	require.NoError(t, err)

	o := &Orchestrator{
		Sessions:  sessions,
		Emulation: reg,
		ASN:       fakeASN{},
		Store:     &fakeStore{},
		Hasher:    hasher.New(1),
	}
	defer o.Hasher.Close()

	req := scanmodel.ScanRequest{URL: "http://example.com", EmulationDevice: "does-not-exist"}
	_, err = o.Run(context.Background(), req, Deadlines{Pageload: time.Second, Browser: time.Second})

	require.Error(t, err)
	assert.ErrorIs(t, err, scanmodel.ErrValidation, "unknown emulation device must classify as reject-no-requeue")
}

func TestRun_CapturesScreenshotWhenUploaderConfigured(t *testing.T) {
	sessions := &fakeSessions{result: &browsersession.Result{
		Monitor:    monitor.New(monitor.DefaultConfig(), nil, nil),
		Screenshot: []byte("fake-png"),
	}}
	uploader := &fakeUploader{}

	o := &Orchestrator{
		Sessions: sessions,
		ASN:      fakeASN{},
		Store:    &fakeStore{},
		Hasher:   hasher.New(1),
		Uploader: uploader,
	}
	defer o.Hasher.Close()

	req := scanmodel.ScanRequest{URL: "http://example.com"}
	record, err := o.Run(context.Background(), req, Deadlines{Pageload: time.Second, Browser: 2 * time.Second})

	require.NoError(t, err)
	assert.True(t, sessions.lastCaptureScreenshot)
	assert.Equal(t, 1, uploader.uploaded)
	assert.NotEmpty(t, record.ScanInfo.ScreenshotHash)
}
