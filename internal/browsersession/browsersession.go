// Package browsersession owns the lifecycle of one browser process and one
// tab for the duration of a single scan: launch, attach RequestMonitor,
// apply the emulation profile, navigate, wait for completion, finalize, and
// guarantee teardown on every exit path.
package browsersession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/desoul99/project-fish/internal/emulation"
	"github.com/desoul99/project-fish/internal/monitor"
)

// Config carries the resolved browser launch configuration (spec §4.3 /
// original_source BrowserConfig).
type Config struct {
	ExecPath         string
	DefaultArgs      []string
	MonitorConfig    monitor.Config
	NavigationExtras []chromedp.ExecAllocatorOption
}

// Session is one browser+tab instance bound to a single scan.
type Session struct {
	cfg    Config
	hasher monitor.Hasher
	logger *slog.Logger
}

// New constructs a Session. hasher is threaded through to the attached
// RequestMonitor so captured bodies are hashed off the event-dispatch
// goroutine.
func New(cfg Config, hasher monitor.Hasher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{cfg: cfg, hasher: hasher, logger: logger}
}

// Result is what one run of a browser session produces for DataProcessor.
type Result struct {
	Monitor    *monitor.Monitor
	TimedOut   bool
	Screenshot []byte
	Cookies    []*network.Cookie
}

// Run launches a browser, opens a tab, attaches monitoring and emulation,
// navigates to url, and waits for either idle-completion or
// pageloadTimeout, whichever comes first (spec §4.3). The browser is always
// torn down before Run returns, regardless of outcome. When
// captureScreenshot is true, a viewport screenshot is taken immediately
// after completion (or timeout), before the tab is closed, since a tab
// cannot be screenshotted once Run has returned. The tab's cookie jar is
// likewise read before teardown, for the same reason: tabCtx carries no
// chromedp target once Run has returned, so a caller reading cookies after
// the fact would silently get nothing back.
func (s *Session) Run(ctx context.Context, scanURL string, device emulation.Device, cookies []*network.CookieParam, proxy string, pageloadTimeout time.Duration, captureScreenshot bool) (*Result, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", true))
	allocOpts = append(allocOpts, chromedp.Flag("ignore-certificate-errors", true))
	allocOpts = append(allocOpts, chromedp.Flag("test-type", true))
	for _, arg := range s.cfg.DefaultArgs {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}
	if proxy != "" {
		allocOpts = append(allocOpts, chromedp.Flag("proxy-server", proxy))
	}
	if s.cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	allocOpts = append(allocOpts, s.cfg.NavigationExtras...)

	totalCtx, cancelTotal := context.WithTimeout(ctx, pageloadTimeout)
	defer cancelTotal()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(totalCtx, allocOpts...)
	defer cancelAlloc()

	// Suppress chromedp's internal diagnostics for devtools events it
	// cannot unmarshal due to version skew between the installed browser
	// and the pinned cdproto definitions; the affected events are simply
	// dropped and are not needed here.
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...any) {}),
		chromedp.WithErrorf(func(string, ...any) {}),
		chromedp.WithDebugf(func(string, ...any) {}),
	)
	defer cancelTab()

	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		return nil, fmt.Errorf("browsersession: open tab: %w", err)
	}

	m := monitor.New(s.cfg.MonitorConfig, s.hasher, s.logger)
	if err := m.Attach(tabCtx); err != nil {
		return nil, fmt.Errorf("browsersession: attach monitor: %w", err)
	}
	defer m.Finalize()

	if err := emulation.Apply(tabCtx, device, cookies); err != nil {
		return nil, fmt.Errorf("browsersession: apply emulation: %w", err)
	}

	start := time.Now()
	navCtx, cancelNav := context.WithTimeout(tabCtx, pageloadTimeout)
	defer cancelNav()

	timedOut := false
	if err := chromedp.Run(navCtx, chromedp.Navigate(normalizeURL(scanURL))); err != nil {
		if !isTimeoutError(err) {
			return nil, fmt.Errorf("browsersession: navigate: %w", err)
		}
		timedOut = true
	}

	if !timedOut {
		elapsed := time.Since(start)
		remaining := pageloadTimeout - elapsed
		if remaining < 0 {
			remaining = 0
		}
		if err := m.WaitForCompletion(tabCtx, remaining); err != nil {
			timedOut = true
		}
	}

	var screenshot []byte
	if captureScreenshot {
		var buf []byte
		if err := chromedp.Run(tabCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
			s.logger.Warn("screenshot capture failed", "error", err)
		} else {
			screenshot = buf
		}
	}

	jar, err := m.Cookies(tabCtx)
	if err != nil {
		s.logger.Warn("read cookie jar failed", "error", err)
	}

	return &Result{Monitor: m, TimedOut: timedOut, Screenshot: screenshot, Cookies: jar}, nil
}

func isTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// normalizeURL prepends https:// when the scan URL carries no scheme
// (spec §3 ScanRequest normalisation).
func normalizeURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}
