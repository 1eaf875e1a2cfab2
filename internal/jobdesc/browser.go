package jobdesc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// ErrNoBrowser means no Chrome or Chromium binary was found.
var ErrNoBrowser = errors.New("jobdesc: no browser found")

// Browser modes.
const (
	BrowserAuto   = "auto"   // render first, fall back to HTTP
	BrowserAlways = "always" // render only
	BrowserNever  = "never"  // HTTP only
)

// Renderer loads a page in a browser and returns the rendered HTML.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// RodRenderer renders pages in a headless Chrome driven by rod. The browser
// is launched on first use and kept until Close.
type RodRenderer struct {
	Bin       string // empty looks up an installed Chrome or Chromium
	NoSandbox bool
	Timeout   time.Duration

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	bin := r.Bin
	if bin == "" {
		path, ok := launcher.LookPath()
		if !ok {
			return nil, ErrNoBrowser
		}
		bin = path
	}

	l := launcher.New().
		Bin(bin).
		Headless(true).
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")
	if r.NoSandbox {
		l = l.Set("no-sandbox")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("jobdesc: launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("jobdesc: connect to browser: %w", err)
	}
	L_info("jobdesc: browser launched", "bin", bin)
	r.launcher, r.browser = l, browser
	return browser, nil
}

// Render opens rawURL in a stealth page, waits for it to settle and returns
// its HTML.
func (r *RodRenderer) Render(ctx context.Context, rawURL string) (string, error) {
	browser, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("jobdesc: create page: %w", err)
	}
	defer page.Close()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	page = page.Context(ctx).Timeout(timeout)

	start := time.Now()
	if err := page.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("jobdesc: navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		L_warn("jobdesc: page load timed out", "url", rawURL, "took", time.Since(start))
	}
	// single page apps keep loading after the load event
	if err := page.Timeout(3 * time.Second).WaitStable(500 * time.Millisecond); err != nil {
		L_debug("jobdesc: page not stable, reading it anyway", "url", rawURL)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("jobdesc: read page: %w", err)
	}
	L_debug("jobdesc: rendered", "url", rawURL, "bytes", len(html), "took", time.Since(start))
	return html, nil
}

// Close shuts the browser down.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launcher.Cleanup()
	r.browser, r.launcher = nil, nil
	return err
}
