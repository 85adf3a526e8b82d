// Package browser drives one headless Chromium page through Playwright.
// A Session is the browser surface the site checks consume: navigation, DOM
// queries, scroll injection, request interception and screenshots.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"NewsSmoke/pkg/logger"
	"NewsSmoke/pkg/utils"

	"github.com/playwright-community/playwright-go"
)

// Options configures the browser session.
type Options struct {
	Headless       bool
	Devtools       bool
	DefaultTimeout time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	ScreenshotDir  string
	// Launch is the retry policy for starting the Playwright driver.
	Launch utils.RetryConfig
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		DefaultTimeout: 30 * time.Second,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		ScreenshotDir:  ".",
		Launch: utils.RetryConfig{
			MaxRetries:   2,
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Session owns the Playwright driver, one browser, one context and one page.
type Session struct {
	opts *Options
	log  *logger.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page

	mu     sync.Mutex
	closed bool
	now    func() time.Time
}

// Link is an anchor found in a navigation menu.
type Link struct {
	Text string
	Href string
}

// Launch starts Playwright and opens a page. The caller must Close the
// session on every exit path.
func Launch(ctx context.Context, opts *Options, log *logger.Logger) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if log == nil {
		log = logger.Nop()
	}

	var pw *playwright.Playwright
	err := utils.ExecuteWithRetryContext(ctx, func() error {
		var runErr error
		pw, runErr = playwright.Run(&playwright.RunOptions{Verbose: false})
		return runErr
	}, opts.Launch, func(err error, next time.Duration) {
		log.Warn("Playwright driver failed to start, retrying in %s: %v", next, err)
	})
	if err != nil {
		return nil, fmt.Errorf("start playwright (run with -install first?): %w", err)
	}

	s := &Session{opts: opts, log: log, pw: pw, now: time.Now}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Devtools {
		launchOpts.Args = append(launchOpts.Args, "--auto-open-devtools-for-tabs")
	}
	s.browser, err = pw.Chromium.Launch(launchOpts)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight},
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	s.bctx, err = s.browser.NewContext(contextOpts)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("new browser context: %w", err)
	}

	s.page, err = s.bctx.NewPage()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	if opts.DefaultTimeout > 0 {
		s.page.SetDefaultTimeout(millis(opts.DefaultTimeout))
	}

	log.Debug("Browser session started (headless=%v, viewport=%dx%d)", opts.Headless, opts.ViewportWidth, opts.ViewportHeight)
	return s, nil
}

// ──────────────────────────────────────────────────────────
// Navigation and DOM
// ──────────────────────────────────────────────────────────

// Goto navigates the page to url.
func (s *Session) Goto(url string) error {
	if _, err := s.page.Goto(url); err != nil {
		return fmt.Errorf("navigate %q: %w", url, err)
	}
	return nil
}

// URL returns the current page URL.
func (s *Session) URL() string {
	return s.page.URL()
}

// WaitForSelector waits up to timeout for selector to appear.
func (s *Session) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Click clicks selector if it shows up within timeout and reports whether it did.
func (s *Session) Click(selector string, timeout time.Duration) bool {
	el, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil || el == nil {
		return false
	}
	return el.Click() == nil
}

// Fill types value into the input matching selector.
func (s *Session) Fill(selector, value string) error {
	if err := s.page.Locator(selector).First().Fill(value); err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

// Press sends key to the element matching selector.
func (s *Session) Press(selector, key string) error {
	if err := s.page.Locator(selector).First().Press(key); err != nil {
		return fmt.Errorf("press %s on %q: %w", key, selector, err)
	}
	return nil
}

// Count returns the number of elements matching selector.
func (s *Session) Count(selector string) (int, error) {
	n, err := s.page.Locator(selector).Count()
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", selector, err)
	}
	return n, nil
}

// Links returns the anchors matching selector that carry a span label.
func (s *Session) Links(selector string) ([]Link, error) {
	anchors, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}

	var links []Link
	for _, a := range anchors {
		span, err := a.QuerySelector("span")
		if err != nil || span == nil {
			continue
		}
		text, err := span.InnerText()
		if err != nil {
			continue
		}
		href, err := a.GetAttribute("href")
		if err != nil {
			continue
		}
		links = append(links, Link{Text: strings.TrimSpace(text), Href: href})
	}
	return links, nil
}

// ScrollBy scrolls the window down by dy pixels.
func (s *Session) ScrollBy(dy int) error {
	if _, err := s.page.Evaluate("dy => window.scrollBy(0, dy)", dy); err != nil {
		return fmt.Errorf("scroll by %d: %w", dy, err)
	}
	return nil
}

// Pause lets the page run for d.
func (s *Session) Pause(d time.Duration) {
	s.page.WaitForTimeout(millis(d))
}

// OnRequest routes every request through fn and then lets it continue.
// The returned func removes the route.
func (s *Session) OnRequest(fn func(url string)) (func(), error) {
	handler := func(route playwright.Route) {
		fn(route.Request().URL())
		if err := route.Continue(); err != nil {
			s.log.Debug("continue %s: %v", route.Request().URL(), err)
		}
	}
	if err := s.page.Route("**/*", handler); err != nil {
		return nil, fmt.Errorf("install route: %w", err)
	}
	return func() {
		if err := s.page.Unroute("**/*", handler); err != nil {
			s.log.Debug("remove route: %v", err)
		}
	}, nil
}

// ──────────────────────────────────────────────────────────
// Diagnostics
// ──────────────────────────────────────────────────────────

// Screenshot saves a full-page PNG named after the check and returns its path.
func (s *Session) Screenshot(name string) (string, error) {
	if err := os.MkdirAll(s.opts.ScreenshotDir, 0755); err != nil {
		return "", fmt.Errorf("screenshot dir: %w", err)
	}
	path := filepath.Join(s.opts.ScreenshotDir, ScreenshotName(name, s.now()))
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	return path, nil
}

// ScreenshotName builds screenshot_<name>_<YYYYmmdd_HHMMSS>.png, flattening
// path separators in name.
func ScreenshotName(name string, at time.Time) string {
	name = strings.Trim(name, "/")
	name = strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(name)
	return fmt.Sprintf("screenshot_%s_%s.png", name, at.Format("20060102_150405"))
}

// ──────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────

// Close releases the page, context, browser and driver. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []string
	if s.bctx != nil {
		if err := s.bctx.Close(); err != nil {
			errs = append(errs, "context: "+err.Error())
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, "browser: "+err.Error())
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, "driver: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close browser session: %s", strings.Join(errs, "; "))
	}
	return nil
}

func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
