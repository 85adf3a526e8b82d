// Package pagination verifies infinite-scroll news listings: scrolling must
// move the URL through the target pages and every page change must be
// reported to analytics.
package pagination

import (
	"context"
	"fmt"
	"time"

	"NewsSmoke/pkg/logger"
)

// Page is the part of a browser page the verifier drives.
type Page interface {
	// Count returns the number of elements matching selector.
	Count(selector string) (int, error)
	// ScrollBy scrolls the window vertically by dy pixels.
	ScrollBy(dy int) error
	// URL returns the page's current URL.
	URL() string
	// Pause yields to the page for d.
	Pause(d time.Duration)
	// OnRequest calls fn with the URL of every outbound request, which is
	// always allowed to proceed. The returned func removes the hook.
	OnRequest(fn func(url string)) (func(), error)
}

// Clock supplies timestamps for deadlines and observed events.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options tunes the scroll loop. Zero fields take the DefaultOptions value.
type Options struct {
	ItemSelector    string
	AnalyticsMarker string
	BeaconWindow    time.Duration
	ScrollStep      int
	ScrollPause     time.Duration
	ReachedSettle   time.Duration
	AnalyticsSettle time.Duration
	StallLimit      int
}

// DefaultOptions returns the settings the news site checks run with.
func DefaultOptions() Options {
	return Options{
		ItemSelector:    ".index-post-block",
		AnalyticsMarker: DefaultAnalyticsMarker,
		BeaconWindow:    DefaultBeaconWindow,
		ScrollStep:      300,
		ScrollPause:     100 * time.Millisecond,
		ReachedSettle:   time.Second,
		AnalyticsSettle: 5 * time.Second,
		StallLimit:      50,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ItemSelector == "" {
		o.ItemSelector = d.ItemSelector
	}
	if o.AnalyticsMarker == "" {
		o.AnalyticsMarker = d.AnalyticsMarker
	}
	if o.BeaconWindow <= 0 {
		o.BeaconWindow = d.BeaconWindow
	}
	if o.ScrollStep == 0 {
		o.ScrollStep = d.ScrollStep
	}
	if o.ScrollPause <= 0 {
		o.ScrollPause = d.ScrollPause
	}
	if o.ReachedSettle <= 0 {
		o.ReachedSettle = d.ReachedSettle
	}
	if o.AnalyticsSettle <= 0 {
		o.AnalyticsSettle = d.AnalyticsSettle
	}
	if o.StallLimit <= 0 {
		o.StallLimit = d.StallLimit
	}
	return o
}

// Verifier runs paginated news checks against one page.
type Verifier struct {
	page  Page
	clock Clock
	opts  Options
	log   *logger.Logger

	correlator *Correlator
}

// NewVerifier returns a verifier for page.
func NewVerifier(page Page, opts Options, log *logger.Logger) *Verifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Verifier{
		page:  page,
		clock: systemClock{},
		opts:  opts.withDefaults(),
		log:   log,
	}
}

// WithClock replaces the wall clock, for tests.
func (v *Verifier) WithClock(c Clock) *Verifier {
	v.clock = c
	return v
}

// Correlator returns the correlator of the most recent check, nil before the
// first one installed its interception hook.
func (v *Verifier) Correlator() *Correlator {
	return v.correlator
}

// session is the state of one attempt to scroll to a target page.
type session struct {
	target       int
	deadline     time.Time
	lastPage     int
	unproductive int
}

// VerifyPaginatedNews scrolls through targets in order and returns the final
// number of news items. Each target must be reached within perPageTimeout and
// must be followed by at least one analytics beacon.
//
// Failures are *Failure values; errors from the page itself are returned
// wrapped as they are.
func (v *Verifier) VerifyPaginatedNews(ctx context.Context, minItems int, targets []int, perPageTimeout time.Duration) (int, error) {
	if minItems < 1 {
		minItems = 1
	}

	baseline, err := v.page.Count(v.opts.ItemSelector)
	if err != nil {
		return 0, fmt.Errorf("count news items: %w", err)
	}
	if baseline < minItems {
		return baseline, &Failure{Kind: KindEmptyContent, Items: baseline}
	}
	v.log.Debug("Initial news count: %d", baseline)

	corr := NewCorrelator(v.opts.AnalyticsMarker, v.opts.BeaconWindow)
	v.correlator = corr

	remove, err := v.page.OnRequest(func(url string) {
		if page, ok := corr.OnBeaconObserved(url, v.clock.Now()); ok {
			v.log.Debug("Detected analytics request for page %d", page)
		}
	})
	if err != nil {
		return baseline, fmt.Errorf("install request interception: %w", err)
	}
	defer remove()

	for _, target := range targets {
		reason, err := v.scrollUntil(ctx, corr, target, baseline, perPageTimeout)
		if err != nil {
			return baseline, err
		}
		if reason != "" {
			items, _ := v.page.Count(v.opts.ItemSelector)
			return items, &Failure{Kind: KindNavigation, Page: target, Reason: reason, Items: items}
		}

		v.page.Pause(v.opts.AnalyticsSettle)
		if len(corr.Beacons(target)) == 0 {
			items, _ := v.page.Count(v.opts.ItemSelector)
			return items, &Failure{Kind: KindNoAnalytics, Page: target, Items: items}
		}
	}

	total, err := v.page.Count(v.opts.ItemSelector)
	if err != nil {
		return 0, fmt.Errorf("count news items: %w", err)
	}
	v.log.Debug("Total news found: %d, final URL: %s", total, v.page.URL())
	for page, n := range corr.BeaconCounts() {
		v.log.Debug("Page %d: %d analytics requests", page, n)
	}
	return total, nil
}

// scrollUntil scrolls until the URL reports target. It returns an empty
// reason on success, ReasonTimeout or ReasonStall when giving up, and a
// non-nil error only for page or context errors.
func (v *Verifier) scrollUntil(ctx context.Context, corr *Correlator, target, baseline int, timeout time.Duration) (string, error) {
	s := session{
		target:   target,
		deadline: v.clock.Now().Add(timeout),
		lastPage: PageFromURL(v.page.URL()),
	}

	for v.clock.Now().Before(s.deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := v.page.ScrollBy(v.opts.ScrollStep); err != nil {
			return "", fmt.Errorf("scroll: %w", err)
		}
		v.page.Pause(v.opts.ScrollPause)

		current := PageFromURL(v.page.URL())
		if current != s.lastPage {
			corr.OnTransition(current, v.clock.Now())
			v.log.Debug("URL changed to page %d", current)
			s.lastPage = current
		}
		if current == s.target {
			v.log.Debug("Reached target page %d", s.target)
			v.page.Pause(v.opts.ReachedSettle)
			return "", nil
		}

		count, err := v.page.Count(v.opts.ItemSelector)
		if err != nil {
			return "", fmt.Errorf("count news items: %w", err)
		}
		if count > baseline {
			s.unproductive = 0
		} else {
			s.unproductive++
		}
		if s.unproductive > v.opts.StallLimit {
			v.log.Warn("Scroll limit reached while looking for page %d", s.target)
			return ReasonStall, nil
		}
	}

	v.log.Warn("Timeout while looking for page %d", s.target)
	return ReasonTimeout, nil
}
