package pagination

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultAnalyticsMarker identifies GA4 collection requests.
const DefaultAnalyticsMarker = "www.google-analytics.com/g/collect"

// DefaultBeaconWindow is how far a beacon may trail the transition it reports.
const DefaultBeaconWindow = 5 * time.Second

// Transition records the moment the URL started reporting a page number.
type Transition struct {
	Page       int
	ObservedAt time.Time
}

// Beacon is an analytics request tied to the page transition it followed.
type Beacon struct {
	URL        string
	ObservedAt time.Time
	Page       int
}

// Correlator matches analytics requests to page transitions by time.
//
// OnBeaconObserved runs from the browser's request interception callback,
// which Playwright dispatches on its own goroutine, so all state is guarded.
type Correlator struct {
	marker string
	window time.Duration

	mu          sync.Mutex
	transitions map[int]time.Time
	beacons     []Beacon
	unmatched   int
}

// NewCorrelator returns a correlator for requests whose URL contains marker.
func NewCorrelator(marker string, window time.Duration) *Correlator {
	if marker == "" {
		marker = DefaultAnalyticsMarker
	}
	if window <= 0 {
		window = DefaultBeaconWindow
	}
	return &Correlator{
		marker:      marker,
		window:      window,
		transitions: make(map[int]time.Time),
	}
}

// OnTransition records that page became current at at. A later transition
// to the same page replaces the earlier one.
func (c *Correlator) OnTransition(page int, at time.Time) {
	c.mu.Lock()
	c.transitions[page] = at
	c.mu.Unlock()
}

// OnBeaconObserved inspects an outbound request. When the URL is an
// analytics beacon and a transition happened within the window before at,
// the beacon is stored against that page and the page is returned.
//
// Among candidate transitions the most recent wins; equal timestamps go to
// the higher page number.
func (c *Correlator) OnBeaconObserved(url string, at time.Time) (int, bool) {
	if !strings.Contains(url, c.marker) {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	page := 0
	var best time.Time
	for p, ts := range c.transitions {
		age := at.Sub(ts)
		if age < 0 || age > c.window {
			continue
		}
		if page == 0 || ts.After(best) || (ts.Equal(best) && p > page) {
			page, best = p, ts
		}
	}
	if page == 0 {
		c.unmatched++
		return 0, false
	}

	c.beacons = append(c.beacons, Beacon{URL: url, ObservedAt: at, Page: page})
	return page, true
}

// Beacons returns the beacons correlated to page.
func (c *Correlator) Beacons(page int) []Beacon {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Beacon
	for _, b := range c.beacons {
		if b.Page == page {
			out = append(out, b)
		}
	}
	return out
}

// BeaconCounts returns the number of correlated beacons per page.
func (c *Correlator) BeaconCounts() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[int]int)
	for _, b := range c.beacons {
		counts[b.Page]++
	}
	return counts
}

// Transitions returns recorded transitions ordered by page number.
func (c *Correlator) Transitions() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Transition, 0, len(c.transitions))
	for p, ts := range c.transitions {
		out = append(out, Transition{Page: p, ObservedAt: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}

// Unmatched is the number of analytics beacons that fell outside every window.
func (c *Correlator) Unmatched() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unmatched
}
