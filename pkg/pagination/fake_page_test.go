package pagination

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakePage simulates an infinite-scroll listing. Time only moves inside
// Pause; scheduled analytics requests are delivered to the interception hook
// at their exact timestamps while the clock advances.
type fakePage struct {
	clock *fakeClock

	baseURL string
	// pageAfter maps a scroll count to the page the URL switches to.
	pageAfter map[int]int
	// items returns the DOM item count after n scrolls.
	items func(scrolls int) int
	// beaconDelay schedules one analytics request this long after every URL
	// change. Zero disables beacons.
	beaconDelay time.Duration

	scrolls    int
	page       int
	handler    func(url string)
	removed    bool
	pending    []time.Time
	requests   []string
	countErr   error
	installErr error
}

func newFakePage(clock *fakeClock) *fakePage {
	return &fakePage{
		clock:     clock,
		baseURL:   "https://news.example/politics",
		pageAfter: map[int]int{},
		items:     func(int) int { return 12 },
		page:      1,
	}
}

func (p *fakePage) Count(string) (int, error) {
	if p.countErr != nil {
		return 0, p.countErr
	}
	return p.items(p.scrolls), nil
}

func (p *fakePage) ScrollBy(int) error {
	p.scrolls++
	if next, ok := p.pageAfter[p.scrolls]; ok && next != p.page {
		p.page = next
		if p.beaconDelay > 0 {
			p.pending = append(p.pending, p.clock.now.Add(p.beaconDelay))
		}
	}
	return nil
}

func (p *fakePage) URL() string {
	if p.page <= 1 {
		return p.baseURL + "/"
	}
	return fmt.Sprintf("%s/page/%d/", p.baseURL, p.page)
}

func (p *fakePage) Pause(d time.Duration) {
	until := p.clock.now.Add(d)
	sort.Slice(p.pending, func(i, j int) bool { return p.pending[i].Before(p.pending[j]) })
	for len(p.pending) > 0 && !p.pending[0].After(until) {
		at := p.pending[0]
		p.pending = p.pending[1:]
		p.clock.now = at
		p.request("https://www.google-analytics.com/g/collect?v=2&dl=" + p.URL())
	}
	p.clock.now = until
}

func (p *fakePage) request(url string) {
	p.requests = append(p.requests, url)
	if p.handler != nil && !p.removed {
		p.handler(url)
	}
}

func (p *fakePage) OnRequest(fn func(url string)) (func(), error) {
	if p.installErr != nil {
		return nil, p.installErr
	}
	p.handler = fn
	return func() { p.removed = true }, nil
}

var errBrowserGone = errors.New("target closed")
