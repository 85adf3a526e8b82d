package sitecheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"NewsSmoke/pkg/browser"
	"NewsSmoke/pkg/config"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// listing describes how a page behaves once navigated to.
type listing struct {
	items int
	// scrollsPerPage is the number of scrolls that advance the URL one page;
	// zero means the listing never paginates.
	scrollsPerPage int
	// noBeacons suppresses analytics requests.
	noBeacons bool
}

// fakePage simulates the news site. Time only moves in Pause, which also
// emits one analytics request for the current page once past page 1.
type fakePage struct {
	clock *fakeClock
	base  string

	listings map[string]listing
	links    map[string][]browser.Link
	missing  map[string]bool
	gotoErr  map[string]error
	panicOn  string

	path    string
	page    int
	scrolls int
	handler func(string)

	visited     []string
	clicks      map[string][]time.Duration
	screenshots []string
	filled      map[string]string
	closed      bool
}

func newFakePage(clock *fakeClock, base string) *fakePage {
	return &fakePage{
		clock:    clock,
		base:     base,
		listings: map[string]listing{},
		links:    map[string][]browser.Link{},
		missing:  map[string]bool{},
		gotoErr:  map[string]error{},
		clicks:   map[string][]time.Duration{},
		filled:   map[string]string{},
	}
}

func (p *fakePage) current() listing { return p.listings[p.path] }

func (p *fakePage) Goto(url string) error {
	path := strings.TrimPrefix(url, p.base)
	if path == "" {
		path = "/"
	}
	if path == p.panicOn {
		panic("renderer crashed")
	}
	p.visited = append(p.visited, path)
	if err := p.gotoErr[path]; err != nil {
		return err
	}
	p.path, p.page, p.scrolls = path, 1, 0
	return nil
}

func (p *fakePage) URL() string {
	if p.page <= 1 {
		return p.base + p.path
	}
	return fmt.Sprintf("%s%s/page/%d/", p.base, strings.TrimRight(p.path, "/"), p.page)
}

func (p *fakePage) WaitForSelector(selector string, _ time.Duration) error {
	if p.missing[selector] {
		return fmt.Errorf("timeout waiting for %s", selector)
	}
	return nil
}

func (p *fakePage) Click(selector string, timeout time.Duration) bool {
	p.clicks[selector] = append(p.clicks[selector], timeout)
	return !p.missing[selector]
}

func (p *fakePage) Fill(selector, value string) error {
	p.filled[selector] = value
	return nil
}

func (p *fakePage) Press(selector, key string) error {
	if key == "Enter" {
		p.path, p.page, p.scrolls = "/search", 1, 0
	}
	return nil
}

func (p *fakePage) Count(string) (int, error) {
	l := p.current()
	if l.scrollsPerPage == 0 {
		return l.items, nil
	}
	return l.items + p.scrolls, nil
}

func (p *fakePage) Links(selector string) ([]browser.Link, error) {
	return p.links[selector], nil
}

func (p *fakePage) ScrollBy(int) error {
	p.scrolls++
	if l := p.current(); l.scrollsPerPage > 0 && p.scrolls%l.scrollsPerPage == 0 {
		p.page++
	}
	return nil
}

func (p *fakePage) Pause(d time.Duration) {
	p.clock.now = p.clock.now.Add(d)
	if p.page > 1 && !p.current().noBeacons && p.handler != nil {
		p.handler("https://www.google-analytics.com/g/collect?v=2&dl=" + p.URL())
	}
}

func (p *fakePage) OnRequest(fn func(string)) (func(), error) {
	p.handler = fn
	return func() { p.handler = nil }, nil
}

func (p *fakePage) Screenshot(name string) (string, error) {
	file := "screenshot_" + name + ".png"
	p.screenshots = append(p.screenshots, file)
	return file, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *fakeNotifier) SendMessage(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}

func (n *fakeNotifier) containing(substr string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			out = append(out, m)
		}
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "https://news.example"
	cfg.Telegram.Enabled = false
	cfg.ServerCheck.Enabled = false
	return cfg
}

// healthySite returns a page where every listing paginates with beacons.
func healthySite(clock *fakeClock, cfg *config.Config) *fakePage {
	p := newFakePage(clock, cfg.BaseURL)
	sel := cfg.Site.Selectors
	paginating := listing{items: 12, scrollsPerPage: 3}

	p.links[sel.MenuLinks] = []browser.Link{
		{Text: "Home", Href: "https://news.example/"},
		{Text: "Politics", Href: "https://news.example/politics"},
		{Text: "Economy", Href: "https://news.example/economy/"},
		{Text: "Sport", Href: "https://news.example/sport"},
		{Text: "Partner", Href: "https://partner.example/world"},
		{Text: "", Href: "https://news.example/blank"},
	}
	p.links[sel.TagLinks] = []browser.Link{
		{Text: "Elections", Href: "https://news.example/tag/elections"},
		{Text: "Elections", Href: "https://news.example/tag/elections"},
	}
	for _, path := range []string{"/", "/politics", "/economy", "/sport", "/tag/elections"} {
		p.listings[path] = paginating
	}
	p.listings["/search"] = listing{items: 8}
	return p
}

var errNetwork = errors.New("net::ERR_CONNECTION_RESET")
