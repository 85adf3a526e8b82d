package sitecheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"NewsSmoke/pkg/browser"
	"NewsSmoke/pkg/pagination"
	"NewsSmoke/pkg/report"
)

const (
	// clickTimeout bounds toggle clicks; a missing toggle is not an error.
	clickTimeout   = 500 * time.Millisecond
	menuOpenPause  = 500 * time.Millisecond
	menuOpenWait   = time.Second
	menuClosePause = 300 * time.Millisecond
	searchPause    = 300 * time.Millisecond
)

// checkSite runs the browser checks in order: homepage, discovery, main page,
// sampled categories, sampled tags and search.
func (r *Runner) checkSite(ctx context.Context) *RunReport {
	rep := &RunReport{Started: r.clock.Now()}
	defer func() { rep.Finished = r.clock.Now() }()

	start := r.clock.Now()
	page, err := r.open(ctx)
	if err != nil {
		r.record(ctx, rep, nil, CheckResult{
			Kind:     KindBrowser,
			Target:   "browser",
			Err:      fmt.Errorf("start browser: %w", err),
			Duration: r.clock.Now().Sub(start),
		}, "")
		return rep
	}
	defer func() {
		if r.beforeClose != nil {
			r.beforeClose()
		}
		if err := page.Close(); err != nil {
			r.log.Warn("Failed to close browser: %v", err)
		}
	}()

	base := strings.TrimRight(r.cfg.BaseURL, "/")
	sel := r.cfg.Site.Selectors

	start = r.clock.Now()
	err = r.errors.WrapWithRecovery("open homepage", func() error {
		return page.Goto(base)
	})
	if err != nil {
		// Nothing can be discovered or checked without the homepage.
		r.record(ctx, rep, page, CheckResult{
			Kind:     KindMain,
			Target:   "main",
			Err:      fmt.Errorf("open homepage: %w", err),
			Duration: r.clock.Now().Sub(start),
		}, "main_page_error")
		return rep
	}

	r.discover(ctx, rep, page)

	r.run(ctx, rep, page, KindMain, "main", "main_page_error", func() (int, error) {
		if err := page.WaitForSelector(sel.MainSlider, r.cfg.GetLoadTimeout()); err != nil {
			return 0, fmt.Errorf("main slider not found: %w", err)
		}
		return r.verifyListing(ctx, page, "Main page")
	})

	for _, category := range rep.Categories {
		if ctx.Err() != nil {
			break
		}
		r.run(ctx, rep, page, KindCategory, category, "category_"+category+"_error", func() (int, error) {
			return r.checkListing(ctx, page, base+"/"+category, "Category "+category)
		})
	}

	for _, tag := range rep.Tags {
		if ctx.Err() != nil {
			break
		}
		r.run(ctx, rep, page, KindTag, tag, "tag_"+tag+"_error", func() (int, error) {
			return r.checkListing(ctx, page, base+"/"+tag, "Tag "+tag)
		})
	}

	if ctx.Err() == nil {
		r.run(ctx, rep, page, KindSearch, "search", "search_error", func() (int, error) {
			return r.checkSearch(page)
		})
	}

	if err := ctx.Err(); err != nil {
		r.log.Warn("Run interrupted: %v", err)
	}
	return rep
}

// run executes one check under the panic guard and records its result.
func (r *Runner) run(ctx context.Context, rep *RunReport, page Page, kind Kind, target, shot string, fn func() (int, error)) CheckResult {
	start := r.clock.Now()
	var items int
	err := r.errors.WrapWithRecovery(string(kind)+" "+target, func() error {
		var err error
		items, err = fn()
		return err
	})
	res := CheckResult{
		Kind:     kind,
		Target:   target,
		Items:    items,
		Err:      err,
		Duration: r.clock.Now().Sub(start),
	}
	return r.record(ctx, rep, page, res, shot)
}

// record adds res to rep. A failure gets a screenshot, an error log entry
// and an error notification.
func (r *Runner) record(ctx context.Context, rep *RunReport, page Page, res CheckResult, shot string) CheckResult {
	if res.OK() {
		r.log.Info("Check %s passed (%d items, %s)", res.Label(), res.Items, res.Duration.Round(time.Millisecond))
	} else {
		if page != nil && shot != "" {
			path, err := page.Screenshot(shot)
			if err != nil {
				r.log.Error("Error taking screenshot: %v", err)
			} else {
				res.Screenshot = path
			}
		}
		location := locationOf(res)
		r.errors.HandleError(res.Err, location, string(res.Kind))
		r.notify(ctx, report.ErrorMessage(rep.siteOr(r.cfg.SiteHost()), res.Err, location, res.Screenshot, r.clock.Now()))
	}
	r.metrics.ObserveCheck(string(res.Kind), res.OK(), res.Duration)
	rep.Add(res)
	return res
}

func (rep *RunReport) siteOr(def string) string {
	if rep.Site != "" {
		return rep.Site
	}
	return def
}

func locationOf(res CheckResult) string {
	switch res.Kind {
	case KindMain:
		return "Main page"
	case KindCategory:
		return "Category " + res.Target
	case KindTag:
		return "Tag " + res.Target
	case KindSearch:
		return "Search"
	case KindDiscovery:
		return "Category and tag discovery"
	case KindBrowser:
		return "Browser startup"
	default:
		return res.Label()
	}
}

// checkListing opens a category or tag listing and verifies its pagination.
func (r *Runner) checkListing(ctx context.Context, page Page, url, label string) (int, error) {
	if err := page.Goto(url); err != nil {
		return 0, fmt.Errorf("open %s: %w", url, err)
	}
	if err := page.WaitForSelector(r.cfg.Site.Selectors.ListingTitle, r.cfg.GetLoadTimeout()); err != nil {
		return 0, fmt.Errorf("listing title not found: %w", err)
	}
	return r.verifyListing(ctx, page, label)
}

// verifyListing scrolls the current page through the target pages.
func (r *Runner) verifyListing(ctx context.Context, page Page, label string) (int, error) {
	v := pagination.NewVerifier(page, r.verifierOptions(), r.log).WithClock(r.clock)
	total, err := v.VerifyPaginatedNews(ctx, r.cfg.Scroll.InitialMinItems, r.cfg.TargetPages(), r.cfg.GetScrollTimeout())
	if corr := v.Correlator(); corr != nil {
		for p, n := range corr.BeaconCounts() {
			r.metrics.AddBeacons(p, n)
		}
		if n := corr.Unmatched(); n > 0 {
			r.log.Debug("%s: %d analytics requests matched no page change", label, n)
		}
	}
	if err != nil {
		return total, err
	}
	if total == 0 {
		return 0, fmt.Errorf("no news on %s", strings.ToLower(label))
	}
	r.log.Debug("%s: %d news items", label, total)
	return total, nil
}

func (r *Runner) verifierOptions() pagination.Options {
	return pagination.Options{
		ItemSelector:    r.cfg.Site.Selectors.NewsItem,
		AnalyticsMarker: r.cfg.Site.AnalyticsMarker,
		BeaconWindow:    r.cfg.BeaconWindow(),
		ScrollStep:      r.cfg.Scroll.StepPixels,
		ScrollPause:     r.cfg.ScrollPause(),
		ReachedSettle:   r.cfg.ReachedSettle(),
		AnalyticsSettle: r.cfg.AnalyticsSettle(),
		StallLimit:      r.cfg.Scroll.StallLimit,
	}
}

// checkSearch submits the search form and expects at least one result.
func (r *Runner) checkSearch(page Page) (int, error) {
	sel := r.cfg.Site.Selectors
	page.Click(sel.SearchToggle, clickTimeout)
	page.Pause(searchPause)

	if err := page.Fill(sel.SearchInput, r.cfg.Site.SearchTerm); err != nil {
		return 0, fmt.Errorf("fill search: %w", err)
	}
	if err := page.Press(sel.SearchForm, "Enter"); err != nil {
		return 0, fmt.Errorf("submit search: %w", err)
	}
	if err := page.WaitForSelector(sel.ListingTitle, r.cfg.GetLoadTimeout()); err != nil {
		return 0, fmt.Errorf("search results not shown: %w", err)
	}

	n, err := page.Count(sel.NewsItem)
	if err != nil {
		return 0, fmt.Errorf("count search results: %w", err)
	}
	if n == 0 {
		return 0, errors.New("search results are empty")
	}
	r.log.Debug("Search results first page: %d", n)
	return n, nil
}

// discover fills rep.Categories and rep.Tags from the homepage navigation.
// Both lists are attempted; the check fails if either could not be read.
func (r *Runner) discover(ctx context.Context, rep *RunReport, page Page) {
	start := r.clock.Now()
	var errs []error
	shot := ""

	err := r.errors.WrapWithRecovery("discover categories", func() error {
		categories, err := r.discoverCategories(page)
		rep.Categories = categories
		return err
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("categories: %w", err))
		shot = "categories_error"
	}

	err = r.errors.WrapWithRecovery("discover tags", func() error {
		tags, err := r.discoverTags(page)
		rep.Tags = tags
		return err
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("tags: %w", err))
		if shot == "" {
			shot = "tags_error"
		}
	}

	r.log.Info("Selected categories: %v, tags: %v", rep.Categories, rep.Tags)
	r.record(ctx, rep, page, CheckResult{
		Kind:     KindDiscovery,
		Target:   "discovery",
		Items:    len(rep.Categories) + len(rep.Tags),
		Err:      errors.Join(errs...),
		Duration: r.clock.Now().Sub(start),
	}, shot)
}

func (r *Runner) discoverCategories(page Page) ([]string, error) {
	sel := r.cfg.Site.Selectors

	page.Click(sel.MenuToggle, clickTimeout)
	page.Pause(menuOpenPause)
	if err := page.WaitForSelector(sel.Menu, menuOpenWait); err != nil {
		return nil, fmt.Errorf("menu did not open: %w", err)
	}

	links, err := page.Links(sel.MenuLinks)
	if err != nil {
		return nil, fmt.Errorf("read menu links: %w", err)
	}

	page.Click(sel.MenuToggle, clickTimeout)
	page.Pause(menuClosePause)

	return r.sample(r.paths(links), r.cfg.Site.CategorySample), nil
}

func (r *Runner) discoverTags(page Page) ([]string, error) {
	sel := r.cfg.Site.Selectors

	if err := page.WaitForSelector(sel.TagsBar, menuOpenWait); err != nil {
		return nil, fmt.Errorf("tags bar not found: %w", err)
	}
	links, err := page.Links(sel.TagLinks)
	if err != nil {
		return nil, fmt.Errorf("read tag links: %w", err)
	}
	return r.sample(r.paths(links), r.cfg.Site.TagSample), nil
}

// paths keeps links with a name that is not excluded and an href on the site
// host, returning the path after the host without duplicates.
func (r *Runner) paths(links []browser.Link) []string {
	host := r.cfg.SiteHost() + "/"
	excluded := make(map[string]bool, len(r.cfg.Site.ExcludedNames))
	for _, name := range r.cfg.Site.ExcludedNames {
		excluded[name] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, l := range links {
		if l.Text == "" || excluded[l.Text] {
			continue
		}
		idx := strings.Index(l.Href, host)
		if idx < 0 {
			continue
		}
		path := strings.Trim(l.Href[idx+len(host):], "/")
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		out = append(out, path)
	}
	return out
}

// sample returns min(n, len(items)) random elements in random order.
func (r *Runner) sample(items []string, n int) []string {
	if n > len(items) {
		n = len(items)
	}
	if n <= 0 {
		return nil
	}
	shuffled := append([]string(nil), items...)
	r.rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}
