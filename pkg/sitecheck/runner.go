// Package sitecheck runs the news site smoke test: backend probes, category
// and tag discovery, paginated listing checks and search, with a Telegram
// notification for the start, every failure and the final summary.
package sitecheck

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"NewsSmoke/pkg/browser"
	"NewsSmoke/pkg/config"
	"NewsSmoke/pkg/health"
	"NewsSmoke/pkg/logger"
	"NewsSmoke/pkg/metrics"
	"NewsSmoke/pkg/pagination"
	"NewsSmoke/pkg/recovery"
	"NewsSmoke/pkg/report"
)

// Page is the browser surface the checks drive.
type Page interface {
	pagination.Page
	Goto(url string) error
	WaitForSelector(selector string, timeout time.Duration) error
	// Click reports whether the element was clicked.
	Click(selector string, timeout time.Duration) bool
	Fill(selector, value string) error
	Press(selector, key string) error
	Links(selector string) ([]browser.Link, error)
	Screenshot(name string) (string, error)
	Close() error
}

var _ Page = (*browser.Session)(nil)

// Opener starts a browser session for one run.
type Opener func(ctx context.Context) (Page, error)

// Notifier delivers report messages. *telegram.Bot satisfies it.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

// notifyTimeout bounds messages sent after the run context is gone.
const notifyTimeout = 30 * time.Second

// maxReportedErrors caps the error digest logged after a failed run.
const maxReportedErrors = 10

// Runner executes smoke test runs. A Runner may be reused across scheduled
// runs but must not run concurrently with itself.
type Runner struct {
	cfg      *config.Config
	open     Opener
	notifier Notifier
	checker  *health.Checker
	metrics  *metrics.Metrics
	errors   *recovery.ErrorHandler
	log      *logger.Logger
	clock    pagination.Clock
	rand     *rand.Rand

	skipServers bool
	beforeClose func()

	last atomic.Pointer[RunReport]
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewRunner wires a runner. notifier may be nil to disable notifications.
func NewRunner(cfg *config.Config, open Opener, notifier Notifier, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		cfg:      cfg,
		open:     open,
		notifier: notifier,
		checker: health.NewChecker(health.Options{
			Host:    cfg.SiteHost(),
			Port:    cfg.ServerCheck.Port,
			Timeout: cfg.GetServerTimeout(),
		}, log),
		errors: recovery.NewErrorHandler(log),
		log:    log,
		clock:  systemClock{},
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithMetrics records check and run metrics into m.
func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

// WithClock replaces the wall clock, for tests.
func (r *Runner) WithClock(c pagination.Clock) *Runner {
	r.clock = c
	return r
}

// WithRand replaces the source used to sample categories and tags.
func (r *Runner) WithRand(src *rand.Rand) *Runner {
	r.rand = src
	return r
}

// SkipServers disables the backend probes.
func (r *Runner) SkipServers(skip bool) *Runner {
	r.skipServers = skip
	return r
}

// BeforeClose runs fn after the last check and before the browser is closed.
func (r *Runner) BeforeClose(fn func()) *Runner {
	r.beforeClose = fn
	return r
}

// Errors returns the error log of the most recent run.
func (r *Runner) Errors() *recovery.ErrorHandler {
	return r.errors
}

// Last returns the most recent finished report, nil before the first run.
func (r *Runner) Last() *RunReport {
	return r.last.Load()
}

// Status is the /status payload: the last report or nil.
func (r *Runner) Status() any {
	if rep := r.Last(); rep != nil {
		return rep
	}
	return nil
}

// Run executes one full run. It always sends the summary and always releases
// the browser; individual failures never stop the remaining checks.
func (r *Runner) Run(ctx context.Context) *RunReport {
	rep := NewRunReport(r.cfg.SiteHost(), r.clock.Now())
	r.errors.ClearErrorLog()
	r.log.Info("Run %s started for %s", rep.ID, r.cfg.BaseURL)
	r.notify(ctx, report.StartMessage(rep.Site, rep.Started))

	if !r.skipServers && r.cfg.ServerCheck.Enabled {
		rep.Merge(r.checkServers(ctx, false))
	}
	rep.Merge(r.checkSite(ctx))

	return r.finish(ctx, rep, true)
}

// RunServers only probes the backend servers and always sends their status.
func (r *Runner) RunServers(ctx context.Context) *RunReport {
	rep := NewRunReport(r.cfg.SiteHost(), r.clock.Now())
	r.errors.ClearErrorLog()
	rep.Merge(r.checkServers(ctx, true))
	return r.finish(ctx, rep, false)
}

func (r *Runner) finish(ctx context.Context, rep *RunReport, summary bool) *RunReport {
	rep.Finished = r.clock.Now()
	r.metrics.ObserveRun(rep.Duration(), rep.Finished, rep.Errors())
	if summary {
		r.notify(ctx, report.SummaryMessage(rep.Summary()))
	}
	r.log.Info("Run %s finished: %d passed, %d failed in %s",
		rep.ID, rep.Successes(), rep.Errors(), rep.Duration().Round(time.Millisecond))
	if rep.Errors() > 0 {
		r.log.Warn("%s", r.errors.FormatErrorReport(maxReportedErrors))
	}
	r.last.Store(rep)
	return rep
}

// checkServers probes every configured server. Unless always is set the
// status message goes out only when a server is down.
func (r *Runner) checkServers(ctx context.Context, always bool) *RunReport {
	rep := &RunReport{Started: r.clock.Now()}
	if len(r.cfg.Servers) == 0 {
		r.log.Info("No servers configured, skipping probes")
		return rep
	}

	results := r.checker.CheckAll(ctx, r.cfg.Servers)
	rep.Servers = results
	for _, res := range results {
		var err error
		if !res.OK {
			err = res.Err
			if err == nil {
				err = fmt.Errorf("HTTP %d %s", res.StatusCode, res.StatusMessage)
			}
			r.errors.HandleError(err, "Server "+res.Server.Name, string(KindServer))
		}
		r.metrics.SetServerUp(res.Server.Name, res.OK)
		r.metrics.ObserveCheck(string(KindServer), res.OK, res.Duration)
		rep.Add(CheckResult{Kind: KindServer, Target: res.Server.Name, Err: err, Duration: res.Duration})
	}

	down := health.Down(results)
	for _, res := range down {
		r.log.Warn("Server %s is down", res.Server.Name)
	}
	if always || len(down) > 0 {
		r.notify(ctx, report.ServerStatus(results))
	}
	rep.Finished = r.clock.Now()
	return rep
}

// notify sends text, logging delivery failures. Messages still go out after
// ctx is cancelled so that the summary of an interrupted run is delivered.
func (r *Runner) notify(ctx context.Context, text string) {
	if r.notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := r.notifier.SendMessage(sendCtx, text); err != nil {
		r.log.Error("Failed to send notification: %v", err)
	}
}
