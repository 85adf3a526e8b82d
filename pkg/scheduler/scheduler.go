// Package scheduler triggers smoke test runs from a cron expression.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NewsSmoke/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs a job on a standard 5-field cron spec. A run that is still
// going when the next one is due causes that tick to be skipped.
type Scheduler struct {
	cron     *cron.Cron
	entryID  cron.EntryID
	location *time.Location
	job      Job
	log      *logger.Logger
}

// New creates a scheduler in timezone (empty means local time).
func New(timezone string, job Job, log *logger.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	if log == nil {
		log = logger.Nop()
	}

	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
	}

	cronLog := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &Scheduler{cron: c, location: loc, job: job, log: log}, nil
}

// Run schedules the job and blocks until ctx is cancelled and the running
// job, if any, has returned.
func (s *Scheduler) Run(ctx context.Context, spec string) error {
	id, err := s.cron.AddFunc(spec, func() { s.job(ctx) })
	if err != nil {
		return fmt.Errorf("add cron: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	s.log.Info("Scheduler started (%s, %s), next run at %s", spec, s.location, s.Next().Format(time.RFC3339))

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info("Scheduler stopped")
	return nil
}

// Next returns the next activation time, zero before Run.
func (s *Scheduler) Next() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Location returns the scheduler location.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// ValidateSpec reports whether spec is a valid standard cron expression.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}
