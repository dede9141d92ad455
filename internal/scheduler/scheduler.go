// Package scheduler runs a job once at startup and then on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the scheduled work. Its error is logged; it never stops the schedule.
type Job func(ctx context.Context) error

// Scheduler fires a Job on a standard five-field cron spec.
type Scheduler struct {
	name     string
	job      Job
	location *time.Location
	logger   *slog.Logger
	schedule cron.Schedule
	cron     *cron.Cron
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the zone the spec is evaluated in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New parses spec and prepares a scheduler for job.
func New(name, spec string, job Job, opts ...Option) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		name:     name,
		job:      job,
		location: time.Local,
		logger:   slog.Default(),
		schedule: schedule,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := cronLogger{s.logger.With("job", name)}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return s, nil
}

// NextRun returns the first scheduled instant strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.location))
}

// Start runs the job immediately, then on schedule until ctx is cancelled.
// The returned channel is closed once the cron loop and any running job
// have stopped. Start must be called once.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.run(ctx, "scheduled") }))
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.run(ctx, "startup")

		s.cron.Start()
		s.logger.Info("Next scheduled run", "job", s.name, "at", s.NextRun(time.Now()).Format(time.RFC3339))

		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("Scheduler stopped", "job", s.name)
	}()

	return done
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("Scheduled job failed", "job", s.name, "trigger", trigger, "error", err)
		return
	}
	s.logger.Info("Scheduled job finished", "job", s.name, "trigger", trigger, "duration", time.Since(start))
}

// cronLogger routes cron's internal messages to slog. Routine entries are
// Debug; panics recovered by the chain are Error.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
