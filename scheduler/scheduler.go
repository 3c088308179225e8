// Package scheduler triggers a crawl once a day at a fixed local time.
package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a Job every day at hour:minute local time until stopped.
// Runs never overlap: a tick that arrives while a run is active is skipped.
type Scheduler struct {
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a scheduler for job.
func New(hour, minute int, job Job, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := dailySchedule(hour, minute)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedule: schedule,
		job:      job,
		logger:   logger,
		stop:     make(chan struct{}),
	}, nil
}

func dailySchedule(hour, minute int) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return nil, fmt.Errorf("daily schedule %02d:%02d: %w", hour, minute, err)
	}
	return schedule, nil
}

// NextRun returns the first hour:minute strictly after now, in now's
// location.
func NextRun(now time.Time, hour, minute int) (time.Time, error) {
	schedule, err := dailySchedule(hour, minute)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now), nil
}

// Run blocks, invoking the job at each scheduled time. A failing job is
// logged and the schedule continues. Run returns nil after Stop, or the
// context error once ctx is done. A job already running is allowed to
// finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	select {
	case <-s.stop:
		return nil
	default:
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.runJob(ctx)
	}))
	c.Start()
	s.logger.Info("next run scheduled", slog.Time("at", s.schedule.Next(time.Now())))

	var err error
	select {
	case <-s.stop:
	case <-ctx.Done():
		err = ctx.Err()
	}

	<-c.Stop().Done()
	return err
}

// Stop prevents further invocations. It is safe to call more than once and
// from any goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Scheduler) runJob(ctx context.Context) {
	started := time.Now()
	s.logger.Info("scheduled run started")
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed",
			slog.Duration("elapsed", time.Since(started)),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Info("scheduled run finished",
		slog.Duration("elapsed", time.Since(started)),
		slog.Time("next", s.schedule.Next(time.Now())),
	)
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// WatchConsole reads lines from r and calls stop when a line reads "s" or
// "S". It returns after stopping, at EOF, or when ctx is done and another
// line arrives.
func WatchConsole(ctx context.Context, r io.Reader, stop func(), logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), "s") {
			logger.Info("stop requested from console")
			stop()
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("console watcher stopped", slog.Any("error", err))
	}
}
