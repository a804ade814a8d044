package cron

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bher20/flightticker/internal/alerting"
	"github.com/bher20/flightticker/internal/collector"
	"github.com/bher20/flightticker/internal/fares"
	"github.com/bher20/flightticker/internal/metrics"
	"github.com/bher20/flightticker/internal/storage"
)

// JobName identifies the collection job in metrics and scheduled_jobs.
const JobName = "collect_prices"

// DefaultLockKey is the advisory lock guarding a collection run.
const DefaultLockKey int64 = 42

// ErrLocked is returned by RunOnce when another worker holds the lock.
var ErrLocked = errors.New("cron: advisory lock held by another worker")

// Runner is one collection pass.
type Runner interface {
	Run(ctx context.Context) (*collector.RunReport, error)
}

// FailureReporter is told about runs that failed as a whole.
type FailureReporter interface {
	SendRunFailure(ctx context.Context, f alerting.RunFailure) error
}

// Worker runs the collector on a schedule. Each run holds an advisory lock so
// that in a multi-instance deployment only one worker collects at a time.
type Worker struct {
	Runner   Runner
	Store    storage.Storage
	Failures FailureReporter
	// Schedule is an integer number of seconds or a standard cron expression.
	Schedule string
	Location *time.Location
	LockKey  int64
	// Poll is how often the loop checks whether a run is due.
	Poll time.Duration
}

// NextRun returns the next run time after last for a schedule setting.
// Unparseable settings fall back to six hours.
func NextRun(setting string, last time.Time) time.Time {
	// Try integer seconds
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return last.Add(time.Duration(v) * time.Second)
	}
	// Try cron expression
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(last)
	}
	return last.Add(6 * time.Hour)
}

// ValidateSchedule reports whether setting is usable as a Schedule.
func ValidateSchedule(setting string) error {
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return fmt.Errorf("cron: interval must be positive (got %d)", v)
		}
		return nil
	}
	if _, err := cron.ParseStandard(setting); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", setting, err)
	}
	return nil
}

// Start runs immediately, then on every scheduled time until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	poll := w.Poll
	if poll <= 0 {
		poll = 10 * time.Second
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	// If starting fresh, run immediately, then schedule next
	nextRun := time.Now()
	log.Printf("cron: worker starting, schedule=%q tz=%s", w.Schedule, loc)

	for {
		if !time.Now().Before(nextRun) {
			if err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrLocked) {
				log.Printf("cron: job %s: %v", JobName, err)
			}
			nextRun = NextRun(w.Schedule, time.Now().In(loc))
			log.Printf("cron: next run at %s", nextRun.Format(time.RFC3339))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single locked run and records its outcome.
func (w *Worker) RunOnce(ctx context.Context) error {
	_, err := w.Trigger(ctx)
	return err
}

// Trigger is RunOnce returning the run report. The report is nil when the
// run never started.
func (w *Worker) Trigger(ctx context.Context) (*collector.RunReport, error) {
	key := w.LockKey
	if key == 0 {
		key = DefaultLockKey
	}
	started := time.Now()

	ok, err := w.Store.AcquireAdvisoryLock(ctx, key)
	if err != nil {
		log.Printf("cron: acquire advisory lock failed: %v", err)
		metrics.UpdateJobMetrics(JobName, started, err)
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		log.Printf("cron: advisory lock held by another worker, skipping run")
		return nil, ErrLocked
	}

	// Bookkeeping after the run must happen even when ctx was cancelled
	// mid-run, otherwise the lock stays held.
	after := context.WithoutCancel(ctx)

	// We hold the lock for the duration of the job.
	var (
		rep    *collector.RunReport
		runErr error
	)
	func() {
		defer func() {
			held, err := w.Store.ReleaseAdvisoryLock(after, key)
			switch {
			case err != nil:
				log.Printf("cron: release advisory lock failed: %v", err)
			case !held:
				log.Printf("cron: advisory lock %d was not held at release", key)
			}
		}()
		rep, runErr = w.Runner.Run(ctx)
	}()

	failure := classify(rep, runErr)

	// Record metrics & job row.
	var jobErr error
	if failure != nil {
		jobErr = errors.New(failure.Reason)
	}
	metrics.UpdateJobMetrics(JobName, started, jobErr)
	dur := time.Since(started)
	errMsg := ""
	if failure != nil {
		errMsg = failure.Reason
	}
	if err := w.Store.UpdateScheduledJob(after, JobName, started, dur, failure == nil, errMsg); err != nil {
		log.Printf("cron: update scheduled_jobs failed: %v", err)
	}

	if failure == nil {
		log.Printf("cron: job %s completed successfully (duration=%s)", JobName, dur)
		return rep, nil
	}

	log.Printf("cron: job %s completed with error: %s (duration=%s)", JobName, failure.Reason, dur)
	failure.Timestamp = started
	if w.Failures != nil {
		if err := w.Failures.SendRunFailure(after, *failure); err != nil {
			log.Printf("cron: failure alert not sent: %v", err)
		}
	}
	if runErr != nil {
		return rep, runErr
	}
	return rep, jobErr
}

// classify returns nil for a healthy run. A run fails as a whole when it
// returned an error or when every attempted pair failed.
func classify(rep *collector.RunReport, err error) *alerting.RunFailure {
	f := &alerting.RunFailure{JobName: JobName}
	if rep != nil {
		f.RunID = rep.ID
		f.TotalPairs = len(rep.Pairs)
		f.FailedPairs = rep.Count(fares.OutcomeFailed)
	}
	switch {
	case err != nil:
		f.Reason = err.Error()
	case f.TotalPairs > 0 && f.FailedPairs == f.TotalPairs:
		f.Reason = "every fetch failed"
	default:
		return nil
	}
	return f
}
