package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bher20/flightticker/internal/alerting"
	"github.com/bher20/flightticker/internal/collector"
	"github.com/bher20/flightticker/internal/fares"
	"github.com/bher20/flightticker/internal/storage"
)

type fakeRunner struct {
	rep   *collector.RunReport
	err   error
	calls int
	// lockHeld records whether the lock was held during Run.
	store    *storage.MemoryStorage
	lockHeld bool
}

func (f *fakeRunner) Run(ctx context.Context) (*collector.RunReport, error) {
	f.calls++
	if f.store != nil {
		ok, _ := f.store.AcquireAdvisoryLock(ctx, DefaultLockKey)
		f.lockHeld = !ok
		if ok {
			_, _ = f.store.ReleaseAdvisoryLock(ctx, DefaultLockKey)
		}
	}
	return f.rep, f.err
}

type fakeReporter struct {
	got []alerting.RunFailure
}

func (f *fakeReporter) SendRunFailure(ctx context.Context, rf alerting.RunFailure) error {
	f.got = append(f.got, rf)
	return nil
}

func TestNextRun(t *testing.T) {
	base := time.Date(2025, 3, 10, 10, 17, 0, 0, time.UTC)

	if got := NextRun("300", base); !got.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("seconds schedule: got %s", got)
	}
	if got := NextRun("0 */6 * * *", base); !got.Equal(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("cron schedule: got %s", got)
	}
	if got := NextRun("garbage", base); !got.Equal(base.Add(6 * time.Hour)) {
		t.Fatalf("fallback: got %s", got)
	}
}

func TestValidateSchedule(t *testing.T) {
	for _, ok := range []string{"300", "0 */6 * * *", "@every 1h"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Errorf("ValidateSchedule(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"0", "-5", "every day"} {
		if err := ValidateSchedule(bad); err == nil {
			t.Errorf("ValidateSchedule(%q) should fail", bad)
		}
	}
}

func TestRunOnce_Success(t *testing.T) {
	st := storage.NewMemory()
	r := &fakeRunner{store: st, rep: &collector.RunReport{ID: "r1", Pairs: []collector.PairResult{{Route: "NRT", Outcome: fares.OutcomeQuoted}}}}
	rep := &fakeReporter{}
	w := &Worker{Runner: r, Store: st, Failures: rep}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !r.lockHeld {
		t.Fatalf("run should execute while holding the advisory lock")
	}
	job, ok := st.ScheduledJob(JobName)
	if !ok || job.LastSuccess != 1 || job.LastError != "" {
		t.Fatalf("unexpected job row: %+v", job)
	}
	if len(rep.got) != 0 {
		t.Fatalf("no failure alert expected")
	}
	// Lock released afterwards.
	if ok, _ := st.AcquireAdvisoryLock(context.Background(), DefaultLockKey); !ok {
		t.Fatalf("lock not released")
	}
}

func TestRunOnce_SkipsWhenLocked(t *testing.T) {
	st := storage.NewMemory()
	_, _ = st.AcquireAdvisoryLock(context.Background(), 7)
	r := &fakeRunner{}
	w := &Worker{Runner: r, Store: st, LockKey: 7}

	if err := w.RunOnce(context.Background()); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if r.calls != 0 {
		t.Fatalf("runner must not run while locked")
	}
}

func TestRunOnce_CredentialFailureAlerts(t *testing.T) {
	st := storage.NewMemory()
	r := &fakeRunner{err: collector.ErrCredential}
	rep := &fakeReporter{}
	w := &Worker{Runner: r, Store: st, Failures: rep}

	err := w.RunOnce(context.Background())
	if !errors.Is(err, collector.ErrCredential) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if len(rep.got) != 1 || rep.got[0].JobName != JobName || rep.got[0].Timestamp.IsZero() {
		t.Fatalf("expected one failure alert, got %+v", rep.got)
	}
	job, _ := st.ScheduledJob(JobName)
	if job.LastSuccess != 0 || job.LastError == "" {
		t.Fatalf("failure not recorded: %+v", job)
	}
}

func TestRunOnce_AllPairsFailed(t *testing.T) {
	st := storage.NewMemory()
	r := &fakeRunner{rep: &collector.RunReport{ID: "r2", Pairs: []collector.PairResult{
		{Route: "NRT", Outcome: fares.OutcomeFailed, Err: errors.New("x")},
		{Route: "KIX", Outcome: fares.OutcomeFailed, Err: errors.New("y")},
	}}}
	rep := &fakeReporter{}
	w := &Worker{Runner: r, Store: st, Failures: rep}

	if err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected an error when every pair failed")
	}
	if len(rep.got) != 1 || rep.got[0].RunID != "r2" || rep.got[0].FailedPairs != 2 || rep.got[0].TotalPairs != 2 {
		t.Fatalf("unexpected failure alert: %+v", rep.got)
	}
}

func TestRunOnce_PartialFailureIsHealthy(t *testing.T) {
	st := storage.NewMemory()
	r := &fakeRunner{rep: &collector.RunReport{Pairs: []collector.PairResult{
		{Route: "NRT", Outcome: fares.OutcomeFailed, Err: errors.New("x")},
		{Route: "KIX", Outcome: fares.OutcomeNoQuote},
	}}}
	rep := &fakeReporter{}
	w := &Worker{Runner: r, Store: st, Failures: rep}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("partial failure should not fail the job: %v", err)
	}
	if len(rep.got) != 0 {
		t.Fatalf("no alert expected: %+v", rep.got)
	}
}

// ctxStore refuses lock release and job updates on a done context, the way a
// database driver does.
type ctxStore struct {
	*storage.MemoryStorage
}

func (s ctxStore) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.MemoryStorage.ReleaseAdvisoryLock(ctx, key)
}

func (s ctxStore) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStorage.UpdateScheduledJob(ctx, name, started, dur, success, errMsg)
}

type cancellingRunner struct {
	cancel context.CancelFunc
}

func (r *cancellingRunner) Run(ctx context.Context) (*collector.RunReport, error) {
	r.cancel()
	return nil, ctx.Err()
}

type ctxReporter struct {
	errs []error
}

func (f *ctxReporter) SendRunFailure(ctx context.Context, rf alerting.RunFailure) error {
	f.errs = append(f.errs, ctx.Err())
	return nil
}

func TestTrigger_CancelledRunStillReleasesLock(t *testing.T) {
	mem := storage.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rep := &ctxReporter{}
	w := &Worker{Runner: &cancellingRunner{cancel: cancel}, Store: ctxStore{mem}, Failures: rep}

	if _, err := w.Trigger(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ok, _ := mem.AcquireAdvisoryLock(context.Background(), DefaultLockKey); !ok {
		t.Fatalf("lock still held after cancelled run")
	}
	job, ok := mem.ScheduledJob(JobName)
	if !ok || job.LastSuccess != 0 || job.LastError == "" {
		t.Fatalf("cancelled run not recorded: %+v", job)
	}
	if len(rep.errs) != 1 || rep.errs[0] != nil {
		t.Fatalf("failure alert should be sent on a live context: %v", rep.errs)
	}
}
