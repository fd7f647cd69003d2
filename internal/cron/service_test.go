package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

// heldLocker reports every lock named in held as owned by another replica.
type heldLocker struct {
	held     map[string]bool
	released []string
}

func (h *heldLocker) For(job string) Lock { return &stubLock{owner: h, job: job} }

type stubLock struct {
	owner *heldLocker
	job   string
}

func (s *stubLock) Acquire(context.Context) (bool, error) { return !s.owner.held[s.job], nil }

func (s *stubLock) Release(context.Context) error {
	s.owner.released = append(s.owner.released, s.job)
	return nil
}

func newTestService(t *testing.T, locks Locker, jm *metrics.JobMetrics, entries ...Entry) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Entries: entries,
		Locks:   locks,
		Metrics: jm,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunOnceRunsEveryJobEvenAfterFailure(t *testing.T) {
	ok := &testJob{name: "order_pending_ttl"}
	bad := &testJob{name: "payout_dispatch", err: errors.New("stripe down")}
	reg := prometheus.NewRegistry()
	locks := &heldLocker{}
	svc := newTestService(t, locks, metrics.NewJobMetrics(reg), Entry{Job: ok}, Entry{Job: bad})

	svc.RunOnce(context.Background())

	if ok.runs != 1 || bad.runs != 1 {
		t.Fatalf("runs: ok=%d bad=%d", ok.runs, bad.runs)
	}
	if len(locks.released) != 2 {
		t.Fatalf("expected both locks released, got %v", locks.released)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	series := 0
	for _, mf := range mfs {
		if mf.GetName() == "storefront_cron_job_runs_total" {
			series = len(mf.GetMetric())
		}
	}
	if series != 2 {
		t.Fatalf("expected one series per job, got %d", series)
	}
}

func TestHeldLockSkipsOnlyThatJob(t *testing.T) {
	sweep := &testJob{name: "order_pending_ttl"}
	payouts := &testJob{name: "payout_dispatch"}
	locks := &heldLocker{held: map[string]bool{"payout_dispatch": true}}
	svc := newTestService(t, locks, nil, Entry{Job: sweep}, Entry{Job: payouts})

	svc.RunOnce(context.Background())

	if sweep.runs != 1 {
		t.Fatalf("sweep runs = %d", sweep.runs)
	}
	if payouts.runs != 0 {
		t.Fatal("job ran while another replica held its lock")
	}
	if len(locks.released) != 1 || locks.released[0] != "order_pending_ttl" {
		t.Fatalf("released = %v", locks.released)
	}
}

func TestTickHonoursPerJobPeriods(t *testing.T) {
	fast := &testJob{name: "payout_dispatch"}
	slow := &testJob{name: "outbox_prune"}
	svc := newTestService(t, &heldLocker{}, nil,
		Entry{Job: fast, Every: time.Minute},
		Entry{Job: slow, Every: time.Hour},
	)
	clock := time.Now().Add(time.Second)
	svc.now = func() time.Time { return clock }

	svc.tick(context.Background())
	clock = clock.Add(2 * time.Minute)
	svc.tick(context.Background())

	if fast.runs != 2 {
		t.Fatalf("fast runs = %d, want 2", fast.runs)
	}
	if slow.runs != 1 {
		t.Fatalf("slow runs = %d, want 1", slow.runs)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "order_pending_ttl"}
	svc := newTestService(t, &heldLocker{}, nil, Entry{Job: job, Every: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	job := Entry{Job: &testJob{name: "a"}}
	cases := []struct {
		name   string
		params ServiceParams
	}{
		{"no logger", ServiceParams{Locks: &heldLocker{}, Entries: []Entry{job}}},
		{"no locker", ServiceParams{Logger: logg, Entries: []Entry{job}}},
		{"no jobs", ServiceParams{Logger: logg, Locks: &heldLocker{}}},
		{"duplicate", ServiceParams{Logger: logg, Locks: &heldLocker{}, Entries: []Entry{job, job}}},
	}
	for _, tc := range cases {
		if _, err := NewService(tc.params); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
