package cron

import (
	"testing"
	"time"
)

func TestScheduleDueAndUntil(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s, err := newSchedule([]Entry{
		{Job: &testJob{name: "fast"}, Every: time.Minute},
		{Job: &testJob{name: "default"}},
		{Job: nil},
	}, 10*time.Minute, start)
	if err != nil {
		t.Fatalf("newSchedule: %v", err)
	}
	if len(s.slots) != 2 {
		t.Fatalf("nil jobs should be skipped, got %d slots", len(s.slots))
	}
	if got := len(s.due(start)); got != 2 {
		t.Fatalf("every job is due at start, got %d", got)
	}
	if s.until(start) != 0 {
		t.Fatal("nothing to wait for while jobs are due")
	}

	for _, sl := range s.due(start) {
		sl.advance(start)
	}
	if s.slots[1].every != 10*time.Minute {
		t.Fatalf("fallback period not applied: %v", s.slots[1].every)
	}
	if got := s.until(start); got != time.Minute {
		t.Fatalf("until = %v, want 1m", got)
	}

	later := start.Add(90 * time.Second)
	due := s.due(later)
	if len(due) != 1 || due[0].job.Name() != "fast" {
		t.Fatalf("expected only fast due, got %d", len(due))
	}
}

func TestScheduleRejectsDuplicateNames(t *testing.T) {
	job := &testJob{name: "payout_dispatch"}
	if _, err := newSchedule([]Entry{{Job: job}, {Job: job}}, time.Minute, time.Now()); err == nil {
		t.Fatal("expected duplicate error")
	}
}
