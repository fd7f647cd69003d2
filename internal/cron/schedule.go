package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of background work run by cmd/cron-worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry runs Job every Every. A zero period uses the service default.
type Entry struct {
	Job   Job
	Every time.Duration
}

type slot struct {
	job   Job
	every time.Duration
	next  time.Time
}

// schedule tracks when each job is next due. Every job is due at start.
type schedule struct {
	slots []*slot
}

func newSchedule(entries []Entry, fallback time.Duration, start time.Time) (*schedule, error) {
	seen := make(map[string]struct{}, len(entries))
	s := &schedule{}
	for _, entry := range entries {
		if entry.Job == nil {
			continue
		}
		name := entry.Job.Name()
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("job %q scheduled twice", name)
		}
		seen[name] = struct{}{}

		every := entry.Every
		if every <= 0 {
			every = fallback
		}
		s.slots = append(s.slots, &slot{job: entry.Job, every: every, next: start})
	}
	return s, nil
}

// due returns the slots whose next run is at or before now, in registration order.
func (s *schedule) due(now time.Time) []*slot {
	var out []*slot
	for _, sl := range s.slots {
		if !sl.next.After(now) {
			out = append(out, sl)
		}
	}
	return out
}

// until reports how long to sleep before the earliest slot is due.
func (s *schedule) until(now time.Time) time.Duration {
	if len(s.slots) == 0 {
		return 0
	}
	earliest := s.slots[0].next
	for _, sl := range s.slots[1:] {
		if sl.next.Before(earliest) {
			earliest = sl.next
		}
	}
	if wait := earliest.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

func (sl *slot) advance(now time.Time) {
	sl.next = now.Add(sl.every)
}
