package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const jitterWindow = 250 * time.Millisecond

// pacer spaces out polls: the base interval while healthy, doubling up to ceiling
// after consecutive failures.
type pacer struct {
	base    time.Duration
	ceiling time.Duration
	current time.Duration
	jitter  func(time.Duration) time.Duration
}

func newPacer(base, ceiling time.Duration) *pacer {
	if ceiling < base {
		ceiling = base
	}
	return &pacer{base: base, ceiling: ceiling, current: base, jitter: randomJitter}
}

func (p *pacer) reset() time.Duration {
	p.current = p.base
	return p.jitter(p.base)
}

func (p *pacer) failed() time.Duration {
	p.current *= 2
	if p.current > p.ceiling {
		p.current = p.ceiling
	}
	return p.jitter(p.current)
}

func randomJitter(d time.Duration) time.Duration {
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
