// Package backoff holds the retry delay policies shared by the queue
// publishers and the worker's progress reporter.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy is an exponential backoff
type Policy struct {
	Retries    int
	BaseDelay  time.Duration
	Multiplier float64
	// Cap bounds a single delay; zero means no cap
	Cap time.Duration
	// Jitter picks each delay uniformly in [0, delay)
	Jitter bool
}

// WithDefaults fills zero fields with 3 retries, 100ms base and factor 2
func (p Policy) WithDefaults() Policy {
	if p.Retries <= 0 {
		p.Retries = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay returns the wait before retry number attempt+1
func (p Policy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	if p.Jitter && d > 0 {
		d = time.Duration(rand.Int64N(int64(d)))
	}
	return d
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
