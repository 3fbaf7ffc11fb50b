// Package retry provides a reusable retry helper with exponential backoff
// and jitter, composed around external provider calls.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures a retry loop. Retries is the number of attempts after
// the first, so Retries=2 means at most 3 calls.
type Policy struct {
	Retries   int
	BaseDelay time.Duration
	Factor    float64
}

// DefaultPolicy matches the gateway contract: 2 retries, 500ms base delay,
// doubling between attempts.
var DefaultPolicy = Policy{
	Retries:   2,
	BaseDelay: 500 * time.Millisecond,
	Factor:    2.0,
}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// Each delay is jittered to 50-100% of its nominal value so synchronized
// callers don't hammer a recovering provider in lockstep.
func Do(ctx context.Context, p Policy, fn func() error) error {
	delay := p.BaseDelay
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.Retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(delay)):
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}
}

// jitter returns a random duration in [d/2, d].
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
