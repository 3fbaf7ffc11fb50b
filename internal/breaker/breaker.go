// Package breaker implements a circuit breaker shared per external provider.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// guarded function.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker guards an external dependency. It opens after a run of consecutive
// failures, fails fast while open, and probes with a half-open trial after
// the reset timeout. Safe for concurrent use.
type Breaker struct {
	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration
	now              func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	lastFailure  time.Time
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source. Tests use this to step through the
// reset timeout without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a breaker that opens after failureThreshold consecutive
// failures and closes again after successThreshold consecutive half-open
// successes.
func New(failureThreshold, successThreshold int, resetTimeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// State returns the current state, applying the open->half-open timeout
// transition if it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Execute runs fn through the breaker. While open it returns ErrOpen without
// calling fn.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state != StateOpen
}

// maybeHalfOpen transitions OPEN -> HALF_OPEN once the reset timeout has
// elapsed. Caller must hold b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		b.state = StateHalfOpen
		b.successes = 0
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.successThreshold {
				b.state = StateClosed
				b.failures = 0
			}
		case StateClosed:
			b.failures = 0
		}
		return
	}

	b.lastFailure = b.now()
	switch b.state {
	case StateHalfOpen:
		// Any failure during the trial reopens immediately.
		b.state = StateOpen
		b.successes = 0
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
		}
	}
}
