// Package breaker guards the RPC path with a circuit breaker so an
// upstream outage degrades into spaced probes instead of a retry storm.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call when the breaker is open and the backoff
// window has not elapsed. The protected function is not invoked.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State string

const (
	// StateClosed lets calls through and counts consecutive failures.
	StateClosed State = "closed"

	// StateOpen short-circuits calls until the current delay elapses.
	StateOpen State = "open"

	// StateHalfOpen lets one trial call decide: success closes the
	// breaker, failure reopens it with a doubled delay.
	StateHalfOpen State = "half_open"
)

// Config holds breaker tuning. Zero values fall back to defaults.
type Config struct {
	// Threshold is the consecutive-failure count that trips the breaker.
	Threshold int

	// BaseDelay is the open duration after the first trip.
	BaseDelay time.Duration

	// MaxDelay caps the doubling backoff.
	MaxDelay time.Duration
}

const (
	defaultThreshold = 5
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 10 * time.Minute
)

// Stats is a snapshot of the breaker for health reporting.
type Stats struct {
	State               State
	ConsecutiveFailures int
	CurrentDelay        time.Duration
	NextRetryAt         time.Time
	Trips               uint64
}

// Breaker is a single-call-site circuit breaker. Create one per
// protected dependency (one per contract stream's RPC calls).
type Breaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	delay    time.Duration
	openedAt time.Time
	trips    uint64
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock injects the time source. Tests use this to step through
// backoff windows deterministically.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// New creates a closed breaker.
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}

	b := &Breaker{
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
		delay: cfg.BaseDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Call runs fn unless the breaker is open with backoff remaining, in
// which case it returns ErrOpen without invoking fn. fn's outcome is
// recorded; a short-circuit is not.
func (b *Breaker) Call(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}

	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

// allow reports whether a call may proceed, moving Open to HalfOpen
// once the backoff window has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return true
	}
	if b.now().Sub(b.openedAt) < b.delay {
		return false
	}

	b.state = StateHalfOpen
	return true
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.delay = b.cfg.BaseDelay
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++

	switch b.state {
	case StateHalfOpen:
		// Failed trial: reopen with a doubled delay.
		b.delay = minDelay(b.delay*2, b.cfg.MaxDelay)
		b.open()
	case StateClosed:
		if b.failures >= b.cfg.Threshold {
			b.open()
		}
	}
}

// open must be called with the mutex held.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.trips++
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		CurrentDelay:        b.delay,
		Trips:               b.trips,
	}
	if b.state == StateOpen {
		s.NextRetryAt = b.openedAt.Add(b.delay)
	}
	return s
}

func minDelay(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
