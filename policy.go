package connector

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// GiveUp is returned by a ReconnectPolicy to stop reconnecting.
// Any negative delay has the same meaning.
const GiveUp time.Duration = -1

// DefaultReconnectInterval is the delay used by the default policy.
const DefaultReconnectInterval = 500 * time.Millisecond

// ReconnectPolicy decides what happens after a connection error.
//
// NextDelay is consulted after a failed connect, where the result is the
// backoff before the next attempt, and after an established session breaks,
// where only its sign matters: non-negative means reconnect.
// A policy that also implements Reset() is reset after every successful connect.
type ReconnectPolicy interface {
	NextDelay(err error) time.Duration
}

type resetter interface {
	Reset()
}

// PolicyFunc adapts an ordinary function to a ReconnectPolicy.
type PolicyFunc func(err error) time.Duration

// NextDelay implements ReconnectPolicy.
func (f PolicyFunc) NextDelay(err error) time.Duration {
	return f(err)
}

// FixedPolicy retries forever with the same delay.
type FixedPolicy struct {
	Interval time.Duration
}

// NextDelay implements ReconnectPolicy.
func (p FixedPolicy) NextDelay(error) time.Duration {
	return p.Interval
}

// LimitedPolicy retries with a fixed delay until MaxAttempts consecutive
// failures, then gives up.
type LimitedPolicy struct {
	Interval    time.Duration
	MaxAttempts int

	attempts atomic.Int64
}

// NewLimitedPolicy creates a LimitedPolicy.
func NewLimitedPolicy(interval time.Duration, maxAttempts int) *LimitedPolicy {
	return &LimitedPolicy{Interval: interval, MaxAttempts: maxAttempts}
}

// NextDelay implements ReconnectPolicy.
func (p *LimitedPolicy) NextDelay(error) time.Duration {
	if p.attempts.Add(1) > int64(p.MaxAttempts) {
		return GiveUp
	}
	return p.Interval
}

// Attempts returns the number of failures since the last reset.
func (p *LimitedPolicy) Attempts() int {
	return int(p.attempts.Load())
}

// Reset clears the failure count.
func (p *LimitedPolicy) Reset() {
	p.attempts.Store(0)
}

// Backoff defaults.
const (
	// DefaultInitialBackoff is the first reconnection delay.
	DefaultInitialBackoff = 1 * time.Second
	// DefaultMaxBackoff caps the reconnection delay.
	DefaultMaxBackoff = 60 * time.Second
	// DefaultBackoffMultiplier is the factor by which the delay grows.
	DefaultBackoffMultiplier = 2.0
	// DefaultJitter is the maximum jitter as a fraction of the base delay.
	DefaultJitter = 0.25
)

// BackoffConfig configures a BackoffPolicy. Zero fields take the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
	// MaxAttempts gives up after this many consecutive failures; 0 retries forever.
	MaxAttempts int
}

// BackoffPolicy grows the delay exponentially and adds random jitter
// so that many clients do not reconnect in lockstep.
type BackoffPolicy struct {
	mu sync.Mutex

	cfg      BackoffConfig
	current  time.Duration
	attempts int
	rng      *rand.Rand
}

// NewBackoffPolicy creates a BackoffPolicy.
func NewBackoffPolicy(cfg BackoffConfig) *BackoffPolicy {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultBackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &BackoffPolicy{
		cfg:     cfg,
		current: cfg.Initial,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextDelay implements ReconnectPolicy.
func (b *BackoffPolicy) NextDelay(error) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts {
		return GiveUp
	}

	delay := b.current
	if b.cfg.Jitter > 0 {
		delay += time.Duration(float64(delay) * b.cfg.Jitter * b.rng.Float64())
	}

	b.attempts++
	next := time.Duration(float64(b.current) * b.cfg.Multiplier)
	if next > b.cfg.Max {
		next = b.cfg.Max
	}
	b.current = next

	return delay
}

// Attempts returns the number of delays handed out since the last reset.
func (b *BackoffPolicy) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Reset restores the initial delay.
func (b *BackoffPolicy) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.Initial
	b.attempts = 0
}
