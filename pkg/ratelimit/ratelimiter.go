package ratelimit

import (
	"net/netip"
	"sync"
	"time"
)

const (
	// DefaultWindow is how far back requests count against an address.
	DefaultWindow = 10 * time.Second
	// DefaultThreshold is the number of requests admitted per address per window.
	DefaultThreshold = 120
)

// Clock supplies the current time. Tests replace it to move time by hand.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Decision is the outcome of a single CheckAndRecord call.
type Decision struct {
	Allowed bool
	// Count is the number of requests recorded for the address in the
	// current window, including this one.
	Count int
	// RetryAfter is how long the caller has to stay quiet before a request
	// would be admitted again. Zero when Allowed.
	RetryAfter time.Duration
}

// RateLimiter is a sliding window request counter keyed by client address.
// Every request is recorded, rejected ones included, so a client that keeps
// hammering stays limited until it backs off for a full window.
type RateLimiter struct {
	requests  map[netip.Addr][]time.Time
	lock      sync.Mutex
	window    time.Duration
	threshold int
	clock     Clock
}

type Option func(*RateLimiter)

// WithClock replaces the clock used by Allow.
func WithClock(clock Clock) Option {
	return func(rl *RateLimiter) {
		rl.clock = clock
	}
}

func NewRateLimiter(window time.Duration, threshold int, opts ...Option) *RateLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	rl := &RateLimiter{
		requests:  make(map[netip.Addr][]time.Time),
		window:    window,
		threshold: threshold,
		clock:     SystemClock,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

func (rl *RateLimiter) Window() time.Duration {
	return rl.window
}

func (rl *RateLimiter) Threshold() int {
	return rl.threshold
}

// Allow records a request from addr at the current clock time and reports
// whether it is admitted.
func (rl *RateLimiter) Allow(addr netip.Addr) bool {
	return rl.CheckAndRecord(addr, rl.clock.Now()).Allowed
}

// CheckAndRecord prunes the history of addr, records now and compares the
// resulting count against the threshold.
func (rl *RateLimiter) CheckAndRecord(addr netip.Addr, now time.Time) Decision {
	addr = addr.Unmap()
	cutoff := now.Add(-rl.window)

	rl.lock.Lock()
	defer rl.lock.Unlock()

	times := append(prune(rl.requests[addr], cutoff), now)
	rl.requests[addr] = times

	if len(times) <= rl.threshold {
		return Decision{Allowed: true, Count: len(times)}
	}

	// The oldest entry that has to expire before count+1 fits again.
	oldest := times[len(times)-rl.threshold]
	retryAfter := oldest.Add(rl.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{Count: len(times), RetryAfter: retryAfter}
}

// Sweep prunes every history against now, drops the addresses left empty and
// returns how many were removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-rl.window)

	rl.lock.Lock()
	defer rl.lock.Unlock()

	removed := 0
	for addr, times := range rl.requests {
		kept := prune(times, cutoff)
		if len(kept) == 0 {
			delete(rl.requests, addr)
			removed++
			continue
		}
		rl.requests[addr] = kept
	}
	return removed
}

// Len returns the number of tracked addresses.
func (rl *RateLimiter) Len() int {
	rl.lock.Lock()
	defer rl.lock.Unlock()
	return len(rl.requests)
}

// Count returns the stored history length for addr without pruning it.
func (rl *RateLimiter) Count(addr netip.Addr) int {
	rl.lock.Lock()
	defer rl.lock.Unlock()
	return len(rl.requests[addr.Unmap()])
}

// prune filters times in place, keeping entries strictly after cutoff.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
