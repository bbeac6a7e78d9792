package ratelimit

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultWindow, rl.Window())
	assert.Equal(t, DefaultThreshold, rl.Threshold())
	assert.Equal(t, 10*time.Second, rl.Window())
	assert.Equal(t, 120, rl.Threshold())
}

func TestCheckAndRecordThreshold(t *testing.T) {
	rl := NewRateLimiter(DefaultWindow, DefaultThreshold)
	addr := netip.MustParseAddr("10.0.0.1")
	start := time.Now()

	for i := 0; i < DefaultThreshold; i++ {
		d := rl.CheckAndRecord(addr, start.Add(time.Duration(i)*time.Millisecond))
		require.True(t, d.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, i+1, d.Count)
		assert.Zero(t, d.RetryAfter)
	}

	d := rl.CheckAndRecord(addr, start.Add(500*time.Millisecond))
	assert.False(t, d.Allowed)
	assert.Equal(t, DefaultThreshold+1, d.Count)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestScenarioRapidBurstThenPause(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(DefaultWindow, DefaultThreshold, WithClock(clock))
	addr := netip.MustParseAddr("10.0.0.1")

	for i := 0; i < 120; i++ {
		require.True(t, rl.Allow(addr))
		clock.Advance(5 * time.Millisecond)
	}
	assert.False(t, rl.Allow(addr), "121st request within the same second is rejected")

	clock.Advance(11 * time.Second)
	assert.True(t, rl.Allow(addr))
	assert.Equal(t, 1, rl.Count(addr))
}

func TestOldRequestsNeverCountAgainstLaterWindow(t *testing.T) {
	rl := NewRateLimiter(time.Second, 2)
	addr := netip.MustParseAddr("192.0.2.7")
	t1 := time.Now()

	assert.True(t, rl.CheckAndRecord(addr, t1).Allowed)
	assert.True(t, rl.CheckAndRecord(addr, t1).Allowed)
	assert.False(t, rl.CheckAndRecord(addr, t1).Allowed)

	d := rl.CheckAndRecord(addr, t1.Add(time.Second+time.Nanosecond))
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestBoundaryTimestampIsPruned(t *testing.T) {
	rl := NewRateLimiter(time.Second, 1)
	addr := netip.MustParseAddr("192.0.2.8")
	t1 := time.Now()

	assert.True(t, rl.CheckAndRecord(addr, t1).Allowed)
	assert.False(t, rl.CheckAndRecord(addr, t1.Add(999*time.Millisecond)).Allowed)

	// t1 sits exactly on the window edge and is dropped, the rejected one is not.
	d := rl.CheckAndRecord(addr, t1.Add(time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, d.Count)
}

func TestRejectedRequestsOccupySlots(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(DefaultWindow, DefaultThreshold, WithClock(clock))
	addr := netip.MustParseAddr("10.0.0.3")

	admitted := 0
	for i := 0; i < DefaultThreshold+200; i++ {
		if rl.Allow(addr) {
			admitted++
		}
		clock.Advance(10 * time.Millisecond)
	}
	assert.Equal(t, DefaultThreshold, admitted)
	assert.Equal(t, DefaultThreshold+200, rl.Count(addr))

	// Still limited half a window later: the rejected requests are recorded too.
	clock.Advance(DefaultWindow / 2)
	assert.False(t, rl.Allow(addr))

	clock.Advance(DefaultWindow + time.Second)
	d := rl.CheckAndRecord(addr, clock.Now())
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRetryAfter(t *testing.T) {
	rl := NewRateLimiter(10*time.Second, 2)
	addr := netip.MustParseAddr("198.51.100.1")
	t1 := time.Now()

	rl.CheckAndRecord(addr, t1)
	rl.CheckAndRecord(addr, t1.Add(2*time.Second))
	d := rl.CheckAndRecord(addr, t1.Add(3*time.Second))
	require.False(t, d.Allowed)
	assert.Equal(t, 9*time.Second, d.RetryAfter)

	// Waiting exactly RetryAfter is enough.
	d = rl.CheckAndRecord(addr, t1.Add(3*time.Second).Add(d.RetryAfter))
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Count)
}

func TestAddressesAreIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	now := time.Now()

	assert.True(t, rl.CheckAndRecord(netip.MustParseAddr("10.0.0.1"), now).Allowed)
	assert.False(t, rl.CheckAndRecord(netip.MustParseAddr("10.0.0.1"), now).Allowed)
	assert.True(t, rl.CheckAndRecord(netip.MustParseAddr("10.0.0.2"), now).Allowed)
	assert.True(t, rl.CheckAndRecord(netip.MustParseAddr("2001:db8::1"), now).Allowed)
	assert.Equal(t, 3, rl.Len())
}

func TestMappedAddressesShareHistory(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	now := time.Now()

	assert.True(t, rl.CheckAndRecord(netip.MustParseAddr("10.0.0.9"), now).Allowed)
	assert.False(t, rl.CheckAndRecord(netip.MustParseAddr("::ffff:10.0.0.9"), now).Allowed)
	assert.Equal(t, 1, rl.Len())
}

func TestConcurrentCheckAndRecord(t *testing.T) {
	rl := NewRateLimiter(time.Hour, 1000)
	addr := netip.MustParseAddr("10.1.1.1")
	now := time.Now()

	const workers = 16
	const perWorker = 250

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rl.CheckAndRecord(addr, now)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, rl.Count(addr))
}

func TestSweep(t *testing.T) {
	rl := NewRateLimiter(time.Second, 5)
	now := time.Now()

	rl.CheckAndRecord(netip.MustParseAddr("10.0.0.1"), now)
	rl.CheckAndRecord(netip.MustParseAddr("10.0.0.2"), now.Add(500*time.Millisecond))
	rl.CheckAndRecord(netip.MustParseAddr("10.0.0.2"), now.Add(900*time.Millisecond))
	require.Equal(t, 2, rl.Len())

	removed := rl.Sweep(now.Add(1600 * time.Millisecond))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, rl.Len())
	assert.Equal(t, 1, rl.Count(netip.MustParseAddr("10.0.0.2")))

	assert.Equal(t, 1, rl.Sweep(now.Add(time.Hour)))
	assert.Zero(t, rl.Len())
}
