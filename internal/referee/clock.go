package referee

import (
	"math"
	"sync"
	"time"
)

// Clock supplies wall-clock time for the real-time waits.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is advanced explicitly; used by tests and recordings.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MatchClock tracks simulated time as a tick counter next to an injected
// wall clock. The two are never converted into each other.
type MatchClock struct {
	tick         Tick
	tickDuration time.Duration
	wall         Clock
}

func newMatchClock(tickDuration time.Duration, wall Clock) MatchClock {
	if wall == nil {
		wall = SystemClock{}
	}
	return MatchClock{tick: 0, tickDuration: tickDuration, wall: wall}
}

// Tick returns the current simulation tick.
func (c *MatchClock) Tick() Tick { return c.tick }

// Wall returns the current wall-clock time.
func (c *MatchClock) Wall() time.Time { return c.wall.Now() }

// TickDuration returns the fixed simulated length of a tick.
func (c *MatchClock) TickDuration() time.Duration { return c.tickDuration }

func (c *MatchClock) advance() { c.tick++ }

// Ticks converts a simulated duration to a tick count, rounding up.
func (c *MatchClock) Ticks(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(d) / float64(c.tickDuration)))
}

// Seconds converts a tick count to simulated seconds.
func (c *MatchClock) Seconds(ticks int64) float64 {
	return float64(ticks) * c.tickDuration.Seconds()
}

// SimSeconds returns the simulated time elapsed since the referee started.
func (c *MatchClock) SimSeconds() float64 {
	return c.Seconds(int64(c.tick))
}

// SimTimer expires after a number of simulation ticks.
type SimTimer struct {
	deadline Tick
	armed    bool
}

// Start arms the timer to expire ticks after now.
func (t *SimTimer) Start(now Tick, ticks int64) {
	t.deadline = now + Tick(ticks)
	t.armed = true
}

func (t *SimTimer) Stop() { t.armed = false }

func (t *SimTimer) Armed() bool { return t.armed }

// Expired reports whether an armed timer reached its deadline.
func (t *SimTimer) Expired(now Tick) bool {
	return t.armed && now >= t.deadline
}

// Remaining returns the ticks left, zero when expired or disarmed.
func (t *SimTimer) Remaining(now Tick) int64 {
	if !t.armed || now >= t.deadline {
		return 0
	}
	return int64(t.deadline - now)
}

// RealTimer expires after a wall-clock duration regardless of how fast
// the simulation runs. Checks never block.
type RealTimer struct {
	deadline time.Time
	armed    bool
}

func (t *RealTimer) Start(now time.Time, d time.Duration) {
	t.deadline = now.Add(d)
	t.armed = true
}

func (t *RealTimer) Stop() { t.armed = false }

func (t *RealTimer) Armed() bool { return t.armed }

func (t *RealTimer) Expired(now time.Time) bool {
	return t.armed && !now.Before(t.deadline)
}

func (t *RealTimer) Remaining(now time.Time) time.Duration {
	if !t.armed || !now.Before(t.deadline) {
		return 0
	}
	return t.deadline.Sub(now)
}
