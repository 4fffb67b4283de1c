package relay

import (
	"sync"
	"time"
)

// Throttle is a sliding-window admission gate for outbound chat calls: at
// most maxCalls sends are admitted within any rolling period-length window.
//
// It is shared across all in-flight events, so the read-check-admit path is
// one critical section. Allow never blocks; a denied send is skipped, not
// queued.
type Throttle struct {
	mu       sync.Mutex
	maxCalls int
	period   time.Duration
	stamps   []time.Time

	now func() time.Time
}

func NewThrottle(maxCalls int, period time.Duration) *Throttle {
	if maxCalls <= 0 {
		maxCalls = 5
	}
	if period <= 0 {
		period = 10 * time.Second
	}
	return &Throttle{maxCalls: maxCalls, period: period, now: time.Now}
}

// Allow admits one call if the rolling window has room.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.period)

	// Drop admissions that slid out of the window.
	keep := t.stamps[:0]
	for _, s := range t.stamps {
		if s.After(cutoff) {
			keep = append(keep, s)
		}
	}
	t.stamps = keep

	if len(t.stamps) >= t.maxCalls {
		return false
	}
	t.stamps = append(t.stamps, now)
	return true
}

// Configure swaps the window parameters at runtime (live config reload).
// Past admissions are kept; the new bounds apply from the next Allow.
func (t *Throttle) Configure(maxCalls int, period time.Duration) {
	if maxCalls <= 0 || period <= 0 {
		return
	}
	t.mu.Lock()
	t.maxCalls = maxCalls
	t.period = period
	t.mu.Unlock()
}
