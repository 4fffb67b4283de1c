package relay

import (
	"testing"
	"time"
)

func TestThrottleBurst(t *testing.T) {
	t.Parallel()
	th := NewThrottle(5, 10*time.Second)
	now := time.Unix(1000, 0)
	th.now = func() time.Time { return now }

	admitted, denied := 0, 0
	for i := 0; i < 8; i++ {
		if th.Allow() {
			admitted++
		} else {
			denied++
		}
	}
	if admitted != 5 || denied != 3 {
		t.Fatalf("admitted=%d denied=%d, want 5/3", admitted, denied)
	}
}

func TestThrottleSlidingWindow(t *testing.T) {
	t.Parallel()
	th := NewThrottle(2, 10*time.Second)
	now := time.Unix(1000, 0)
	th.now = func() time.Time { return now }

	if !th.Allow() {
		t.Fatal("first call denied")
	}
	now = now.Add(6 * time.Second)
	if !th.Allow() {
		t.Fatal("second call denied")
	}
	// Window [t+6-10, t+6] holds both admissions.
	if th.Allow() {
		t.Fatal("third call admitted inside full window")
	}
	// 11s after the first admission it slides out; one slot frees up.
	now = now.Add(5 * time.Second)
	if !th.Allow() {
		t.Fatal("call denied after window slid")
	}
	if th.Allow() {
		t.Fatal("window should be full again")
	}
}

func TestThrottleConfigure(t *testing.T) {
	t.Parallel()
	th := NewThrottle(1, time.Minute)
	now := time.Unix(1000, 0)
	th.now = func() time.Time { return now }

	if !th.Allow() {
		t.Fatal("first call denied")
	}
	if th.Allow() {
		t.Fatal("second call admitted with max=1")
	}
	th.Configure(3, time.Minute)
	if !th.Allow() || !th.Allow() {
		t.Fatal("raised limit not applied")
	}
	if th.Allow() {
		t.Fatal("fourth call admitted with max=3")
	}
}
