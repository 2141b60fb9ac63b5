package client

import (
	"sync"
	"time"
)

// refreshTimer arms at most one pending refresh at a time. Re-arming against
// a different target cancels the previous timer first; duplicate pending
// timers would mean duplicate refresh calls.
type refreshTimer struct {
	mu     sync.Mutex
	timer  *time.Timer
	target time.Time
	armed  bool
}

// Arm schedules fn at target, replacing any pending timer. A target that is
// already past fires immediately. Arming the same target twice is a no-op.
func (t *refreshTimer) Arm(target time.Time, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed && target.Equal(t.target) {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	delay := time.Until(target)
	if delay < 0 {
		delay = 0
	}
	t.target = target
	t.armed = true
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		t.armed = false
		t.mu.Unlock()
		fn()
	})
}

func (t *refreshTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.armed = false
}

// Pending reports whether a timer is armed and for when. Test hook, mostly.
func (t *refreshTimer) Pending() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target, t.armed
}
