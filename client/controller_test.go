package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRefreshTimerSingleArming(t *testing.T) {
	var timer refreshTimer
	var fires atomic.Int32

	far := time.Now().Add(time.Hour)
	farther := time.Now().Add(2 * time.Hour)
	timer.Arm(far, func() { fires.Add(1) })
	timer.Arm(farther, func() { fires.Add(1) })

	target, armed := timer.Pending()
	if !armed {
		t.Fatal("expected a pending timer")
	}
	if !target.Equal(farther) {
		t.Fatalf("pending target = %v, want %v", target, farther)
	}
	if fires.Load() != 0 {
		t.Fatal("nothing should have fired yet")
	}
	timer.Cancel()
	if _, armed := timer.Pending(); armed {
		t.Fatal("cancel must disarm")
	}
}

func TestRefreshTimerPastTargetFiresImmediately(t *testing.T) {
	var timer refreshTimer
	fired := make(chan struct{})
	timer.Arm(time.Now().Add(-time.Second), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past-target timer did not fire")
	}
}

func TestRefreshTimerRearmSameTargetKeepsTimer(t *testing.T) {
	var timer refreshTimer
	var fires atomic.Int32
	target := time.Now().Add(50 * time.Millisecond)

	timer.Arm(target, func() { fires.Add(1) })
	timer.Arm(target, func() { fires.Add(1) })

	time.Sleep(200 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Fatalf("expected exactly one fire, got %d", got)
	}
}

// Session well outside the lead window: checkAuth authenticates, the timer
// is armed for later, and no refresh happens.
func TestControllerDoesNotRefreshOutsideLeadWindow(t *testing.T) {
	api := &fakeAPI{sessionFn: validSession(30 * time.Minute)}
	store := NewStore(api, nil)
	c := NewController(store, ControllerConfig{
		RefreshLead:        2 * time.Minute,
		RevalidateInterval: time.Hour,
	}, nil)
	defer c.Close()

	if err := store.CheckAuth(context.Background()); err != nil {
		t.Fatalf("checkAuth: %v", err)
	}
	if !store.Snapshot().Authenticated {
		t.Fatal("expected authenticated state")
	}

	target, armed := c.refresh.Pending()
	if !armed {
		t.Fatal("expected an armed refresh timer")
	}
	wantAround := store.Snapshot().ExpiresAt.Add(-2 * time.Minute)
	if d := target.Sub(wantAround); d < -time.Second || d > time.Second {
		t.Fatalf("timer target %v not near %v", target, wantAround)
	}

	time.Sleep(100 * time.Millisecond)
	if _, refreshes, _ := api.counts(); refreshes != 0 {
		t.Fatalf("no refresh expected outside the lead window, got %d", refreshes)
	}
}

// Session already inside the lead window: the timer target is in the past,
// so refresh fires immediately, extends expiry, and authentication never
// flickers to false.
func TestControllerRefreshesImmediatelyInsideLeadWindow(t *testing.T) {
	api := &fakeAPI{
		sessionFn: validSession(60 * time.Millisecond),
		refreshFn: validSession(30 * time.Minute),
	}
	store := NewStore(api, nil)

	var flickered atomic.Bool
	var sawAuth atomic.Bool
	store.Subscribe(func(ev Event) {
		if ev.Snapshot.Authenticated {
			sawAuth.Store(true)
		} else if sawAuth.Load() {
			flickered.Store(true)
		}
	})

	c := NewController(store, ControllerConfig{
		RefreshLead:        120 * time.Millisecond,
		RevalidateInterval: time.Hour,
	}, nil)
	defer c.Close()

	if err := store.CheckAuth(context.Background()); err != nil {
		t.Fatalf("checkAuth: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, refreshes, _ := api.counts(); refreshes >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("proactive refresh never fired")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Wait for the refresh result to land.
	deadline = time.Now().Add(2 * time.Second)
	for store.Snapshot().ExpiresAt.Before(time.Now().Add(time.Minute)) {
		if time.Now().After(deadline) {
			t.Fatalf("expiry never extended: %v", store.Snapshot().ExpiresAt)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if flickered.Load() {
		t.Fatal("authentication flickered to false during silent refresh")
	}
}

func TestControllerPeriodicRevalidation(t *testing.T) {
	api := &fakeAPI{sessionFn: validSession(time.Hour)}
	store := NewStore(api, nil)
	c := NewController(store, ControllerConfig{
		RefreshLead:        time.Minute,
		RevalidateInterval: 30 * time.Millisecond,
	}, nil)
	defer c.Close()

	if err := store.CheckAuth(context.Background()); err != nil {
		t.Fatalf("checkAuth: %v", err)
	}
	base, _, _ := api.counts()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if calls, _, _ := api.counts(); calls >= base+2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("periodic revalidation never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Unexpected auth loss triggers exactly one recovery cycle; when that fails
// too, OnAuthLost fires once and nothing loops.
func TestControllerLastChanceFiresOnce(t *testing.T) {
	api := &fakeAPI{sessionFn: validSession(time.Hour)}
	store := NewStore(api, nil)

	var lost atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	c := NewController(store, ControllerConfig{
		RefreshLead:        time.Minute,
		RevalidateInterval: time.Hour,
	}, nil)
	c.OnAuthLost = func() {
		lost.Add(1)
		wg.Done()
	}
	defer c.Close()

	if err := store.CheckAuth(context.Background()); err != nil {
		t.Fatalf("checkAuth: %v", err)
	}

	// Server starts rejecting everything: the next check loses the session
	// and the recovery cycle cannot restore it.
	api.mu.Lock()
	api.sessionFn = func(context.Context) (*SessionInfo, error) { return nil, ErrUnauthorized }
	api.refreshFn = func(context.Context) (*SessionInfo, error) { return nil, ErrUnauthorized }
	api.mu.Unlock()

	_ = store.CheckAuth(context.Background())
	wg.Wait()

	// More failing checks while the guard is set: no second recovery.
	_ = store.CheckAuth(context.Background())
	time.Sleep(100 * time.Millisecond)

	if got := lost.Load(); got != 1 {
		t.Fatalf("OnAuthLost fired %d times, want 1", got)
	}
}

func TestControllerLastChanceRecoversViaRefresh(t *testing.T) {
	api := &fakeAPI{
		sessionFn: validSession(time.Hour),
		refreshFn: validSession(time.Hour),
	}
	store := NewStore(api, nil)
	var lost atomic.Int32
	c := NewController(store, ControllerConfig{
		RefreshLead:        time.Minute,
		RevalidateInterval: time.Hour,
	}, nil)
	c.OnAuthLost = func() { lost.Add(1) }
	defer c.Close()

	if err := store.CheckAuth(context.Background()); err != nil {
		t.Fatalf("checkAuth: %v", err)
	}

	// Session check starts failing but refresh still works: recovery should
	// restore authentication silently.
	api.mu.Lock()
	api.sessionFn = func(context.Context) (*SessionInfo, error) { return nil, ErrUnauthorized }
	api.mu.Unlock()

	_ = store.CheckAuth(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for !store.Snapshot().Authenticated {
		if time.Now().After(deadline) {
			t.Fatal("recovery via refresh never restored the session")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if lost.Load() != 0 {
		t.Fatalf("OnAuthLost fired %d times during successful recovery", lost.Load())
	}
}

func TestControllerExplicitLogoutDoesNotTriggerRecovery(t *testing.T) {
	api := &fakeAPI{sessionFn: validSession(time.Hour)}
	store := NewStore(api, nil)
	var lost atomic.Int32
	c := NewController(store, ControllerConfig{
		RefreshLead:        time.Minute,
		RevalidateInterval: time.Hour,
	}, nil)
	c.OnAuthLost = func() { lost.Add(1) }
	defer c.Close()

	if err := store.CheckAuth(context.Background()); err != nil {
		t.Fatalf("checkAuth: %v", err)
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if lost.Load() != 0 {
		t.Fatal("explicit logout must not trigger last-chance recovery")
	}
	if _, armed := c.refresh.Pending(); armed {
		t.Fatal("logout must cancel the refresh timer")
	}
	if sessions, refreshes, _ := api.counts(); sessions != 1 || refreshes != 0 {
		t.Fatalf("no recovery traffic expected after logout, got sessions=%d refreshes=%d", sessions, refreshes)
	}
}

func TestControllerCloseCancelsAllTimers(t *testing.T) {
	api := &fakeAPI{sessionFn: validSession(time.Hour)}
	store := NewStore(api, nil)
	c := NewController(store, ControllerConfig{
		RefreshLead:        time.Minute,
		RevalidateInterval: 20 * time.Millisecond,
	}, nil)

	if err := store.CheckAuth(context.Background()); err != nil {
		t.Fatalf("checkAuth: %v", err)
	}
	c.Close()

	base, _, _ := api.counts()
	time.Sleep(100 * time.Millisecond)
	if after, _, _ := api.counts(); after != base {
		t.Fatalf("background work survived Close: %d -> %d calls", base, after)
	}
	if _, armed := c.refresh.Pending(); armed {
		t.Fatal("Close must cancel the refresh timer")
	}
}
