package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ControllerConfig struct {
	// RefreshLead is how long before expiry the proactive refresh fires.
	RefreshLead time.Duration
	// RevalidateInterval is the cadence of the periodic checkAuth, which
	// catches server-side invalidation the client would not otherwise see.
	RevalidateInterval time.Duration
}

// Controller drives the refresh timers off store transitions. It owns three
// flows: the proactive refresh timer, the periodic revalidation ticker and
// the one-shot last-chance recovery after an unexpected loss of auth.
//
// When recovery fails the controller reports through OnAuthLost exactly once
// per loss event and does nothing else; redirecting to login is the UI's
// decision.
type Controller struct {
	store  *Store
	cfg    ControllerConfig
	logger *slog.Logger

	// OnAuthLost fires after the last-chance cycle could not restore the
	// session. Optional.
	OnAuthLost func()

	refresh refreshTimer

	mu             sync.Mutex
	wasAuth        bool
	recoveryUsed   bool
	revalidateStop chan struct{}
	closed         bool
}

func NewController(store *Store, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if cfg.RefreshLead <= 0 {
		cfg.RefreshLead = 2 * time.Minute
	}
	if cfg.RevalidateInterval <= 0 {
		cfg.RevalidateInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{store: store, cfg: cfg, logger: logger}
	store.Subscribe(c.handle)
	return c
}

// Logout is the explicit path: timers go down first so nothing refires while
// the store clears.
func (c *Controller) Logout(ctx context.Context) error {
	c.stopTimers()
	return c.store.Logout(ctx)
}

// Close tears down all background work. The controller must not be used
// afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stopTimers()
}

func (c *Controller) handle(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if ev.Snapshot.Authenticated {
		c.wasAuth = true
		c.recoveryUsed = false // guard resets only on successful auth
		c.startRevalidateLocked()
		c.mu.Unlock()
		// Arm only on settled state: arming off an in-flight operation's
		// stale expiry would fire a duplicate refresh.
		if !ev.Snapshot.Loading {
			c.refresh.Arm(ev.Snapshot.ExpiresAt.Add(-c.cfg.RefreshLead), c.proactiveRefresh)
		}
		return
	}

	if ev.Snapshot.Loading {
		// An operation is still in flight; not a settled loss.
		c.mu.Unlock()
		return
	}

	c.stopRevalidateLocked()
	lost := c.wasAuth && ev.Cause != CauseLogout && !c.recoveryUsed
	if lost {
		c.recoveryUsed = true
	}
	c.wasAuth = false
	c.mu.Unlock()
	c.refresh.Cancel()

	if lost {
		go c.lastChance()
	}
}

func (c *Controller) proactiveRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.store.RefreshSession(ctx); err != nil {
		c.logger.Warn("proactive refresh failed", "error", err)
	}
}

// lastChance runs one check-then-refresh cycle after an unexpected loss.
// It never loops: if the cycle fails, OnAuthLost fires and the guard stays
// set until a later successful authentication resets it.
func (c *Controller) lastChance() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.store.CheckAuth(ctx); err == nil {
		return
	}
	if err := c.store.RefreshSession(ctx); err == nil {
		return
	}
	c.logger.Info("last-chance session recovery failed")
	if c.OnAuthLost != nil {
		c.OnAuthLost()
	}
}

func (c *Controller) startRevalidateLocked() {
	if c.revalidateStop != nil {
		return
	}
	stop := make(chan struct{})
	c.revalidateStop = stop
	go func() {
		ticker := time.NewTicker(c.cfg.RevalidateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := c.store.CheckAuth(ctx); err != nil {
					c.logger.Warn("periodic revalidation failed", "error", err)
				}
				cancel()
			case <-stop:
				return
			}
		}
	}()
}

func (c *Controller) stopRevalidateLocked() {
	if c.revalidateStop != nil {
		close(c.revalidateStop)
		c.revalidateStop = nil
	}
}

func (c *Controller) stopTimers() {
	c.refresh.Cancel()
	c.mu.Lock()
	c.stopRevalidateLocked()
	c.mu.Unlock()
}
