package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unionadmin/benefits-session-service/internal/domain"
)

// Cause says which operation produced a state transition. The controller
// needs it to tell an explicit logout from an unexpected session loss.
type Cause string

const (
	CauseCheck   Cause = "check"
	CauseRefresh Cause = "refresh"
	CauseLogin   Cause = "login"
	CauseLogout  Cause = "logout"
)

// Snapshot is the advisory view the UI renders. It can go stale between
// checks; access control always happens server-side.
type Snapshot struct {
	Authenticated bool
	Loading       bool
	User          *domain.UserProfile
	ExpiresAt     time.Time
}

// ExpiringSoon reports whether the session enters the refresh lead window.
func (s Snapshot) ExpiringSoon(now time.Time, lead time.Duration) bool {
	if !s.Authenticated || s.ExpiresAt.IsZero() {
		return false
	}
	return s.ExpiresAt.Sub(now) < lead
}

type Event struct {
	Snapshot Snapshot
	Cause    Cause
}

// Store is the in-memory auth state machine. It is constructed explicitly
// and injected; nothing in this package holds package-level state.
//
// Overlapping operations resolve in completion order, with two rules that
// keep the state from tearing: a failure never clears state written by a
// success that completed after the failing call began, and nothing started
// before an explicit logout may resurrect the session afterwards.
type Store struct {
	api    API
	logger *slog.Logger

	mu          sync.Mutex
	snap        Snapshot
	seq         uint64 // next operation sequence number
	barrier     uint64 // operations below this are void (set by logout)
	lastSuccess uint64 // highest seq that completed successfully
	inflight    int
	subs        []func(Event)

	checkGroup singleflight.Group
}

func NewStore(api API, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{api: api, logger: logger}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers fn for every state transition. Notification happens
// outside the store lock; fn may call back into the store.
func (s *Store) Subscribe(fn func(Event)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// CheckAuth queries the current-session endpoint and mirrors the result.
// Concurrent calls share one flight.
func (s *Store) CheckAuth(ctx context.Context) error {
	_, err, _ := s.checkGroup.Do("check", func() (any, error) {
		return nil, s.runSessionOp(ctx, CauseCheck, s.api.Session)
	})
	return err
}

// RefreshSession exchanges the refresh token for a new expiry. Failure
// transitions to unauthenticated and is returned to the caller, who decides
// whether to redirect; the store itself never navigates.
func (s *Store) RefreshSession(ctx context.Context) error {
	return s.runSessionOp(ctx, CauseRefresh, s.api.Refresh)
}

func (s *Store) Login(ctx context.Context, creds Credentials) error {
	return s.runSessionOp(ctx, CauseLogin, func(ctx context.Context) (*SessionInfo, error) {
		return s.api.Login(ctx, creds)
	})
}

// Logout clears local state unconditionally, then tells the server. The
// clear is not conditioned on server acknowledgment, and any operation still
// in flight is voided so a late refresh success cannot resurrect the session.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	s.barrier = s.seq
	s.snap = Snapshot{}
	s.mu.Unlock()
	s.notify(CauseLogout)

	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("server logout failed, local state already cleared", "error", err)
		return err
	}
	return nil
}

func (s *Store) runSessionOp(ctx context.Context, cause Cause, op func(context.Context) (*SessionInfo, error)) error {
	seq := s.begin(cause)
	info, err := op(ctx)
	if err != nil {
		s.completeFailure(seq, cause, err)
		return err
	}
	s.completeSuccess(seq, cause, info)
	return nil
}

func (s *Store) begin(cause Cause) uint64 {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.inflight++
	s.snap.Loading = true
	s.mu.Unlock()
	s.notify(cause)
	return seq
}

func (s *Store) completeSuccess(seq uint64, cause Cause, info *SessionInfo) {
	s.mu.Lock()
	s.settle()
	if seq < s.barrier {
		// Started before a logout; the result no longer means anything.
		s.mu.Unlock()
		s.notify(cause)
		return
	}
	if seq > s.lastSuccess {
		s.lastSuccess = seq
	}
	user := info.User
	s.snap.Authenticated = true
	s.snap.User = &user
	s.snap.ExpiresAt = info.ExpiresAt
	s.mu.Unlock()
	s.notify(cause)
}

func (s *Store) completeFailure(seq uint64, cause Cause, err error) {
	s.mu.Lock()
	s.settle()
	if seq < s.barrier || seq < s.lastSuccess {
		// Stale: a newer success (or a logout) already superseded this
		// call. Dropping it keeps an old failure from clearing new state.
		s.mu.Unlock()
		s.notify(cause)
		return
	}
	s.snap.Authenticated = false
	s.snap.User = nil
	s.snap.ExpiresAt = time.Time{}
	s.mu.Unlock()

	if errors.Is(err, ErrUnauthorized) {
		s.logger.Info("session rejected by server", "op", string(cause))
	} else {
		s.logger.Warn("session check transport failure, assuming unauthenticated", "op", string(cause), "error", err)
	}
	s.notify(cause)
}

func (s *Store) settle() {
	if s.inflight > 0 {
		s.inflight--
	}
	s.snap.Loading = s.inflight > 0
}

func (s *Store) notify(cause Cause) {
	s.mu.Lock()
	snap := s.snap
	subs := make([]func(Event), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(Event{Snapshot: snap, Cause: cause})
	}
}
