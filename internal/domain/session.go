package domain

import "time"

// UserProfile is the denormalized identity snapshot carried inside the
// session token and returned to the dashboard for display. It is not the
// authoritative member record; the benefits backend owns that.
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Session is the server-observable proof of authentication. It exists only
// as a signed cookie; there is no server-side session row.
type Session struct {
	AccessToken  string      `json:"-"`
	RefreshToken string      `json:"-"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         UserProfile `json:"user"`
}

// TTL reports how long the session remains valid from now. Negative means
// already expired.
func (s *Session) TTL(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}
