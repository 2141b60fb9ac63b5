package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unionadmin/benefits-session-service/internal/domain"
	"github.com/unionadmin/benefits-session-service/internal/security"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	codec := security.NewJWTManager(
		"union-benefits",
		"benefits-dashboard",
		"abcdefghijklmnopqrstuvwxyz123456",
		"abcdefghijklmnopqrstuvwxyz654321",
	)
	lookup := func(userID string) (*domain.UserProfile, error) {
		if userID == "member-42" {
			return &domain.UserProfile{ID: "member-42", Name: "Terry Gilliam", Email: "terry@example.org"}, nil
		}
		return nil, fmt.Errorf("unknown user %q", userID)
	}
	return NewManager(codec, Config{
		CookieName: "union-session",
		MaxAge:     time.Hour,
		RefreshTTL: 24 * time.Hour,
		Secure:     true,
	}, lookup, nil)
}

func requestWithCookie(name, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req
}

func createSession(t *testing.T, m *Manager) (*domain.Session, *http.Cookie) {
	t.Helper()
	rr := httptest.NewRecorder()
	sess, err := m.Create(rr, domain.UserProfile{ID: "member-42", Name: "Terry Gilliam", Email: "terry@example.org"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected exactly one cookie, got %d", len(cookies))
	}
	return sess, cookies[0]
}

func TestCreateSetsHardenedCookie(t *testing.T) {
	m := newTestManager(t)
	sess, cookie := createSession(t, m)

	if cookie.Name != "union-session" {
		t.Fatalf("cookie name = %q", cookie.Name)
	}
	if !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("cookie must be HttpOnly and Secure, got %+v", cookie)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie SameSite = %v, want Lax", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Fatalf("cookie path = %q, want /", cookie.Path)
	}
	if cookie.MaxAge != 3600 {
		t.Fatalf("cookie max-age = %d, want 3600", cookie.MaxAge)
	}
	if until := time.Until(sess.ExpiresAt); until < 59*time.Minute || until > time.Hour {
		t.Fatalf("session expiry %v not near one hour out", until)
	}
}

func TestGetRoundTrip(t *testing.T) {
	m := newTestManager(t)
	_, cookie := createSession(t, m)

	sess := m.Get(requestWithCookie(cookie.Name, cookie.Value))
	if sess == nil {
		t.Fatal("expected valid session")
	}
	if sess.User.ID != "member-42" || sess.User.Email != "terry@example.org" {
		t.Fatalf("profile not restored: %+v", sess.User)
	}
	if sess.RefreshToken == "" {
		t.Fatal("refresh token not carried through the cookie")
	}
}

// Four distinct bad inputs, one observable outcome: nil.
func TestGetReturnsNilForAllInvalidInputs(t *testing.T) {
	m := newTestManager(t)

	foreignCodec := security.NewJWTManager(
		"union-benefits",
		"benefits-dashboard",
		"00000000000000000000000000000000",
		"11111111111111111111111111111111",
	)
	forged, err := foreignCodec.SignAccessToken("member-42", "", "", time.Hour)
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}
	ownCodec := security.NewJWTManager(
		"union-benefits",
		"benefits-dashboard",
		"abcdefghijklmnopqrstuvwxyz123456",
		"abcdefghijklmnopqrstuvwxyz654321",
	)
	expired, err := ownCodec.SignAccessToken("member-42", "", "", -time.Minute)
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}

	cases := map[string]string{
		"missing cookie":  "",
		"non-jwt value":   "definitely-not-a-token",
		"wrong signature": forged + "|" + forged,
		"expired token":   expired + "|" + expired,
	}
	for name, value := range cases {
		if sess := m.Get(requestWithCookie("union-session", value)); sess != nil {
			t.Fatalf("%s: expected nil session, got %+v", name, sess)
		}
	}
}

func TestRefreshRotatesCookie(t *testing.T) {
	m := newTestManager(t)
	sess, cookie := createSession(t, m)

	refresh := m.RefreshTokenFromRequest(requestWithCookie(cookie.Name, cookie.Value))
	if refresh == "" {
		t.Fatal("refresh token not extractable from cookie")
	}

	rr := httptest.NewRecorder()
	rotated, err := m.Refresh(rr, refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.User.ID != sess.User.ID {
		t.Fatalf("rotated session user = %q, want %q", rotated.User.ID, sess.User.ID)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value == cookie.Value {
		t.Fatal("refresh must rotate the session cookie")
	}
}

func TestRefreshFailuresAreTerminal(t *testing.T) {
	m := newTestManager(t)

	codec := security.NewJWTManager(
		"union-benefits",
		"benefits-dashboard",
		"abcdefghijklmnopqrstuvwxyz123456",
		"abcdefghijklmnopqrstuvwxyz654321",
	)
	expired, _ := codec.SignRefreshToken("member-42", -time.Minute)
	unknownUser, _ := codec.SignRefreshToken("member-99", time.Hour)

	for name, token := range map[string]string{
		"garbage":           "nope",
		"expired":           expired,
		"unknown user":      unknownUser,
		"access-as-refresh": mustSignAccess(t, codec),
	} {
		rr := httptest.NewRecorder()
		if _, err := m.Refresh(rr, token); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("%s: expected ErrInvalidRefreshToken, got %v", name, err)
		}
	}
}

func mustSignAccess(t *testing.T, codec *security.JWTManager) string {
	t.Helper()
	raw, err := codec.SignAccessToken("member-42", "", "", time.Hour)
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	return raw
}

func TestDestroyClearsCookie(t *testing.T) {
	m := newTestManager(t)
	rr := httptest.NewRecorder()
	m.Destroy(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected clearing cookie, got %d cookies", len(cookies))
	}
	if cookies[0].Value != "" || cookies[0].MaxAge != -1 {
		t.Fatalf("cookie not cleared: %+v", cookies[0])
	}
}
