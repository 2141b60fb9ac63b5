// Package client mirrors the server-side session in a front-end process:
// an explicit auth state container, a proactive refresh scheduler and a
// last-chance recovery path. The edge gate and the backend stay
// authoritative; everything here is advisory state for the UI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/unionadmin/benefits-session-service/internal/domain"
)

// ErrUnauthorized is an explicit rejection by the session service, as
// opposed to a transport failure. Callers log the two differently: a 401 is
// a fact about the session, a transport error may be transient.
var ErrUnauthorized = errors.New("session rejected")

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SessionInfo struct {
	User      domain.UserProfile
	ExpiresAt time.Time
}

// API is the session service surface the store depends on. Tests swap in a
// fake; production uses HTTPAPI.
type API interface {
	Session(ctx context.Context) (*SessionInfo, error)
	Refresh(ctx context.Context) (*SessionInfo, error)
	Login(ctx context.Context, creds Credentials) (*SessionInfo, error)
	Logout(ctx context.Context) error
}

// HTTPAPI talks to the session endpoints with a cookie jar, so the HTTP-only
// session cookie flows without the process ever reading it.
type HTTPAPI struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAPI(baseURL string) (*HTTPAPI, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPAPI{
		baseURL: baseURL,
		client:  &http.Client{Jar: jar, Timeout: 15 * time.Second},
	}, nil
}

func (a *HTTPAPI) Session(ctx context.Context) (*SessionInfo, error) {
	return a.sessionCall(ctx, http.MethodGet, "/api/auth/session", nil)
}

func (a *HTTPAPI) Refresh(ctx context.Context) (*SessionInfo, error) {
	return a.sessionCall(ctx, http.MethodPost, "/api/auth/refresh", nil)
}

func (a *HTTPAPI) Login(ctx context.Context, creds Credentials) (*SessionInfo, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	return a.sessionCall(ctx, http.MethodPost, "/api/auth/login", body)
}

func (a *HTTPAPI) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/auth/logout", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("logout: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type sessionPayload struct {
	Success bool `json:"success"`
	Data    struct {
		User      domain.UserProfile `json:"user"`
		ExpiresAt int64              `json:"expiresAt"`
	} `json:"data"`
}

func (a *HTTPAPI) sessionCall(ctx context.Context, method, path string, body []byte) (*SessionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	var payload sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	return &SessionInfo{
		User:      payload.Data.User,
		ExpiresAt: time.Unix(payload.Data.ExpiresAt, 0),
	}, nil
}
