package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// VerifyReason classifies why a token failed verification. The taxonomy is
// deliberately coarse: callers at the trust boundary collapse every reason
// to "no session" and must never echo the distinction to the client.
type VerifyReason string

const (
	ReasonMalformed    VerifyReason = "malformed"
	ReasonBadSignature VerifyReason = "bad_signature"
	ReasonExpired      VerifyReason = "expired"
)

type VerificationError struct {
	Reason VerifyReason
	cause  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("token verification failed: %s", e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.cause }

// SessionClaims is the payload of both token kinds. TokenType distinguishes
// access from refresh credentials so one can never stand in for the other.
type SessionClaims struct {
	TokenType string `json:"token_type"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret string) *JWTManager {
	return &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
	}
}

func (m *JWTManager) SignAccessToken(userID, name, email string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		TokenType: "access",
		Name:      name,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
}

func (m *JWTManager) SignRefreshToken(userID string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
}

func (m *JWTManager) VerifyAccessToken(raw string) (*SessionClaims, error) {
	return m.verify(raw, m.accessSecret, "access", time.Now)
}

// VerifyAccessTokenAt validates against an explicit clock. Tests use it to
// probe the expiry boundary without sleeping.
func (m *JWTManager) VerifyAccessTokenAt(raw string, now time.Time) (*SessionClaims, error) {
	return m.verify(raw, m.accessSecret, "access", func() time.Time { return now })
}

func (m *JWTManager) VerifyRefreshToken(raw string) (*SessionClaims, error) {
	return m.verify(raw, m.refreshSecret, "refresh", time.Now)
}

func (m *JWTManager) verify(raw string, secret []byte, tokenType string, nowFn func() time.Time) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithTimeFunc(nowFn),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !tok.Valid {
		return nil, &VerificationError{Reason: ReasonBadSignature, cause: errors.New("invalid token")}
	}
	if claims.TokenType != tokenType {
		return nil, &VerificationError{Reason: ReasonBadSignature, cause: fmt.Errorf("unexpected token type: %s", claims.TokenType)}
	}
	return claims, nil
}

// DecodeUnsafe returns the claims without checking signature or expiry.
// It exists for non-trust-boundary inspection, such as a client reading its
// own expiry for display. Never use it for an access-control decision.
func (m *JWTManager) DecodeUnsafe(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, &VerificationError{Reason: ReasonMalformed, cause: err}
	}
	return claims, nil
}

func classifyParseError(err error) *VerificationError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &VerificationError{Reason: ReasonExpired, cause: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &VerificationError{Reason: ReasonMalformed, cause: err}
	default:
		// Signature failures, issuer/audience mismatches and tokens signed
		// with an unexpected algorithm all mean the credential is not ours.
		return &VerificationError{Reason: ReasonBadSignature, cause: err}
	}
}
