package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSessionSigningKey = errors.New("session validator: signing key required")
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
)

// SessionValidatorConfig describes how to validate session cookies.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator resolves the session cookie issued at login back into claims.
type SessionValidator struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		secret:     append([]byte(nil), cfg.SigningSecret...),
		cookieName: cookieName,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

// CookieName returns the cookie carrying the session token.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ParseSession verifies a raw session token. Expiry is reported as
// ErrExpiredSessionToken; every other failure wraps ErrInvalidSessionToken.
func (v *SessionValidator) ParseSession(raw string) (SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return SessionClaims{}, ErrExpiredSessionToken
	case err != nil:
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, fmt.Errorf("%w: user_id claim missing", ErrInvalidSessionToken)
	}
	return claims, nil
}

// ValidateRequest reads the session cookie from r and parses it.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	if r == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	cookie, err := r.Cookie(v.cookieName)
	if err != nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ParseSession(cookie.Value)
}
