package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = 12 * time.Hour

var (
	errMissingSigningSecret = errors.New("session issuer: signing secret must be provided")
	errMissingSubjectClaim  = errors.New("session issuer: user id must be provided")
)

// SessionIssuerConfig configures the session JWT issuer.
type SessionIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TTL           time.Duration
	Clock         func() time.Time
}

// SessionIssuer signs session JWTs after a successful credentials login.
type SessionIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

// NewSessionIssuer constructs a SessionIssuer; TTL and issuer fall back to defaults.
func NewSessionIssuer(cfg SessionIssuerConfig) (*SessionIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// IssueSession produces a signed JWT for the actor and its lifetime.
func (i *SessionIssuer) IssueSession(userID, email, displayName string) (string, time.Duration, error) {
	if strings.TrimSpace(userID) == "" {
		return "", 0, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	claims := SessionClaims{
		UserID:          userID,
		UserEmail:       email,
		UserDisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, i.ttl, nil
}
