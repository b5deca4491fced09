package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSecret     = "secret"
	testSessionCookieName = "chipledger_session"
)

var testSessionNow = time.Date(2025, 2, 7, 21, 30, 0, 0, time.UTC)

func newTestValidator(t *testing.T) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSecret),
		CookieName:    testSessionCookieName,
		Clock:         func() time.Time { return testSessionNow },
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signSession(t *testing.T, method jwt.SigningMethod, secret string, claims SessionClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func sessionClaimsFor(userID, issuer string, expiresAt time.Time) SessionClaims {
	return SessionClaims{
		UserID:    userID,
		UserEmail: "seat4@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

func TestParseSessionRejections(t *testing.T) {
	validator := newTestValidator(t)
	later := testSessionNow.Add(time.Hour)

	testCases := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "blank",
			token:   "  ",
			wantErr: ErrMissingSessionToken,
		},
		{
			name:    "expired",
			token:   signSession(t, jwt.SigningMethodHS256, testSessionSecret, sessionClaimsFor("user-1", defaultSessionIssuer, testSessionNow.Add(-time.Minute))),
			wantErr: ErrExpiredSessionToken,
		},
		{
			name:    "foreign issuer",
			token:   signSession(t, jwt.SigningMethodHS256, testSessionSecret, sessionClaimsFor("user-1", "someone-else", later)),
			wantErr: ErrInvalidSessionToken,
		},
		{
			name:    "wrong secret",
			token:   signSession(t, jwt.SigningMethodHS256, "other-secret", sessionClaimsFor("user-1", defaultSessionIssuer, later)),
			wantErr: ErrInvalidSessionToken,
		},
		{
			name:    "wrong algorithm",
			token:   signSession(t, jwt.SigningMethodHS512, testSessionSecret, sessionClaimsFor("user-1", defaultSessionIssuer, later)),
			wantErr: ErrInvalidSessionToken,
		},
		{
			name:    "no user id",
			token:   signSession(t, jwt.SigningMethodHS256, testSessionSecret, sessionClaimsFor("", defaultSessionIssuer, later)),
			wantErr: ErrInvalidSessionToken,
		},
		{
			name:    "no expiry",
			token:   signSession(t, jwt.SigningMethodHS256, testSessionSecret, SessionClaims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: defaultSessionIssuer}}),
			wantErr: ErrInvalidSessionToken,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := validator.ParseSession(testCase.token); !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestValidateRequestReadsCookie(t *testing.T) {
	validator := newTestValidator(t)
	signed := signSession(t, jwt.SigningMethodHS256, testSessionSecret, sessionClaimsFor("user-9", defaultSessionIssuer, testSessionNow.Add(time.Hour)))

	request := httptest.NewRequest(http.MethodGet, "/rooms/recent", http.NoBody)
	request.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})

	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	actor := claims.Actor()
	if actor.UserID != "user-9" || actor.UserName != "seat4@example.com" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestValidateRequestWithoutCookie(t *testing.T) {
	validator := newTestValidator(t)

	request := httptest.NewRequest(http.MethodGet, "/rooms/recent", http.NoBody)
	request.AddCookie(&http.Cookie{Name: "unrelated", Value: "x"})
	if _, err := validator.ValidateRequest(request); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestNewSessionValidatorRequiresCookieName(t *testing.T) {
	_, err := NewSessionValidator(SessionValidatorConfig{SigningSecret: []byte(testSessionSecret)})
	if !errors.Is(err, ErrMissingSessionCookieName) {
		t.Fatalf("expected cookie name error, got %v", err)
	}
}
