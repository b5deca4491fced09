package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessionValidator struct {
	claims      auth.SessionClaims
	validateErr error
}

func (s stubSessionValidator) CookieName() string {
	return "chipledger_session"
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.validateErr
}

func runAuthorize(t *testing.T, validator SessionValidator) (*httptest.ResponseRecorder, *gin.Context, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/rooms/recent", http.NoBody)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{sessions: validator, logger: zap.New(core)}
	handler.authorizeRequest(ctx)
	return recorder, ctx, logs
}

func TestAuthorizeRequestLogsExpiredSessionAtInfoLevel(t *testing.T) {
	recorder, _, logs := runAuthorize(t, stubSessionValidator{validateErr: auth.ErrExpiredSessionToken})

	if recorder.Code != http.StatusSeeOther {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusSeeOther)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired session, got %s", entry.Level)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired session error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsInvalidSessionAtWarnLevel(t *testing.T) {
	recorder, _, logs := runAuthorize(t, stubSessionValidator{validateErr: auth.ErrInvalidSessionToken})

	if recorder.Code != http.StatusSeeOther {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusSeeOther)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected a single warn entry, got %v", entries)
	}
}

func TestAuthorizeRequestSkipsLoggingMissingCookie(t *testing.T) {
	recorder, _, logs := runAuthorize(t, stubSessionValidator{validateErr: auth.ErrMissingSessionToken})

	if recorder.Header().Get("Location") != loginPath {
		t.Fatalf("expected redirect to %s, got %q", loginPath, recorder.Header().Get("Location"))
	}
	if logs.Len() != 0 {
		t.Fatalf("missing cookie is routine and must not be logged, got %d entries", logs.Len())
	}
}

func TestAuthorizeRequestStoresActor(t *testing.T) {
	claims := auth.SessionClaims{UserID: "user-1", UserEmail: "one@example.com", UserDisplayName: "One"}
	recorder, ctx, _ := runAuthorize(t, stubSessionValidator{claims: claims})

	if ctx.IsAborted() {
		t.Fatalf("valid session must not abort, status %d", recorder.Code)
	}
	actor, ok := actorFrom(ctx)
	if !ok || actor.UserID != "user-1" || actor.UserName != "One" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}
