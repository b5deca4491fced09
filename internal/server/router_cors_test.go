package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func preflight(t *testing.T, allowedOrigins []string, origin string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(cors.New(corsConfig(allowedOrigins)))
	router.PUT("/rooms/:roomId/balance", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodOptions, "/rooms/room-1/balance", http.NoBody)
	request.Header.Set("Origin", origin)
	request.Header.Set("Access-Control-Request-Method", http.MethodPut)
	request.Header.Set("Access-Control-Request-Headers", "Content-Type")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestCORSAllowsConfiguredOriginWithCredentials(t *testing.T) {
	recorder := preflight(t, []string{"https://club.example.com"}, "https://club.example.com")

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "https://club.example.com" {
		t.Fatalf("unexpected allow origin %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	recorder := preflight(t, []string{"https://club.example.com"}, "https://evil.example.com")

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, recorder.Code)
	}
}

func TestCORSWithoutListEchoesOrigin(t *testing.T) {
	recorder := preflight(t, nil, "http://localhost:3000")

	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("expected origin to be echoed, got %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
}
