package users

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("user-%d", s.next), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate identity schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Hasher:     auth.NewPasswordHasher(4),
		IDProvider: &sequenceIDs{},
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestAuthenticateRegistersUnknownEmail(t *testing.T) {
	service := newTestService(t)

	identity, err := service.Authenticate(context.Background(), "  Player@Example.com ", "secret-pass")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if identity.UserID != "user-1" {
		t.Fatalf("unexpected user id %q", identity.UserID)
	}
	if identity.Email != "player@example.com" {
		t.Fatalf("expected normalized email, got %q", identity.Email)
	}

	again, err := service.Authenticate(context.Background(), "player@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("second authenticate failed: %v", err)
	}
	if again.UserID != identity.UserID {
		t.Fatalf("expected stable user id, got %q", again.UserID)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Authenticate(context.Background(), "player@example.com", "right"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, err := service.Authenticate(context.Background(), "player@example.com", "wrong")
	if !failure.Is(err, failure.CodeInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAuthenticateRejectsMalformedEmail(t *testing.T) {
	service := newTestService(t)

	_, err := service.Authenticate(context.Background(), "not-an-email", "secret")
	if !failure.Is(err, failure.CodeInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAuthenticateRejectsOverlongPassword(t *testing.T) {
	service := newTestService(t)

	_, err := service.Authenticate(context.Background(), "long@example.com", strings.Repeat("p", auth.MaxPasswordBytes+1))
	if !failure.Is(err, failure.CodeInvalidCredentials) {
		t.Fatalf("expected invalid-credentials, got %v", err)
	}

	var count int64
	if err := service.db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("overlong password must not register, got %d identities", count)
	}
}
