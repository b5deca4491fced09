package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const opAuthenticate = "users.authenticate"

// PasswordHasher hashes and verifies login passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// ServiceConfig describes the dependencies required for credentials logins.
type ServiceConfig struct {
	Database   *gorm.DB
	Hasher     PasswordHasher
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service registers and authenticates credentials logins.
type Service struct {
	db         *gorm.DB
	hasher     PasswordHasher
	idProvider ids.Provider
	now        func() time.Time
	logger     *zap.Logger
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("users: password hasher required")
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		hasher:     cfg.Hasher,
		idProvider: idProvider,
		now:        clock,
		logger:     logger,
	}, nil
}

// Authenticate verifies the password for email. An email that has never been
// seen is registered with the supplied password on first login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	normalized := normalizeEmail(email)
	if _, err := mail.ParseAddress(normalized); err != nil || password == "" {
		return Identity{}, failure.New(failure.CodeInvalidCredentials, opAuthenticate, err)
	}

	identity, err := s.findByEmail(ctx, normalized)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.register(ctx, normalized, password)
	}
	if err != nil {
		return Identity{}, s.internal("identity_lookup_failed", err)
	}

	if !s.hasher.Verify(password, identity.PasswordHash) {
		return Identity{}, failure.New(failure.CodeInvalidCredentials, opAuthenticate, nil)
	}

	seenAt := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&Identity{}).
		Where("user_id = ?", identity.UserID).
		Update("last_seen_at", seenAt).Error; err != nil {
		s.logger.Warn("failed to record last seen", zap.String("user_id", identity.UserID), zap.Error(err))
	}
	identity.LastSeenAt = seenAt
	return identity, nil
}

func (s *Service) register(ctx context.Context, email, password string) (Identity, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return Identity{}, failure.New(failure.CodeInvalidCredentials, opAuthenticate, err)
	}
	if err != nil {
		return Identity{}, s.internal("password_hash_failed", err)
	}
	userID, err := s.idProvider.NewID()
	if err != nil {
		return Identity{}, s.internal("id_generation_failed", err)
	}
	identity := Identity{
		UserID:       userID,
		Email:        email,
		PasswordHash: hash,
		LastSeenAt:   s.now().UTC(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&identity)
	if result.Error != nil {
		return Identity{}, s.internal("identity_insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		// Registered concurrently; verify against the stored hash instead.
		stored, err := s.findByEmail(ctx, email)
		if err != nil {
			return Identity{}, s.internal("identity_lookup_failed", err)
		}
		if !s.hasher.Verify(password, stored.PasswordHash) {
			return Identity{}, failure.New(failure.CodeInvalidCredentials, opAuthenticate, nil)
		}
		return stored, nil
	}
	s.logger.Info("user registered", zap.String("user_id", userID))
	return identity, nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (Identity, error) {
	var identity Identity
	err := s.db.WithContext(ctx).
		Where("user_email = ?", email).
		Take(&identity).
		Error
	return identity, err
}

func (s *Service) internal(reason string, err error) error {
	s.logger.Error("users service error",
		zap.String("operation", opAuthenticate),
		zap.String("reason", reason),
		zap.Error(err))
	return failure.New(failure.CodeInternal, opAuthenticate, err)
}
