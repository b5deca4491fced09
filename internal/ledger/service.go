package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew       = "ledger.service.new"
	opGetBalance       = "ledger.get_balance"
	opJoin             = "ledger.join"
	opRecordBuyIn      = "ledger.record_buy_in"
	opRecordAdjustment = "ledger.record_adjustment"
	opListTransactions = "ledger.list_transactions"
	opListLeaderboard  = "ledger.list_leaderboard"
	opListMemberships  = "ledger.list_memberships"

	defaultMaxAttempts = 5
	queryRoomUser      = "room_id = ? AND user_id = ?"
	queryRoomUserVer   = "room_id = ? AND user_id = ? AND version = ?"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errVersionConflict = errors.New("balance version changed concurrently")
	noOpLogger         = zap.NewNop()
)

// MetricsRecorder receives ledger activity.
type MetricsRecorder interface {
	TransactionRecorded(kind string)
	VersionConflict()
}

type noopRecorder struct{}

func (noopRecorder) TransactionRecorded(string) {}
func (noopRecorder) VersionConflict()           {}

// ServiceConfig describes the ledger dependencies. MaxAttempts bounds the
// compare-and-swap retries of a single balance mutation.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  ids.Provider
	Logger      *zap.Logger
	Metrics     MetricsRecorder
	MaxAttempts int
}

// Service owns room balances and their append-only transaction history.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  ids.Provider
	logger      *zap.Logger
	metrics     MetricsRecorder
	maxAttempts int

	// beforeWrite runs inside the mutation transaction after the balance read.
	beforeWrite func(tx *gorm.DB, roomID, userID string)
}

// NewService validates the configuration and returns a ledger Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, failure.New(failure.CodeInternal, opServiceNew, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  idProvider,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: maxAttempts,
	}, nil
}

// GetBalance returns the actor's balance in the room or not-found-balance.
func (s *Service) GetBalance(ctx context.Context, roomID, userID string) (Balance, error) {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(userID) == "" {
		return Balance{}, failure.New(failure.CodeInvalidRequest, opGetBalance, nil)
	}
	balance, found, err := loadBalance(s.db.WithContext(ctx), roomID, userID)
	if err != nil {
		return Balance{}, s.internal(opGetBalance, "balance_select_failed", err,
			zap.String("room_id", roomID), zap.String("user_id", userID))
	}
	if !found {
		return Balance{}, failure.New(failure.CodeNotFoundBalance, opGetBalance, nil)
	}
	return balance, nil
}

// Join inserts a zero balance for actor. An existing balance is left intact
// and reported as balance-exists.
func (s *Service) Join(ctx context.Context, roomID string, actor auth.Actor) (Balance, error) {
	if strings.TrimSpace(roomID) == "" || !actor.Valid() {
		return Balance{}, failure.New(failure.CodeInvalidRequest, opJoin, nil)
	}
	balance := NewMemberBalance(roomID, actor, s.clock().UTC())
	inserted, err := InsertBalanceIfAbsent(s.db.WithContext(ctx), &balance)
	if err != nil {
		return Balance{}, s.internal(opJoin, "balance_insert_failed", err,
			zap.String("room_id", roomID), zap.String("user_id", actor.UserID))
	}
	if !inserted {
		return Balance{}, failure.New(failure.CodeBalanceExists, opJoin, nil)
	}
	return balance, nil
}

// InsertBalanceIfAbsent writes balance unless a row for the same (room, user)
// already exists. It reports whether the row was written.
func InsertBalanceIfAbsent(tx *gorm.DB, balance *Balance) (bool, error) {
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(balance)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordBuyIn adds chipsAmount to the actor's balance, creating the balance
// when absent, and appends a BUY transaction in the same unit of work.
func (s *Service) RecordBuyIn(ctx context.Context, roomID string, actor auth.Actor, chipsAmount, moneyAmount int64) (Transaction, error) {
	if strings.TrimSpace(roomID) == "" || !actor.Valid() {
		return Transaction{}, failure.New(failure.CodeInvalidRequest, opRecordBuyIn, nil)
	}
	if chipsAmount <= 0 || moneyAmount <= 0 {
		return Transaction{}, failure.New(failure.CodeInvalidAmount, opRecordBuyIn,
			fmt.Errorf("chips %d and money %d must be positive", chipsAmount, moneyAmount))
	}
	return s.mutate(ctx, opRecordBuyIn, roomID, actor, func(current Balance, found bool) (mutation, error) {
		if chipsAmount > math.MaxInt64-current.Balance {
			return mutation{}, failure.New(failure.CodeInvalidAmount, opRecordBuyIn,
				fmt.Errorf("chips %d overflow balance %d", chipsAmount, current.Balance))
		}
		return mutation{
			kind:        TransactionTypeBuy,
			next:        current.Balance + chipsAmount,
			chipsAmount: pointerTo(chipsAmount),
			buyInAmount: pointerTo(moneyAmount),
		}, nil
	})
}

// RecordAdjustment overwrites an existing balance with newBalance and appends
// an UPDATE transaction. It never creates a balance.
func (s *Service) RecordAdjustment(ctx context.Context, roomID string, actor auth.Actor, newBalance int64) (Transaction, error) {
	if strings.TrimSpace(roomID) == "" || !actor.Valid() {
		return Transaction{}, failure.New(failure.CodeInvalidRequest, opRecordAdjustment, nil)
	}
	if newBalance < 0 {
		return Transaction{}, failure.New(failure.CodeInvalidAmount, opRecordAdjustment,
			fmt.Errorf("balance %d must not be negative", newBalance))
	}
	return s.mutate(ctx, opRecordAdjustment, roomID, actor, func(current Balance, found bool) (mutation, error) {
		if !found {
			return mutation{}, failure.New(failure.CodeNotFoundBalance, opRecordAdjustment, nil)
		}
		return mutation{kind: TransactionTypeUpdate, next: newBalance}, nil
	})
}

type mutation struct {
	kind        TransactionType
	next        int64
	chipsAmount *int64
	buyInAmount *int64
}

type planFunc func(current Balance, found bool) (mutation, error)

// mutate applies plan with compare-and-swap on the balance version. The
// balance write and the transaction append commit together.
func (s *Service) mutate(ctx context.Context, operation, roomID string, actor auth.Actor, plan planFunc) (Transaction, error) {
	if s.db == nil {
		return Transaction{}, s.internal(operation, "missing_database", errMissingDatabase)
	}
	fields := []zap.Field{zap.String("room_id", roomID), zap.String("user_id", actor.UserID)}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var recorded Transaction
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, found, err := loadBalance(tx, roomID, actor.UserID)
			if err != nil {
				return err
			}
			change, err := plan(current, found)
			if err != nil {
				return err
			}
			if s.beforeWrite != nil {
				s.beforeWrite(tx, roomID, actor.UserID)
			}

			now := s.clock().UTC()
			nextVersion := int64(1)
			if found {
				nextVersion = current.Version + 1
				result := tx.Model(&Balance{}).
					Where(queryRoomUserVer, roomID, actor.UserID, current.Version).
					Updates(map[string]interface{}{
						"balance":    change.next,
						"version":    nextVersion,
						"updated_at": now,
					})
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					return errVersionConflict
				}
			} else {
				created := NewMemberBalance(roomID, actor, now)
				created.Balance = change.next
				inserted, err := InsertBalanceIfAbsent(tx, &created)
				if err != nil {
					return err
				}
				if !inserted {
					return errVersionConflict
				}
			}

			transactionID, err := s.idProvider.NewID()
			if err != nil {
				return err
			}
			recorded = Transaction{
				TransactionID:   transactionID,
				RoomID:          roomID,
				UserID:          actor.UserID,
				UserName:        actor.UserName,
				Type:            change.kind,
				ChipsAmount:     change.chipsAmount,
				BuyInAmount:     change.buyInAmount,
				PreviousBalance: current.Balance,
				UpdatedBalance:  change.next,
				BalanceVersion:  nextVersion,
				CreatedAt:       now,
			}
			return tx.Create(&recorded).Error
		})

		switch {
		case err == nil:
			s.metrics.TransactionRecorded(string(recorded.Type))
			return recorded, nil
		case errors.Is(err, errVersionConflict):
			s.metrics.VersionConflict()
			s.logger.Debug("balance version conflict", append(fields, zap.Int("attempt", attempt))...)
			continue
		}
		var typed *failure.Error
		if errors.As(err, &typed) {
			return Transaction{}, typed
		}
		return Transaction{}, s.internal(operation, "mutation_failed", err, fields...)
	}

	s.logger.Warn("balance mutation exhausted retries", append(fields, zap.String("operation", operation))...)
	return Transaction{}, failure.New(failure.CodeBalanceConflict, operation, errVersionConflict)
}

// ListTransactions returns every transaction in the room, most recent first.
func (s *Service) ListTransactions(ctx context.Context, roomID string) ([]Transaction, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, failure.New(failure.CodeInvalidRequest, opListTransactions, nil)
	}
	var transactions []Transaction
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("transaction_id DESC").
		Find(&transactions).Error; err != nil {
		return nil, s.internal(opListTransactions, "query_failed", err, zap.String("room_id", roomID))
	}
	return transactions, nil
}

// ListMemberships returns the user's balances, most recently joined first.
// A non-positive limit returns every membership.
func (s *Service) ListMemberships(ctx context.Context, userID string, limit int) ([]Balance, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, failure.New(failure.CodeInvalidRequest, opListMemberships, nil)
	}
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var balances []Balance
	if err := query.Find(&balances).Error; err != nil {
		return nil, s.internal(opListMemberships, "query_failed", err, zap.String("user_id", userID))
	}
	return balances, nil
}

func loadBalance(tx *gorm.DB, roomID, userID string) (Balance, bool, error) {
	var balance Balance
	err := tx.Where(queryRoomUser, roomID, userID).Take(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Balance{}, false, nil
	}
	if err != nil {
		return Balance{}, false, err
	}
	return balance, true, nil
}

func (s *Service) internal(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return failure.New(failure.CodeInternal, operation, err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("ledger service error", attrs...)
}
