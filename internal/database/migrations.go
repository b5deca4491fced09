package database

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/ledger"
	"github.com/MarcoPoloResearchLab/chipledger/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillBalanceJoinedAt = "2025-01-12_backfill_balance_joined_at"
	migrationNormalizeIdentityEmails = "2025-02-03_normalize_identity_emails"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

// Ordered; append only.
var migrations = []migrationDefinition{
	{name: migrationBackfillBalanceJoinedAt, apply: backfillBalanceJoinedAt},
	{name: migrationNormalizeIdentityEmails, apply: normalizeIdentityEmails},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var appliedNames []string
	if err := db.Model(&migrationRecord{}).Pluck("name", &appliedNames).Error; err != nil {
		return err
	}
	applied := make(map[string]struct{}, len(appliedNames))
	for _, name := range appliedNames {
		applied[name] = struct{}{}
	}

	for _, migration := range migrations {
		if _, done := applied[migration.name]; done {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{
				Name:             migration.name,
				AppliedAtSeconds: time.Now().UTC().Unix(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// Balances written before the recent-rooms index existed carry no join time.
func backfillBalanceJoinedAt(db *gorm.DB) error {
	return db.Model(&ledger.Balance{}).
		Where("joined_at IS NULL OR joined_at = ?", time.Time{}).
		Update("joined_at", gorm.Expr("created_at")).Error
}

// Logins match on the lower-cased address.
func normalizeIdentityEmails(db *gorm.DB) error {
	return db.Model(&users.Identity{}).
		Where("user_email <> lower(trim(user_email))").
		Update("user_email", gorm.Expr("lower(trim(user_email))")).Error
}
