package database

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/ledger"
	"github.com/MarcoPoloResearchLab/chipledger/internal/rooms"
	"github.com/MarcoPoloResearchLab/chipledger/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabasePath = errors.New("database: path is required")

// Ledger writes wait on the single connection rather than failing with SQLITE_BUSY.
const connectionPragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// OpenSQLite opens the ledger database with a single connection and brings
// its schema up to date.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errMissingDatabasePath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db, logger); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("database initialized", zap.String("path", path))
	return db, nil
}

// Migrate creates the room, ledger and identity tables and runs pending
// named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&rooms.Room{},
		&ledger.Balance{},
		&ledger.Transaction{},
		&users.Identity{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func withPragmas(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + connectionPragmas
	}
	return path + "?" + connectionPragmas
}
