package ledger

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type tickingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2025, 1, 10, 19, 0, 0, 0, time.UTC), step: time.Second}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("txn-%04d", s.next), nil
}

type countingRecorder struct {
	mu           sync.Mutex
	transactions map[string]int
	conflicts    int
}

func (r *countingRecorder) TransactionRecorded(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transactions == nil {
		r.transactions = map[string]int{}
	}
	r.transactions[kind]++
}

func (r *countingRecorder) VersionConflict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Balance{}, &Transaction{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *countingRecorder) {
	t.Helper()
	recorder := &countingRecorder{}
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		Clock:      newTickingClock().Now,
		IDProvider: &sequenceIDs{},
		Metrics:    recorder,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, recorder
}

func testActor(id string) auth.Actor {
	return auth.Actor{UserID: id, UserName: id + "@example.com"}
}
