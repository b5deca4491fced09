package ledger

import (
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
)

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	// TransactionTypeBuy records chips purchased for money.
	TransactionTypeBuy TransactionType = "BUY"
	// TransactionTypeUpdate records a manual true-up of the balance.
	TransactionTypeUpdate TransactionType = "UPDATE"
)

// Balance is a user's current chip count within a room. Its presence is the
// membership signal for the room.
type Balance struct {
	RoomID    string    `gorm:"column:room_id;primaryKey;size:64;not null"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_balances_user_joined,priority:1"`
	UserName  string    `gorm:"column:user_name;size:320;not null;default:''"`
	Balance   int64     `gorm:"column:balance;not null;default:0"`
	Version   int64     `gorm:"column:version;not null;default:1"`
	JoinedAt  time.Time `gorm:"column:joined_at;index:idx_balances_user_joined,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime:false;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Balance) TableName() string {
	return "room_balances"
}

// NewMemberBalance returns the zero balance written when actor joins roomID.
func NewMemberBalance(roomID string, actor auth.Actor, now time.Time) Balance {
	return Balance{
		RoomID:    roomID,
		UserID:    actor.UserID,
		UserName:  actor.UserName,
		Balance:   0,
		Version:   1,
		JoinedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transaction is an immutable ledger entry. BalanceVersion is the Balance
// version this entry produced and orders a (room, user) chain.
type Transaction struct {
	TransactionID   string          `gorm:"column:transaction_id;primaryKey;size:64;not null"`
	RoomID          string          `gorm:"column:room_id;size:64;not null;index:idx_transactions_room_created,priority:1;uniqueIndex:idx_transactions_chain,priority:1"`
	UserID          string          `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_transactions_chain,priority:2"`
	UserName        string          `gorm:"column:user_name;size:320;not null;default:''"`
	Type            TransactionType `gorm:"column:txn_type;size:16;not null"`
	ChipsAmount     *int64          `gorm:"column:chips_amount"`
	BuyInAmount     *int64          `gorm:"column:buy_in_amount"`
	PreviousBalance int64           `gorm:"column:previous_balance;not null"`
	UpdatedBalance  int64           `gorm:"column:updated_balance;not null"`
	BalanceVersion  int64           `gorm:"column:balance_version;not null;uniqueIndex:idx_transactions_chain,priority:3"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime:false;not null;index:idx_transactions_room_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Transaction) TableName() string {
	return "room_transactions"
}

// LeaderboardEntry is one ranked row of a room leaderboard.
type LeaderboardEntry struct {
	Rank   int
	UserID string
	Name   string
	Chips  int64
}

func pointerTo(value int64) *int64 {
	v := value
	return &v
}
