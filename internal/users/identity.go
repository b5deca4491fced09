package users

import (
	"strings"
	"time"
)

// Identity is a registered credentials login.
type Identity struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email        string    `gorm:"column:user_email;size:320;not null;uniqueIndex:idx_user_identities_email"`
	DisplayName  string    `gorm:"column:user_display_name;size:320"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null"`
	LastSeenAt   time.Time `gorm:"column:last_seen_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
