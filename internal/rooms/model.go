package rooms

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const maxRoomNameLength = 64

var (
	roomKeyPattern = regexp.MustCompile(`^[0-9]{6}$`)

	// ErrInvalidRoomKey indicates that a room key is not exactly six ASCII digits.
	ErrInvalidRoomKey = errors.New("rooms: invalid room key")
	// ErrInvalidRoomName indicates that a room name is blank or too long.
	ErrInvalidRoomName = errors.New("rooms: invalid room name")
)

// Room is a named table reachable by its six digit key. Rooms never change
// after creation.
type Room struct {
	RoomID      string    `gorm:"column:room_id;primaryKey;size:64;not null"`
	RoomKey     string    `gorm:"column:room_key;size:6;not null;uniqueIndex:idx_rooms_room_key"`
	Name        string    `gorm:"column:room_name;size:256;not null"`
	OwnerUserID string    `gorm:"column:owner_user_id;size:190;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime:false;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime:false;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Room) TableName() string {
	return "rooms"
}

// RecentRoom is a room the user holds a balance in.
type RecentRoom struct {
	Room
	Balance  int64
	JoinedAt time.Time
}

// ValidateRoomKey reports whether raw is a well-formed room key.
func ValidateRoomKey(raw string) error {
	if !roomKeyPattern.MatchString(raw) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
	}
	return nil
}

// NormalizeRoomName trims the name and enforces its bounds.
func NormalizeRoomName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoomName)
	}
	if utf8.RuneCountInString(trimmed) > maxRoomNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRoomName, maxRoomNameLength)
	}
	return trimmed, nil
}
