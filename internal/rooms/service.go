package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ids"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ledger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opCreateRoom      = "rooms.create_room"
	opFindRoomByKey   = "rooms.find_room_by_key"
	opGetRoom         = "rooms.get_room"
	opListRecentRooms = "rooms.list_recent_rooms"

	defaultRecentLimit = 10
)

var errRoomIDCollision = errors.New("generated room id already in use")

// MembershipLister yields the balances a user holds, most recently joined first.
type MembershipLister interface {
	ListMemberships(ctx context.Context, userID string, limit int) ([]ledger.Balance, error)
}

// ServiceConfig describes the room directory dependencies.
type ServiceConfig struct {
	Database    *gorm.DB
	Memberships MembershipLister
	IDProvider  ids.Provider
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Service is the room directory.
type Service struct {
	db          *gorm.DB
	memberships MembershipLister
	idProvider  ids.Provider
	clock       func() time.Time
	logger      *zap.Logger
}

// NewService constructs the room directory.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("rooms: database connection required")
	}
	if cfg.Memberships == nil {
		return nil, fmt.Errorf("rooms: membership lister required")
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
		db:          cfg.Database,
		memberships: cfg.Memberships,
		idProvider:  idProvider,
		clock:       clock,
		logger:      logger,
	}, nil
}

// CreateRoom registers a room under roomKey and gives the creator a zero
// balance. Both rows commit together.
func (s *Service) CreateRoom(ctx context.Context, actor auth.Actor, roomKey, roomName string) (Room, error) {
	if err := ValidateRoomKey(roomKey); err != nil {
		return Room{}, failure.New(failure.CodeInvalidRoomKey, opCreateRoom, err)
	}
	name, err := NormalizeRoomName(roomName)
	if err != nil {
		return Room{}, failure.New(failure.CodeInvalidRoomName, opCreateRoom, err)
	}
	if !actor.Valid() {
		return Room{}, failure.New(failure.CodeInvalidRequest, opCreateRoom, nil)
	}

	roomID, err := s.idProvider.NewID()
	if err != nil {
		return Room{}, s.internal(opCreateRoom, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	room := Room{
		RoomID:      roomID,
		RoomKey:     roomKey,
		Name:        name,
		OwnerUserID: actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&room)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var existing int64
			if err := tx.Model(&Room{}).Where("room_key = ?", roomKey).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				return failure.New(failure.CodeDuplicateRoomKey, opCreateRoom, nil)
			}
			return errRoomIDCollision
		}

		balance := ledger.NewMemberBalance(roomID, actor, now)
		if _, err := ledger.InsertBalanceIfAbsent(tx, &balance); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if failure.Is(err, failure.CodeDuplicateRoomKey) {
			return Room{}, err
		}
		return Room{}, s.internal(opCreateRoom, "room_insert_failed", err,
			zap.String("room_id", roomID), zap.String("room_key", roomKey))
	}
	return room, nil
}

// FindRoomByKey resolves a room key. Malformed keys never reach the store.
func (s *Service) FindRoomByKey(ctx context.Context, roomKey string) (Room, error) {
	if err := ValidateRoomKey(roomKey); err != nil {
		return Room{}, failure.New(failure.CodeInvalidRoomKey, opFindRoomByKey, err)
	}
	var room Room
	err := s.db.WithContext(ctx).Where("room_key = ?", roomKey).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Room{}, failure.New(failure.CodeNotFoundRoom, opFindRoomByKey, nil)
	}
	if err != nil {
		return Room{}, s.internal(opFindRoomByKey, "room_select_failed", err, zap.String("room_key", roomKey))
	}
	return room, nil
}

// GetRoom loads a room by its identifier.
func (s *Service) GetRoom(ctx context.Context, roomID string) (Room, error) {
	if strings.TrimSpace(roomID) == "" {
		return Room{}, failure.New(failure.CodeInvalidRequest, opGetRoom, nil)
	}
	var room Room
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Room{}, failure.New(failure.CodeNotFoundRoom, opGetRoom, nil)
	}
	if err != nil {
		return Room{}, s.internal(opGetRoom, "room_select_failed", err, zap.String("room_id", roomID))
	}
	return room, nil
}

// ListRecentRooms returns the rooms userID most recently joined, newest first.
// Memberships whose room row is missing are skipped.
func (s *Service) ListRecentRooms(ctx context.Context, userID string, limit int) ([]RecentRoom, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, failure.New(failure.CodeInvalidRequest, opListRecentRooms, nil)
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	memberships, err := s.memberships.ListMemberships(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []RecentRoom{}, nil
	}

	seen := make(map[string]struct{}, len(memberships))
	roomIDs := make([]string, 0, len(memberships))
	for _, membership := range memberships {
		if _, duplicate := seen[membership.RoomID]; duplicate {
			continue
		}
		seen[membership.RoomID] = struct{}{}
		roomIDs = append(roomIDs, membership.RoomID)
	}

	var found []Room
	if err := s.db.WithContext(ctx).Where("room_id IN ?", roomIDs).Find(&found).Error; err != nil {
		return nil, s.internal(opListRecentRooms, "room_batch_failed", err, zap.String("user_id", userID))
	}
	byID := make(map[string]Room, len(found))
	for _, room := range found {
		byID[room.RoomID] = room
	}

	recent := make([]RecentRoom, 0, len(roomIDs))
	for _, membership := range memberships {
		room, ok := byID[membership.RoomID]
		if !ok {
			continue
		}
		delete(byID, membership.RoomID)
		recent = append(recent, RecentRoom{Room: room, Balance: membership.Balance, JoinedAt: membership.JoinedAt})
	}
	return recent, nil
}

func (s *Service) internal(operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	s.logger.Error("room directory error", append(attrs, fields...)...)
	return failure.New(failure.CodeInternal, operation, err)
}
