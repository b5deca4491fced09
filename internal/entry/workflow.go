// Package entry drives a user from typing a room key to holding a balance in
// that room.
package entry

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ledger"
	"github.com/MarcoPoloResearchLab/chipledger/internal/rooms"
)

const opCheck = "entry.check"

// State names a step of the entry workflow.
type State string

const (
	StateKeyEntered           State = "KEY_ENTERED"
	StateRoomNotFound         State = "ROOM_NOT_FOUND"
	StateRoomFoundNoBalance   State = "ROOM_FOUND_NO_BALANCE"
	StateRoomFoundWithBalance State = "ROOM_FOUND_WITH_BALANCE"
	StateJoined               State = "JOINED"
)

// Directory resolves and creates rooms.
type Directory interface {
	FindRoomByKey(ctx context.Context, roomKey string) (rooms.Room, error)
	CreateRoom(ctx context.Context, actor auth.Actor, roomKey, roomName string) (rooms.Room, error)
}

// Ledger reads and opens balances.
type Ledger interface {
	GetBalance(ctx context.Context, roomID, userID string) (ledger.Balance, error)
	Join(ctx context.Context, roomID string, actor auth.Actor) (ledger.Balance, error)
}

// Outcome is the result of one workflow step. Observed is the state seen
// before any automatic transition; State is where the workflow ended.
type Outcome struct {
	RoomKey   string
	State     State
	Observed  State
	Room      *rooms.Room
	Balance   *int64
	UpdatedAt *time.Time
}

// Workflow carries no state between calls; each step re-reads the store.
type Workflow struct {
	directory Directory
	ledger    Ledger
}

// NewWorkflow wires the workflow to its collaborators.
func NewWorkflow(directory Directory, ledgerService Ledger) (*Workflow, error) {
	if directory == nil || ledgerService == nil {
		return nil, errors.New("entry: directory and ledger are required")
	}
	return &Workflow{directory: directory, ledger: ledgerService}, nil
}

// Check resolves roomKey for actor. A user who already holds a balance goes
// straight to JOINED. A malformed key stays at KEY_ENTERED and is never looked up.
func (w *Workflow) Check(ctx context.Context, actor auth.Actor, roomKey string) (Outcome, error) {
	if err := rooms.ValidateRoomKey(roomKey); err != nil {
		keyEntered := Outcome{RoomKey: roomKey, State: StateKeyEntered, Observed: StateKeyEntered}
		return keyEntered, failure.New(failure.CodeInvalidRoomKey, opCheck, err)
	}

	room, err := w.directory.FindRoomByKey(ctx, roomKey)
	switch {
	case failure.Is(err, failure.CodeNotFoundRoom):
		return Outcome{RoomKey: roomKey, State: StateRoomNotFound, Observed: StateRoomNotFound}, nil
	case err != nil:
		return Outcome{}, err
	}

	balance, err := w.ledger.GetBalance(ctx, room.RoomID, actor.UserID)
	switch {
	case failure.Is(err, failure.CodeNotFoundBalance):
		return Outcome{RoomKey: roomKey, State: StateRoomFoundNoBalance, Observed: StateRoomFoundNoBalance, Room: &room}, nil
	case err != nil:
		return Outcome{}, err
	}
	return joined(roomKey, StateRoomFoundWithBalance, room, balance), nil
}

// ConfirmCreate creates the room under roomKey, which also opens the
// creator's balance.
func (w *Workflow) ConfirmCreate(ctx context.Context, actor auth.Actor, roomKey, roomName string) (Outcome, error) {
	room, err := w.directory.CreateRoom(ctx, actor, roomKey, roomName)
	if err != nil {
		return Outcome{}, err
	}
	zero := int64(0)
	createdAt := room.CreatedAt
	return Outcome{
		RoomKey:   roomKey,
		State:     StateJoined,
		Observed:  StateRoomNotFound,
		Room:      &room,
		Balance:   &zero,
		UpdatedAt: &createdAt,
	}, nil
}

// ConfirmJoin re-resolves roomKey and opens a zero balance. A balance that
// already exists counts as joined.
func (w *Workflow) ConfirmJoin(ctx context.Context, actor auth.Actor, roomKey string) (Outcome, error) {
	room, err := w.directory.FindRoomByKey(ctx, roomKey)
	if err != nil {
		return Outcome{}, err
	}

	balance, err := w.ledger.Join(ctx, room.RoomID, actor)
	if failure.Is(err, failure.CodeBalanceExists) {
		balance, err = w.ledger.GetBalance(ctx, room.RoomID, actor.UserID)
		if err != nil {
			return Outcome{}, err
		}
		return joined(roomKey, StateRoomFoundWithBalance, room, balance), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return joined(roomKey, StateRoomFoundNoBalance, room, balance), nil
}

func joined(roomKey string, observed State, room rooms.Room, balance ledger.Balance) Outcome {
	chips := balance.Balance
	updatedAt := balance.UpdatedAt
	return Outcome{
		RoomKey:   roomKey,
		State:     StateJoined,
		Observed:  observed,
		Room:      &room,
		Balance:   &chips,
		UpdatedAt: &updatedAt,
	}
}
