package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/entry"
	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ledger"
	"github.com/MarcoPoloResearchLab/chipledger/internal/rooms"
	"github.com/gin-gonic/gin"
)

type successEnvelope struct {
	Success bool        `json:"success"`
	Body    interface{} `json:"body"`
}

type errorEnvelope struct {
	Success bool         `json:"success"`
	Error   failure.Code `json:"error"`
}

func respondOK(c *gin.Context, status int, body interface{}) {
	c.JSON(status, successEnvelope{Success: true, Body: body})
}

func respondError(c *gin.Context, err error) {
	respondCode(c, failure.CodeOf(err))
}

func respondCode(c *gin.Context, code failure.Code) {
	c.JSON(statusForCode(code), errorEnvelope{Success: false, Error: code})
}

func statusForCode(code failure.Code) int {
	switch code {
	case failure.CodeInvalidRoomKey, failure.CodeInvalidRoomName, failure.CodeInvalidAmount, failure.CodeInvalidRequest:
		return http.StatusBadRequest
	case failure.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case failure.CodeNotFoundRoom, failure.CodeNotFoundBalance:
		return http.StatusNotFound
	case failure.CodeDuplicateRoomKey, failure.CodeBalanceExists, failure.CodeBalanceConflict:
		return http.StatusConflict
	case failure.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type roomPayload struct {
	RoomID      string    `json:"roomId"`
	RoomKey     string    `json:"roomKey"`
	Name        string    `json:"name"`
	OwnerUserID string    `json:"ownerUserId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newRoomPayload(room rooms.Room) roomPayload {
	return roomPayload{
		RoomID:      room.RoomID,
		RoomKey:     room.RoomKey,
		Name:        room.Name,
		OwnerUserID: room.OwnerUserID,
		CreatedAt:   room.CreatedAt,
	}
}

type recentRoomPayload struct {
	roomPayload
	Balance  int64     `json:"balance"`
	JoinedAt time.Time `json:"joinedAt"`
}

type balancePayload struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Balance   int64     `json:"balance"`
	JoinedAt  time.Time `json:"joinedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newBalancePayload(balance ledger.Balance) balancePayload {
	return balancePayload{
		RoomID:    balance.RoomID,
		UserID:    balance.UserID,
		UserName:  balance.UserName,
		Balance:   balance.Balance,
		JoinedAt:  balance.JoinedAt,
		UpdatedAt: balance.UpdatedAt,
	}
}

type transactionPayload struct {
	TransactionID   string    `json:"transactionId"`
	RoomID          string    `json:"roomId"`
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	Type            string    `json:"type"`
	ChipsAmount     *int64    `json:"chipsAmount,omitempty"`
	BuyInAmount     *int64    `json:"buyInAmount,omitempty"`
	PreviousBalance int64     `json:"previousBalance"`
	UpdatedBalance  int64     `json:"updatedBalance"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newTransactionPayload(txn ledger.Transaction) transactionPayload {
	return transactionPayload{
		TransactionID:   txn.TransactionID,
		RoomID:          txn.RoomID,
		UserID:          txn.UserID,
		UserName:        txn.UserName,
		Type:            string(txn.Type),
		ChipsAmount:     txn.ChipsAmount,
		BuyInAmount:     txn.BuyInAmount,
		PreviousBalance: txn.PreviousBalance,
		UpdatedBalance:  txn.UpdatedBalance,
		CreatedAt:       txn.CreatedAt,
	}
}

type leaderboardPayload struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Chips  int64  `json:"chips"`
}

type entrancePayload struct {
	State     entry.State  `json:"state"`
	Observed  entry.State  `json:"observed"`
	RoomKey   string       `json:"roomKey"`
	Room      *roomPayload `json:"room,omitempty"`
	Balance   *int64       `json:"balance,omitempty"`
	UpdatedAt *time.Time   `json:"updatedAt,omitempty"`
}

func newEntrancePayload(outcome entry.Outcome) entrancePayload {
	payload := entrancePayload{
		State:     outcome.State,
		Observed:  outcome.Observed,
		RoomKey:   outcome.RoomKey,
		Balance:   outcome.Balance,
		UpdatedAt: outcome.UpdatedAt,
	}
	if outcome.Room != nil {
		room := newRoomPayload(*outcome.Room)
		payload.Room = &room
	}
	return payload
}
