package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"github.com/gin-gonic/gin"
)

const recentRoomsLimit = 10

type findRoomQuery struct {
	RoomKey string `form:"roomKey" binding:"required,roomkey"`
}

type roomKeyPayload struct {
	RoomKey string `json:"roomKey" binding:"required,roomkey"`
}

type createRoomPayload struct {
	RoomKey  string `json:"roomKey" binding:"required,roomkey"`
	RoomName string `json:"roomName" binding:"required,max=256"`
}

type buyInPayload struct {
	ChipsAmount int64 `json:"chipsAmount" binding:"required,gt=0"`
	BuyInAmount int64 `json:"buyInAmount" binding:"required,gt=0"`
}

type adjustBalancePayload struct {
	Balance *int64 `json:"balance" binding:"required,gte=0"`
}

var roomFieldCodes = map[string]failure.Code{
	"RoomKey":     failure.CodeInvalidRoomKey,
	"RoomName":    failure.CodeInvalidRoomName,
	"ChipsAmount": failure.CodeInvalidAmount,
	"BuyInAmount": failure.CodeInvalidAmount,
	"Balance":     failure.CodeInvalidAmount,
}

func (h *httpHandler) handleFindRoom(c *gin.Context) {
	var query findRoomQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondCode(c, bindingFailureCode(err, roomFieldCodes))
		return
	}
	room, err := h.rooms.FindRoomByKey(c.Request.Context(), query.RoomKey)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, newRoomPayload(room))
}

func (h *httpHandler) handleCreateRoom(c *gin.Context) {
	actor, _ := actorFrom(c)
	var request createRoomPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondCode(c, bindingFailureCode(err, roomFieldCodes))
		return
	}
	room, err := h.rooms.CreateRoom(c.Request.Context(), actor, request.RoomKey, request.RoomName)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, newRoomPayload(room))
}

func (h *httpHandler) handleRecentRooms(c *gin.Context) {
	actor, _ := actorFrom(c)
	recent, err := h.rooms.ListRecentRooms(c.Request.Context(), actor.UserID, recentRoomsLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]recentRoomPayload, 0, len(recent))
	for _, room := range recent {
		payload = append(payload, recentRoomPayload{
			roomPayload: newRoomPayload(room.Room),
			Balance:     room.Balance,
			JoinedAt:    room.JoinedAt,
		})
	}
	respondOK(c, http.StatusOK, payload)
}

func (h *httpHandler) handleEntranceCheck(c *gin.Context) {
	actor, _ := actorFrom(c)
	var request roomKeyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondCode(c, bindingFailureCode(err, roomFieldCodes))
		return
	}
	outcome, err := h.entry.Check(c.Request.Context(), actor, request.RoomKey)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, newEntrancePayload(outcome))
}

func (h *httpHandler) handleEntranceCreate(c *gin.Context) {
	actor, _ := actorFrom(c)
	var request createRoomPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondCode(c, bindingFailureCode(err, roomFieldCodes))
		return
	}
	outcome, err := h.entry.ConfirmCreate(c.Request.Context(), actor, request.RoomKey, request.RoomName)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, newEntrancePayload(outcome))
}

func (h *httpHandler) handleEntranceJoin(c *gin.Context) {
	actor, _ := actorFrom(c)
	var request roomKeyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondCode(c, bindingFailureCode(err, roomFieldCodes))
		return
	}
	outcome, err := h.entry.ConfirmJoin(c.Request.Context(), actor, request.RoomKey)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, newEntrancePayload(outcome))
}

func (h *httpHandler) handleGetBalance(c *gin.Context) {
	actor, _ := actorFrom(c)
	balance, err := h.ledger.GetBalance(c.Request.Context(), roomFrom(c).RoomID, actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, newBalancePayload(balance))
}

func (h *httpHandler) handleBuyIn(c *gin.Context) {
	actor, _ := actorFrom(c)
	var request buyInPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondCode(c, bindingFailureCode(err, roomFieldCodes))
		return
	}
	txn, err := h.ledger.RecordBuyIn(c.Request.Context(), roomFrom(c).RoomID, actor, request.ChipsAmount, request.BuyInAmount)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, newTransactionPayload(txn))
}

func (h *httpHandler) handleAdjustBalance(c *gin.Context) {
	actor, _ := actorFrom(c)
	var request adjustBalancePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondCode(c, bindingFailureCode(err, roomFieldCodes))
		return
	}
	txn, err := h.ledger.RecordAdjustment(c.Request.Context(), roomFrom(c).RoomID, actor, *request.Balance)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, newTransactionPayload(txn))
}

func (h *httpHandler) handleListTransactions(c *gin.Context) {
	transactions, err := h.ledger.ListTransactions(c.Request.Context(), roomFrom(c).RoomID)
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]transactionPayload, 0, len(transactions))
	for _, txn := range transactions {
		payload = append(payload, newTransactionPayload(txn))
	}
	respondOK(c, http.StatusOK, payload)
}

func (h *httpHandler) handleLeaderboard(c *gin.Context) {
	entries, err := h.ledger.ListLeaderboard(c.Request.Context(), roomFrom(c).RoomID)
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]leaderboardPayload, 0, len(entries))
	for _, ranked := range entries {
		payload = append(payload, leaderboardPayload{
			Rank:   ranked.Rank,
			UserID: ranked.UserID,
			Name:   ranked.Name,
			Chips:  ranked.Chips,
		})
	}
	respondOK(c, http.StatusOK, payload)
}
