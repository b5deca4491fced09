package ledger

import (
	"context"
	"testing"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
)

func TestListLeaderboardRanksByChips(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	alice := testActor("alice")
	bob := testActor("bob")
	carol := testActor("carol")
	nameless := auth.Actor{UserID: "nameless"}

	for _, actor := range []auth.Actor{alice, bob, carol} {
		if _, err := service.Join(ctx, testRoomID, actor); err != nil {
			t.Fatalf("join %s failed: %v", actor.UserID, err)
		}
	}
	if err := service.db.Create(&Balance{RoomID: testRoomID, UserID: nameless.UserID, Version: 1, JoinedAt: service.clock()}).Error; err != nil {
		t.Fatalf("failed to seed nameless balance: %v", err)
	}
	if _, err := service.RecordBuyIn(ctx, testRoomID, bob, 400, 400); err != nil {
		t.Fatalf("buy-in failed: %v", err)
	}
	if _, err := service.RecordBuyIn(ctx, testRoomID, carol, 400, 400); err != nil {
		t.Fatalf("buy-in failed: %v", err)
	}
	if _, err := service.RecordBuyIn(ctx, testRoomID, alice, 100, 100); err != nil {
		t.Fatalf("buy-in failed: %v", err)
	}

	board, err := service.ListLeaderboard(ctx, testRoomID)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	expected := []LeaderboardEntry{
		{Rank: 1, UserID: "bob", Name: "bob@example.com", Chips: 400},
		{Rank: 2, UserID: "carol", Name: "carol@example.com", Chips: 400},
		{Rank: 3, UserID: "alice", Name: "alice@example.com", Chips: 100},
		{Rank: 4, UserID: "nameless", Name: "anonymous", Chips: 0},
	}
	if len(board) != len(expected) {
		t.Fatalf("expected %d entries, got %d", len(expected), len(board))
	}
	for index, entry := range board {
		if entry != expected[index] {
			t.Fatalf("entry %d: expected %+v, got %+v", index, expected[index], entry)
		}
	}
}

func TestListLeaderboardEmptyRoom(t *testing.T) {
	service, _ := newTestService(t)

	board, err := service.ListLeaderboard(context.Background(), "empty-room")
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(board) != 0 {
		t.Fatalf("expected empty leaderboard, got %+v", board)
	}

	_, err = service.ListLeaderboard(context.Background(), "")
	if !failure.Is(err, failure.CodeInvalidRequest) {
		t.Fatalf("expected invalid-request for blank room, got %v", err)
	}
}
