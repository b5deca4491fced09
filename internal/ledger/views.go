package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"go.uber.org/zap"
)

const anonymousPlayerName = "anonymous"

// ListLeaderboard ranks every balance in the room by chips, highest first.
// Ties keep join order; rank is the 1-based position.
func (s *Service) ListLeaderboard(ctx context.Context, roomID string) ([]LeaderboardEntry, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, failure.New(failure.CodeInvalidRequest, opListLeaderboard, nil)
	}
	var balances []Balance
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Order("user_id ASC").
		Find(&balances).Error; err != nil {
		return nil, s.internal(opListLeaderboard, "query_failed", err, zap.String("room_id", roomID))
	}
	return rankBalances(balances), nil
}

func rankBalances(balances []Balance) []LeaderboardEntry {
	ordered := make([]Balance, len(balances))
	copy(ordered, balances)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Balance > ordered[j].Balance
	})

	entries := make([]LeaderboardEntry, 0, len(ordered))
	for index, balance := range ordered {
		name := strings.TrimSpace(balance.UserName)
		if name == "" {
			name = anonymousPlayerName
		}
		entries = append(entries, LeaderboardEntry{
			Rank:   index + 1,
			UserID: balance.UserID,
			Name:   name,
			Chips:  balance.Balance,
		})
	}
	return entries
}
