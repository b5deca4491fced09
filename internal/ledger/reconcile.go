package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	opReconcile        = "ledger.reconcile"
	reconcileBatchSize = 200
)

// Discrepancy describes a balance whose transaction chain does not replay to
// the stored value.
type Discrepancy struct {
	RoomID          string
	UserID          string
	StoredBalance   int64
	ReplayedBalance int64
	TransactionID   string
	Reason          string
}

// ReconcileReport summarises a reconcile pass.
type ReconcileReport struct {
	Checked       int
	Discrepancies []Discrepancy
}

// Consistent reports whether every checked balance replayed cleanly.
func (r ReconcileReport) Consistent() bool {
	return len(r.Discrepancies) == 0
}

// Reconcile replays every balance's transactions from zero and reports the
// balances whose chain is broken or whose final value differs from storage.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{}
	for offset := 0; ; offset += reconcileBatchSize {
		var batch []Balance
		if err := s.db.WithContext(ctx).
			Order("room_id ASC").
			Order("user_id ASC").
			Limit(reconcileBatchSize).
			Offset(offset).
			Find(&batch).Error; err != nil {
			return ReconcileReport{}, s.internal(opReconcile, "balance_query_failed", err)
		}
		for _, balance := range batch {
			var chain []Transaction
			if err := s.db.WithContext(ctx).
				Where(queryRoomUser, balance.RoomID, balance.UserID).
				Order("balance_version ASC").
				Find(&chain).Error; err != nil {
				return ReconcileReport{}, s.internal(opReconcile, "chain_query_failed", err,
					zap.String("room_id", balance.RoomID), zap.String("user_id", balance.UserID))
			}
			report.Checked++
			if discrepancy, broken := replayChain(balance, chain); broken {
				report.Discrepancies = append(report.Discrepancies, discrepancy)
			}
		}
		if len(batch) < reconcileBatchSize {
			break
		}
	}

	for _, discrepancy := range report.Discrepancies {
		s.logger.Warn("ledger discrepancy",
			zap.String("room_id", discrepancy.RoomID),
			zap.String("user_id", discrepancy.UserID),
			zap.Int64("stored_balance", discrepancy.StoredBalance),
			zap.Int64("replayed_balance", discrepancy.ReplayedBalance),
			zap.String("reason", discrepancy.Reason))
	}
	return report, nil
}

func replayChain(balance Balance, chain []Transaction) (Discrepancy, bool) {
	running := int64(0)
	for _, entry := range chain {
		if entry.PreviousBalance != running {
			return Discrepancy{
				RoomID:          balance.RoomID,
				UserID:          balance.UserID,
				StoredBalance:   balance.Balance,
				ReplayedBalance: running,
				TransactionID:   entry.TransactionID,
				Reason:          fmt.Sprintf("previous balance %d does not follow %d", entry.PreviousBalance, running),
			}, true
		}
		running = entry.UpdatedBalance
	}
	if running != balance.Balance {
		return Discrepancy{
			RoomID:          balance.RoomID,
			UserID:          balance.UserID,
			StoredBalance:   balance.Balance,
			ReplayedBalance: running,
			Reason:          "stored balance has no matching transaction",
		}, true
	}
	return Discrepancy{}, false
}
