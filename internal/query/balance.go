package query

import (
	"github.com/google/uuid"
)

// BalanceResponse represents user balance state for API queries
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`

	// Ledger balances (from journal entries)
	TotalBalance      int64 `json:"total_balance"`      // collateral + reserved
	AvailableBalance  int64 `json:"available_balance"`  // collateral only
	ReservedBalance   int64 `json:"reserved_balance"`   // margin holds
	PendingDeposit    int64 `json:"pending_deposit"`    // unconfirmed deposits
	PendingWithdrawal int64 `json:"pending_withdrawal"` // unconfirmed withdrawals

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last applied event sequence
}
