// Package batch models microtransaction batching: pending charge queues,
// settlement batches, and the bounded balance-change history kept for
// audit and analytics.
package batch

import (
	"time"

	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/types"
)

// Status is the settlement batch lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSettled    Status = "settled"
	StatusFailed     Status = "failed"
)

// Batch is a flush of a user's pending transactions. Total always equals
// the sum of the transactions' amounts; New is the only way to build one.
type Batch struct {
	ID           id.BatchID            `json:"id"`
	UserID       string                `json:"user_id"`
	Transactions []channel.Transaction `json:"transactions"`
	Total        types.Money           `json:"total_amount"`
	Status       Status                `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	SettledAt    *time.Time            `json:"settled_at,omitempty"`
}

// New builds a pending batch from the given transactions, computing Total
// from their amounts.
func New(userID string, txns []channel.Transaction, currency string) *Batch {
	total := types.Zero(currency)
	for _, t := range txns {
		total = total.Add(t.Amount)
	}

	return &Batch{
		ID:           id.NewBatchID(),
		UserID:       userID,
		Transactions: txns,
		Total:        total,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// ChargeRequest is one microtransaction charge.
type ChargeRequest struct {
	ContentID string            `json:"content_id,omitempty"`
	Amount    types.Money       `json:"amount"`
	Type      channel.TxType    `json:"type"`
	Duration  time.Duration     `json:"duration,omitempty"` // optional access expiry
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ItemResult reports the outcome of one item in a multi-item charge.
// A failure mid-sequence does not roll back already-confirmed charges, so
// callers get per-item outcomes rather than an all-or-nothing error.
type ItemResult struct {
	Index       int                  `json:"index"`
	Transaction *channel.Transaction `json:"transaction,omitempty"`
	Err         error                `json:"-"`
}

// BalanceEvent is one balance change recorded into the per-user audit ring.
type BalanceEvent struct {
	Balance   types.Money `json:"balance"`
	Delta     types.Money `json:"delta"`
	Reason    string      `json:"reason"`
	Timestamp time.Time   `json:"timestamp"`
}
