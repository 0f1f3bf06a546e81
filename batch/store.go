package batch

import (
	"context"

	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/id"
)

// Store is the batching slice of the storage layer.
type Store interface {
	// AppendPending appends a confirmed transaction to the user's pending
	// queue.
	AppendPending(ctx context.Context, t *channel.Transaction) error
	// PendingQueue returns the user's pending transactions in append order.
	PendingQueue(ctx context.Context, userID string) ([]*channel.Transaction, error)
	// ClearPending removes exactly the given transactions from the user's
	// pending queue. Executed only after a confirmed settle.
	ClearPending(ctx context.Context, userID string, txnIDs []id.TransactionID) error
	// PendingUsers returns every user with a non-empty pending queue.
	PendingUsers(ctx context.Context) ([]string, error)

	CreateBatch(ctx context.Context, b *Batch) error
	UpdateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, batchID id.BatchID) (*Batch, error)
	ListBatches(ctx context.Context, userID string) ([]*Batch, error)

	// RecordBalanceEvent appends to the user's bounded audit ring.
	RecordBalanceEvent(ctx context.Context, userID string, e BalanceEvent) error
	// BalanceHistory returns the user's buffered events, oldest first.
	BalanceHistory(ctx context.Context, userID string) ([]BalanceEvent, error)
}
