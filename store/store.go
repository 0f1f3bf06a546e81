// Package store defines the unified storage interface for all Tunegate
// entities. The embedding application picks the backing implementation;
// the core only requires atomic read-modify-write per key.
package store

import (
	"context"
	"time"

	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/recovery"
	"github.com/tunegate/tunegate/subscription"
)

// Store is the unified storage interface for all Tunegate entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to keep the full surface visible in one place.
type Store interface {
	// Payment channel methods
	CreateChannel(ctx context.Context, c *channel.Channel) error
	GetChannel(ctx context.Context, channelID id.ChannelID) (*channel.Channel, error)
	ActiveChannel(ctx context.Context, userID string) (*channel.Channel, error)
	UpdateChannel(ctx context.Context, c *channel.Channel) error

	// Transaction methods
	CreateTransaction(ctx context.Context, t *channel.Transaction) error
	ListTransactions(ctx context.Context, userID string, since time.Time) ([]*channel.Transaction, error)

	// Pending queue methods
	AppendPending(ctx context.Context, t *channel.Transaction) error
	PendingQueue(ctx context.Context, userID string) ([]*channel.Transaction, error)
	ClearPending(ctx context.Context, userID string, txnIDs []id.TransactionID) error
	PendingUsers(ctx context.Context) ([]string, error)

	// Settlement batch methods
	CreateBatch(ctx context.Context, b *batch.Batch) error
	UpdateBatch(ctx context.Context, b *batch.Batch) error
	GetBatch(ctx context.Context, batchID id.BatchID) (*batch.Batch, error)
	ListBatches(ctx context.Context, userID string) ([]*batch.Batch, error)

	// Balance history methods
	RecordBalanceEvent(ctx context.Context, userID string, e batch.BalanceEvent) error
	BalanceHistory(ctx context.Context, userID string) ([]batch.BalanceEvent, error)

	// Access right methods
	CreateRight(ctx context.Context, r *access.Right) error
	ListRights(ctx context.Context, userID string) ([]*access.Right, error)
	ActiveRight(ctx context.Context, contentID, userID string) (*access.Right, error)

	// Subscription methods
	UpsertStatus(ctx context.Context, s *subscription.Status) error
	GetStatus(ctx context.Context, userID string) (*subscription.Status, error)

	// Error report methods
	CreateReport(ctx context.Context, r *recovery.Report) error
	UpdateReport(ctx context.Context, r *recovery.Report) error
	ListReports(ctx context.Context, since time.Time) ([]*recovery.Report, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
