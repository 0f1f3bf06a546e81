package channel

import (
	"context"
	"time"

	"github.com/tunegate/tunegate/id"
)

// Store is the payment-channel slice of the storage layer. The engine holds
// a per-user lock around every read-modify-write sequence; the store only
// needs atomic single operations.
type Store interface {
	CreateChannel(ctx context.Context, c *Channel) error
	GetChannel(ctx context.Context, channelID id.ChannelID) (*Channel, error)
	// ActiveChannel returns the user's open channel, or nil when none.
	ActiveChannel(ctx context.Context, userID string) (*Channel, error)
	UpdateChannel(ctx context.Context, c *Channel) error

	CreateTransaction(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, userID string, since time.Time) ([]*Transaction, error)
}
