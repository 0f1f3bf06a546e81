// Package channel models the payment channel ledger: a user's spendable
// balance, settlement lifecycle, and the transactions charged against it.
// The channel is an abstraction over settlement; no blockchain protocol
// details leak into this core.
package channel

import (
	"time"

	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/types"
)

// Status is the payment channel lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusSettling Status = "settling"
	StatusClosed   Status = "closed"
)

// Channel holds a user's spendable balance and settlement lifecycle.
// A user has at most one channel in StatusActive at a time.
type Channel struct {
	types.Entity
	ID           id.ChannelID `json:"id"`
	UserID       string       `json:"user_id"`
	Address      string       `json:"address"`
	Balance      types.Money  `json:"balance"`
	Locked       types.Money  `json:"locked_balance"`
	Status       Status       `json:"status"`
	LastActivity time.Time    `json:"last_activity"`
}

// Open reports whether the channel accepts new charges.
func (c *Channel) Open() bool { return c.Status == StatusActive }

// TxType categorizes a transaction.
type TxType string

const (
	TxPayment      TxType = "payment"
	TxSubscription TxType = "subscription"
	TxNFTAccess    TxType = "nft_access"
	TxRefund       TxType = "refund"
)

// TxStatus is the transaction lifecycle state. A transaction is immutable
// once confirmed.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Transaction is one charge against a payment channel. Confirmed
// transactions are appended to the channel history and to the user's
// pending queue until settled.
type Transaction struct {
	ID        id.TransactionID  `json:"id"`
	ChannelID id.ChannelID      `json:"channel_id"`
	UserID    string            `json:"user_id"`
	ContentID string            `json:"content_id,omitempty"`
	Amount    types.Money       `json:"amount"`
	Type      TxType            `json:"type"`
	Status    TxStatus          `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
