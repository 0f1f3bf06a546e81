// Package access decides, per content item and per user, whether access is
// granted and by which method, and defines the durable access right record
// created after a successful payment, subscription, or NFT check.
package access

import (
	"time"

	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/types"
)

// RightType is the provenance of a stored access right.
type RightType string

const (
	RightFree         RightType = "free"
	RightPaid         RightType = "paid"
	RightSingle       RightType = "single" // one-off micropayment purchase
	RightSubscription RightType = "subscription"
	RightNFT          RightType = "nft"
)

// Right is a durable record that a user may use a content item. Rights are
// append-only: never mutated, only superseded by a newer right or expiry.
type Right struct {
	types.Entity
	ID        id.AccessRightID `json:"id"`
	ContentID string           `json:"content_id"`
	UserID    string           `json:"user_id"`
	Type      RightType        `json:"type"`
	GrantedAt time.Time        `json:"granted_at"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Source    string           `json:"source,omitempty"` // transaction or subscription reference
}

// Expired reports whether the right has lapsed at the given instant.
func (r *Right) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Paid reports whether the right came from a one-off payment.
func (r *Right) Paid() bool {
	return r.Type == RightPaid || r.Type == RightSingle
}

// Method is the access method reported in a Decision.
type Method string

const (
	MethodFree         Method = "free"
	MethodPayment      Method = "payment"
	MethodSubscription Method = "subscription"
	MethodNFT          Method = "nft"
	MethodNone         Method = "none"
)

// ActionType identifies the next step the caller should render when access
// is denied.
type ActionType string

const (
	ActionConnectWallet ActionType = "connect_wallet"
	ActionPay           ActionType = "pay"
	ActionSubscribe     ActionType = "subscribe"
	ActionPurchaseNFT   ActionType = "purchase_nft"
)

// RequiredAction carries what the caller needs to unlock the content.
type RequiredAction struct {
	Type      ActionType   `json:"type"`
	Amount    *types.Money `json:"amount,omitempty"`
	Tier      string       `json:"tier,omitempty"`
	Contracts []string     `json:"contracts,omitempty"`
}

// Decision is the outcome of resolving access for one content item and one
// user. It carries a typed reason instead of forcing callers to inspect
// errors.
type Decision struct {
	Granted bool            `json:"has_access"`
	Method  Method          `json:"access_method"`
	Reason  string          `json:"reason,omitempty"`
	Action  *RequiredAction `json:"required_action,omitempty"`
}

func grant(method Method) *Decision {
	return &Decision{Granted: true, Method: method}
}

func deny(reason string, action *RequiredAction) *Decision {
	return &Decision{Granted: false, Method: MethodNone, Reason: reason, Action: action}
}
