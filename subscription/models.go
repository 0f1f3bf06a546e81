// Package subscription models tiers and per-user subscription status. Tier
// hierarchy is basic < premium < vip; holding a higher tier implies access
// to content gated on a lower one.
package subscription

import (
	"time"

	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/types"
)

// Billing selects the billing cycle for a subscription purchase.
type Billing string

const (
	BillingMonthly Billing = "monthly"
	BillingYearly  Billing = "yearly"
)

// Tier is one subscription level. Rank orders the hierarchy; a subscriber
// at rank N reaches everything gated at rank <= N.
type Tier struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Rank         int         `json:"rank"`
	MonthlyPrice types.Money `json:"monthly_price"`
	Benefits     []string    `json:"benefits,omitempty"`
}

// Price returns the charge for the tier under the given billing cycle.
// Yearly billing multiplies the monthly price by 10, two months free.
func (t Tier) Price(billing Billing) types.Money {
	if billing == BillingYearly {
		return t.MonthlyPrice.Multiply(10)
	}
	return t.MonthlyPrice
}

// Period returns the subscription duration purchased under the billing cycle.
func (b Billing) Period() time.Duration {
	if b == BillingYearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// DefaultTiers returns the standard three-tier hierarchy in rank order.
func DefaultTiers(currency string) []Tier {
	return []Tier{
		{
			ID:           "basic",
			Name:         "Basic",
			Rank:         0,
			MonthlyPrice: types.Micros(10_000, currency), // 0.01
			Benefits:     []string{"subscription catalog"},
		},
		{
			ID:           "premium",
			Name:         "Premium",
			Rank:         1,
			MonthlyPrice: types.Micros(20_000, currency), // 0.02
			Benefits:     []string{"subscription catalog", "premium releases"},
		},
		{
			ID:           "vip",
			Name:         "VIP",
			Rank:         2,
			MonthlyPrice: types.Micros(50_000, currency), // 0.05
			Benefits:     []string{"subscription catalog", "premium releases", "nft-gated drops"},
		},
	}
}

// Status is a user's current subscription. It is replaced wholesale on
// subscribe, upgrade, and cancel; never patched field by field, except
// that Upgrade preserves ExpiresAt.
type Status struct {
	types.Entity
	ID        id.SubscriptionID `json:"id"`
	UserID    string            `json:"user_id"`
	TierID    string            `json:"tier"`
	Active    bool              `json:"is_active"`
	ExpiresAt time.Time         `json:"expires_at"`
	AutoRenew bool              `json:"auto_renew"`
	Benefits  []string          `json:"benefits,omitempty"`
}

// Expired reports whether the subscription has lapsed at the given instant.
// A stored Active flag does not override a past expiry.
func (s *Status) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Live reports whether the subscription grants access at the given instant.
func (s *Status) Live(now time.Time) bool {
	return s.Active && !s.Expired(now)
}

// RemainingDays returns whole UTC days until expiry, floored at zero.
func (s *Status) RemainingDays(now time.Time) int64 {
	remaining := s.ExpiresAt.Sub(now.UTC())
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / (24 * time.Hour))
}
