// Package content defines monetized content items and the catalog they
// live in. The catalog itself is an external collaborator (Supabase or
// equivalent); this package only specifies its read-only interface and a
// memory-backed implementation for embedding and tests.
package content

import (
	"context"

	"github.com/tunegate/tunegate/nft"
	"github.com/tunegate/tunegate/types"
)

// Tier is the monetization category of a content item.
type Tier string

const (
	TierFree         Tier = "free"
	TierPayPerUse    Tier = "pay_per_use"
	TierSubscription Tier = "subscription"
	TierNFTGated     Tier = "nft_gated"
	TierPremium      Tier = "premium"
)

// Valid reports whether the tier is one of the known access tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPayPerUse, TierSubscription, TierNFTGated, TierPremium:
		return true
	}
	return false
}

// Pricing describes how a content item is monetized.
type Pricing struct {
	PerUse            *types.Money `json:"per_use,omitempty"`
	SubscriptionTiers []string     `json:"subscription_tiers,omitempty"`
	NFTHolderDiscount *types.Money `json:"nft_holder_discount,omitempty"`
	Currency          string       `json:"currency"`
}

// Item is a monetized content item. Immutable once created except via
// explicit catalog update.
type Item struct {
	types.Entity
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Artist          string            `json:"artist"`
	Tier            Tier              `json:"access_tier"`
	Pricing         Pricing           `json:"pricing"`
	NFTRequirements []nft.Requirement `json:"nft_requirements,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// QualifiesTier reports whether the given subscription tier is listed as
// qualifying for this item.
func (i *Item) QualifiesTier(tierID string) bool {
	for _, t := range i.Pricing.SubscriptionTiers {
		if t == tierID {
			return true
		}
	}
	return false
}

// Catalog is the read-only view of the external content catalog.
type Catalog interface {
	// Item returns the content item with the given ID, or nil when the
	// catalog has no such item.
	Item(ctx context.Context, id string) (*Item, error)
}
