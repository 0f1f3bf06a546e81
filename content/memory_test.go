package content

import (
	"context"
	"testing"
)

func TestMemoryCatalog(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()

	if got, err := c.Item(ctx, "missing"); err != nil || got != nil {
		t.Fatalf("absent item: %v, %v", got, err)
	}

	c.Put(&Item{ID: "track_001", Title: "First", Tier: TierFree})
	c.Put(&Item{ID: "track_002", Title: "Second", Tier: TierPayPerUse})

	got, err := c.Item(ctx, "track_001")
	if err != nil || got == nil || got.Title != "First" {
		t.Errorf("item: %+v, %v", got, err)
	}
	if c.Len() != 2 {
		t.Errorf("len: got %d, want 2", c.Len())
	}

	// Put replaces.
	c.Put(&Item{ID: "track_001", Title: "Retitled", Tier: TierFree})
	got, _ = c.Item(ctx, "track_001")
	if got.Title != "Retitled" || c.Len() != 2 {
		t.Errorf("replace: %+v, len %d", got, c.Len())
	}
}

func TestTierValid(t *testing.T) {
	for _, tier := range []Tier{TierFree, TierPayPerUse, TierSubscription, TierNFTGated, TierPremium} {
		if !tier.Valid() {
			t.Errorf("%s should be valid", tier)
		}
	}
	if Tier("gold").Valid() {
		t.Error("unknown tier reported valid")
	}
}

func TestQualifiesTier(t *testing.T) {
	item := &Item{Pricing: Pricing{SubscriptionTiers: []string{"premium", "vip"}}}

	if !item.QualifiesTier("vip") {
		t.Error("listed tier should qualify")
	}
	if item.QualifiesTier("basic") {
		t.Error("unlisted tier should not qualify")
	}
}
