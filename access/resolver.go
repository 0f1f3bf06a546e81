package access

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tunegate/tunegate/content"
	"github.com/tunegate/tunegate/nft"
)

// SubscriptionChecker answers whether a user currently holds a subscription
// that reaches the required tier.
type SubscriptionChecker interface {
	HasTierAccess(ctx context.Context, requiredTier, userID string) (bool, error)
}

// Resolver decides access per content item and user by trying tier-specific
// rules. It has no side effects: the caller creates the access right after a
// successful payment, subscription, or NFT action.
type Resolver struct {
	catalog content.Catalog
	rights  Store
	subs    SubscriptionChecker
	oracle  nft.Oracle
	logger  *slog.Logger

	// premiumChain is the ordered fallback for premium content: the
	// priority order is data, not control flow.
	premiumChain []rule
}

// rule is one strategy in a priority-fallback chain. Evaluate returns a nil
// Decision when the rule does not grant and the chain should move on.
type rule struct {
	name     string
	evaluate func(ctx context.Context, item *content.Item, userID string) (*Decision, error)
}

// NewResolver constructs a Resolver with injected collaborators.
func NewResolver(catalog content.Catalog, rights Store, subs SubscriptionChecker, oracle nft.Oracle, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		catalog: catalog,
		rights:  rights,
		subs:    subs,
		oracle:  oracle,
		logger:  logger,
	}

	r.premiumChain = []rule{
		{name: "nft", evaluate: r.tryNFT},
		{name: "subscription", evaluate: r.trySubscription},
		{name: "pay_per_use", evaluate: r.tryPaid},
	}

	return r
}

// Resolve returns the access decision for the content item and optional
// user. userID is empty when no wallet is connected.
func (r *Resolver) Resolve(ctx context.Context, contentID, userID string) (*Decision, error) {
	item, err := r.catalog.Item(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup %q: %w", contentID, err)
	}
	if item == nil {
		return deny("content not found", nil), nil
	}

	decision, err := r.resolveTier(ctx, item, userID)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved access",
		"content_id", contentID,
		"user_id", userID,
		"tier", item.Tier,
		"granted", decision.Granted,
		"method", decision.Method,
	)

	return decision, nil
}

func (r *Resolver) resolveTier(ctx context.Context, item *content.Item, userID string) (*Decision, error) {
	switch item.Tier {
	case content.TierFree:
		return grant(MethodFree), nil

	case content.TierPayPerUse:
		return r.resolvePayPerUse(ctx, item, userID)

	case content.TierSubscription:
		return r.resolveSubscription(ctx, item, userID)

	case content.TierNFTGated:
		return r.resolveNFTGated(ctx, item, userID)

	case content.TierPremium:
		return r.resolvePremium(ctx, item, userID)

	default:
		return deny(fmt.Sprintf("unknown access tier %q", item.Tier), nil), nil
	}
}

// ──────────────────────────────────────────────────
// Tier handlers
// ──────────────────────────────────────────────────

func (r *Resolver) resolvePayPerUse(ctx context.Context, item *content.Item, userID string) (*Decision, error) {
	if userID == "" {
		return deny("payment requires a connected wallet", &RequiredAction{Type: ActionConnectWallet}), nil
	}

	if d, err := r.tryPaid(ctx, item, userID); err != nil || d != nil {
		return d, err
	}

	// A qualifying subscription covers pay-per-use content too.
	if d, err := r.trySubscription(ctx, item, userID); err != nil || d != nil {
		return d, err
	}

	return deny("payment required", &RequiredAction{
		Type:   ActionPay,
		Amount: item.Pricing.PerUse,
	}), nil
}

func (r *Resolver) resolveSubscription(ctx context.Context, item *content.Item, userID string) (*Decision, error) {
	if userID == "" {
		return deny("subscription requires a connected wallet", &RequiredAction{Type: ActionConnectWallet}), nil
	}

	if d, err := r.trySubscription(ctx, item, userID); err != nil || d != nil {
		return d, err
	}

	recommended := ""
	if len(item.Pricing.SubscriptionTiers) > 0 {
		recommended = item.Pricing.SubscriptionTiers[0]
	}

	return deny("active subscription required", &RequiredAction{
		Type: ActionSubscribe,
		Tier: recommended,
	}), nil
}

func (r *Resolver) resolveNFTGated(ctx context.Context, item *content.Item, userID string) (*Decision, error) {
	if userID == "" {
		return deny("nft check requires a connected wallet", &RequiredAction{Type: ActionConnectWallet}), nil
	}

	if d, err := r.tryNFT(ctx, item, userID); err != nil || d != nil {
		return d, err
	}

	// VIP subscribers bypass the NFT gate when the item lists vip as a
	// qualifying tier.
	if item.QualifiesTier("vip") {
		ok, err := r.subs.HasTierAccess(ctx, "vip", userID)
		if err != nil {
			return nil, fmt.Errorf("vip fallback for %q: %w", item.ID, err)
		}
		if ok {
			return grant(MethodSubscription), nil
		}
	}

	contracts := make([]string, 0, len(item.NFTRequirements))
	for _, req := range item.NFTRequirements {
		contracts = append(contracts, req.Contract)
	}

	return deny("qualifying nft not held", &RequiredAction{
		Type:      ActionPurchaseNFT,
		Contracts: contracts,
	}), nil
}

func (r *Resolver) resolvePremium(ctx context.Context, item *content.Item, userID string) (*Decision, error) {
	if userID == "" {
		return deny("premium access requires a connected wallet", &RequiredAction{Type: ActionConnectWallet}), nil
	}

	tried := make([]string, 0, len(r.premiumChain))
	for _, rl := range r.premiumChain {
		d, err := rl.evaluate(ctx, item, userID)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
		tried = append(tried, rl.name)
	}

	action := &RequiredAction{Type: ActionPay, Amount: item.Pricing.PerUse}
	return deny("no premium access path succeeded: "+strings.Join(tried, ", "), action), nil
}

// ──────────────────────────────────────────────────
// Chain rules
// ──────────────────────────────────────────────────

// tryPaid grants when an unexpired one-off purchase right exists for the
// content. Nil when no such right is stored.
func (r *Resolver) tryPaid(ctx context.Context, item *content.Item, userID string) (*Decision, error) {
	right, err := r.rights.ActiveRight(ctx, item.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup rights for %q: %w", item.ID, err)
	}
	if right != nil && right.Paid() {
		return grant(MethodPayment), nil
	}
	return nil, nil
}

// trySubscription grants on the first qualifying tier the user is actively
// subscribed to, in the order the item lists them. Nil when none match.
func (r *Resolver) trySubscription(ctx context.Context, item *content.Item, userID string) (*Decision, error) {
	for _, tierID := range item.Pricing.SubscriptionTiers {
		ok, err := r.subs.HasTierAccess(ctx, tierID, userID)
		if err != nil {
			return nil, fmt.Errorf("subscription check tier %q: %w", tierID, err)
		}
		if ok {
			return grant(MethodSubscription), nil
		}
	}
	return nil, nil
}

// tryNFT grants on the first requirement the oracle confirms, treating
// userID as the wallet address. Nil when no requirement is satisfied.
func (r *Resolver) tryNFT(ctx context.Context, item *content.Item, userID string) (*Decision, error) {
	for _, req := range item.NFTRequirements {
		ok, err := req.Satisfies(ctx, r.oracle, userID)
		if err != nil {
			return nil, fmt.Errorf("oracle check contract %q: %w", req.Contract, err)
		}
		if ok {
			return grant(MethodNFT), nil
		}
	}
	return nil, nil
}
