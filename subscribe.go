package tunegate

import (
	"context"
	"fmt"
	"time"

	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/subscription"
	"github.com/tunegate/tunegate/types"
)

// Tiers returns the configured subscription tier hierarchy, rank order.
func (e *Engine) Tiers() []subscription.Tier {
	tiers := make([]subscription.Tier, len(e.tiers))
	copy(tiers, e.tiers)
	return tiers
}

func (e *Engine) tierByID(tierID string) (subscription.Tier, bool) {
	for _, t := range e.tiers {
		if t.ID == tierID {
			return t, true
		}
	}
	return subscription.Tier{}, false
}

// Subscribe purchases a subscription tier, charging the user's payment
// channel for the billing cycle up front. Yearly billing charges ten
// monthly prices for twelve months of access. The new status replaces any
// previous subscription wholesale.
func (e *Engine) Subscribe(ctx context.Context, userID, tierID string, billing subscription.Billing) (*subscription.Status, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	tier, ok := e.tierByID(tierID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTierNotFound, tierID)
	}
	if billing == "" {
		billing = subscription.BillingMonthly
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	price := tier.Price(billing)
	txn, err := e.debit(ctx, userID, price, channel.TxSubscription, "", map[string]string{
		"tier":    tier.ID,
		"billing": string(billing),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	status := &subscription.Status{
		Entity:    types.NewEntity(),
		ID:        id.NewSubscriptionID(),
		UserID:    userID,
		TierID:    tier.ID,
		Active:    true,
		ExpiresAt: now.Add(billing.Period()),
		AutoRenew: true,
		Benefits:  tier.Benefits,
	}

	if err := e.store.UpsertStatus(ctx, status); err != nil {
		e.reportTransient(ctx, err, "subscription", "subscribe")
		return nil, fmt.Errorf("store subscription: %w", err)
	}

	e.plugins.EmitSubscriptionCreated(ctx, status)

	e.logger.Info("subscription created",
		"user_id", userID,
		"tier", tier.ID,
		"billing", billing,
		"price", price,
		"txn_id", txn.ID,
	)

	return status, nil
}

// CancelSubscription turns off auto-renewal. Paid-for time is kept: the
// subscription stays live until its expiry, and nothing is refunded.
func (e *Engine) CancelSubscription(ctx context.Context, userID string) (*subscription.Status, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	status, err := e.store.GetStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	if status == nil || !status.Live(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: user %s", ErrNoActiveSubscription, userID)
	}

	status.AutoRenew = false
	status.Touch()

	if err := e.store.UpsertStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("store cancellation: %w", err)
	}

	e.plugins.EmitSubscriptionCanceled(ctx, status)

	e.logger.Info("subscription canceled",
		"user_id", userID,
		"tier", status.TierID,
		"expires_at", status.ExpiresAt,
	)

	return status, nil
}

// UpgradeSubscription moves an active subscription to a higher-priced tier,
// charging a prorated difference for the remaining days of the current
// period. The expiry date is preserved; only the tier changes. Downgrades
// are rejected.
func (e *Engine) UpgradeSubscription(ctx context.Context, userID, newTierID string) (*subscription.Status, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	newTier, ok := e.tierByID(newTierID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTierNotFound, newTierID)
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()

	status, err := e.store.GetStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	if status == nil || !status.Live(now) {
		return nil, fmt.Errorf("%w: user %s", ErrNoActiveSubscription, userID)
	}

	current, ok := e.tierByID(status.TierID)
	if !ok {
		return nil, fmt.Errorf("%w: current tier %q", ErrTierNotFound, status.TierID)
	}
	if !newTier.MonthlyPrice.GreaterThan(current.MonthlyPrice) {
		return nil, fmt.Errorf("%w: %s does not exceed %s", ErrUpgradeNotHigherTier, newTier.ID, current.ID)
	}

	// Prorate the price difference over the days left in the period:
	// (new - old) * remainingDays / 30, in whole UTC days.
	remainingDays := status.RemainingDays(now)
	prorated := newTier.MonthlyPrice.Subtract(current.MonthlyPrice).Multiply(remainingDays).Divide(30)

	if prorated.IsPositive() {
		if _, err := e.debit(ctx, userID, prorated, channel.TxSubscription, "", map[string]string{
			"upgrade_from": current.ID,
			"upgrade_to":   newTier.ID,
			"prorated":     prorated.String(),
		}); err != nil {
			return nil, err
		}
	}

	old := *status
	status.TierID = newTier.ID
	status.Benefits = newTier.Benefits
	status.Touch()

	if err := e.store.UpsertStatus(ctx, status); err != nil {
		e.reportTransient(ctx, err, "subscription", "upgrade")
		return nil, fmt.Errorf("store upgrade: %w", err)
	}

	e.plugins.EmitSubscriptionUpgraded(ctx, &old, status)

	e.logger.Info("subscription upgraded",
		"user_id", userID,
		"from", current.ID,
		"to", newTier.ID,
		"prorated", prorated,
		"remaining_days", remainingDays,
	)

	return status, nil
}

// Subscription returns the user's current subscription status, nil when
// none exists.
func (e *Engine) Subscription(ctx context.Context, userID string) (*subscription.Status, error) {
	return e.store.GetStatus(ctx, userID)
}

// HasTierAccess reports whether the user's live subscription reaches the
// required tier. Holding a higher-ranked tier qualifies for anything gated
// on a lower one.
func (e *Engine) HasTierAccess(ctx context.Context, requiredTier, userID string) (bool, error) {
	required, ok := e.tierByID(requiredTier)
	if !ok {
		return false, nil
	}

	status, err := e.store.GetStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	if status == nil || !status.Live(time.Now().UTC()) {
		return false, nil
	}

	held, ok := e.tierByID(status.TierID)
	if !ok {
		return false, nil
	}

	return held.Rank >= required.Rank, nil
}
