// Package plugin provides an extensible plugin system for Tunegate.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/recovery"
	"github.com/tunegate/tunegate/subscription"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized. The engine is passed as
// any to avoid an import cycle with the root package.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessResolved is called after every access resolution.
type OnAccessResolved interface {
	Plugin
	OnAccessResolved(ctx context.Context, contentID, userID string, d *access.Decision) error
}

// ──────────────────────────────────────────────────
// Charge and settlement hooks
// ──────────────────────────────────────────────────

// OnChargeConfirmed is called when a microtransaction charge confirms.
type OnChargeConfirmed interface {
	Plugin
	OnChargeConfirmed(ctx context.Context, t *channel.Transaction) error
}

// OnBatchSettled is called when a settlement batch settles.
type OnBatchSettled interface {
	Plugin
	OnBatchSettled(ctx context.Context, b *batch.Batch, elapsed time.Duration) error
}

// OnBatchFailed is called when a settlement attempt fails.
type OnBatchFailed interface {
	Plugin
	OnBatchFailed(ctx context.Context, b *batch.Batch, err error) error
}

// ──────────────────────────────────────────────────
// Channel hooks
// ──────────────────────────────────────────────────

// OnChannelOpened is called when a payment channel opens.
type OnChannelOpened interface {
	Plugin
	OnChannelOpened(ctx context.Context, c *channel.Channel) error
}

// OnChannelSettled is called when a payment channel settles and closes.
type OnChannelSettled interface {
	Plugin
	OnChannelSettled(ctx context.Context, c *channel.Channel) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a new subscription is purchased.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, s *subscription.Status) error
}

// OnSubscriptionCanceled is called when a subscription is canceled.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, s *subscription.Status) error
}

// OnSubscriptionUpgraded is called when a subscription upgrades tiers.
type OnSubscriptionUpgraded interface {
	Plugin
	OnSubscriptionUpgraded(ctx context.Context, oldStatus, newStatus *subscription.Status) error
}

// ──────────────────────────────────────────────────
// Recovery hooks
// ──────────────────────────────────────────────────

// OnErrorReported is called when a failure is classified and persisted.
type OnErrorReported interface {
	Plugin
	OnErrorReported(ctx context.Context, r *recovery.Report) error
}

// OnRecoverySucceeded is called when a recovery strategy succeeds.
type OnRecoverySucceeded interface {
	Plugin
	OnRecoverySucceeded(ctx context.Context, r *recovery.Report) error
}

// OnRecoveryFailed is called when all recovery strategies fail.
type OnRecoveryFailed interface {
	Plugin
	OnRecoveryFailed(ctx context.Context, r *recovery.Report, err error) error
}

// OnBreakerStateChanged is called on circuit breaker state transitions.
type OnBreakerStateChanged interface {
	Plugin
	OnBreakerStateChanged(ctx context.Context, service, from, to string) error
}
