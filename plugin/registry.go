package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/recovery"
	"github.com/tunegate/tunegate/subscription"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onAccessResolved       []OnAccessResolved
	onChargeConfirmed      []OnChargeConfirmed
	onBatchSettled         []OnBatchSettled
	onBatchFailed          []OnBatchFailed
	onChannelOpened        []OnChannelOpened
	onChannelSettled       []OnChannelSettled
	onSubscriptionCreated  []OnSubscriptionCreated
	onSubscriptionCanceled []OnSubscriptionCanceled
	onSubscriptionUpgraded []OnSubscriptionUpgraded
	onErrorReported        []OnErrorReported
	onRecoverySucceeded    []OnRecoverySucceeded
	onRecoveryFailed       []OnRecoveryFailed
	onBreakerStateChanged  []OnBreakerStateChanged
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccessResolved); ok {
		r.onAccessResolved = append(r.onAccessResolved, v)
	}
	if v, ok := p.(OnChargeConfirmed); ok {
		r.onChargeConfirmed = append(r.onChargeConfirmed, v)
	}
	if v, ok := p.(OnBatchSettled); ok {
		r.onBatchSettled = append(r.onBatchSettled, v)
	}
	if v, ok := p.(OnBatchFailed); ok {
		r.onBatchFailed = append(r.onBatchFailed, v)
	}
	if v, ok := p.(OnChannelOpened); ok {
		r.onChannelOpened = append(r.onChannelOpened, v)
	}
	if v, ok := p.(OnChannelSettled); ok {
		r.onChannelSettled = append(r.onChannelSettled, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnSubscriptionUpgraded); ok {
		r.onSubscriptionUpgraded = append(r.onSubscriptionUpgraded, v)
	}
	if v, ok := p.(OnErrorReported); ok {
		r.onErrorReported = append(r.onErrorReported, v)
	}
	if v, ok := p.(OnRecoverySucceeded); ok {
		r.onRecoverySucceeded = append(r.onRecoverySucceeded, v)
	}
	if v, ok := p.(OnRecoveryFailed); ok {
		r.onRecoveryFailed = append(r.onRecoveryFailed, v)
	}
	if v, ok := p.(OnBreakerStateChanged); ok {
		r.onBreakerStateChanged = append(r.onBreakerStateChanged, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitAccessResolved emits an access resolved event.
func (r *Registry) EmitAccessResolved(ctx context.Context, contentID, userID string, d *access.Decision) {
	r.mu.RLock()
	plugins := r.onAccessResolved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccessResolved(ctx, contentID, userID, d)
		}); err != nil {
			r.logger.Warn("plugin OnAccessResolved failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitChargeConfirmed emits a charge confirmed event.
func (r *Registry) EmitChargeConfirmed(ctx context.Context, t *channel.Transaction) {
	r.mu.RLock()
	plugins := r.onChargeConfirmed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChargeConfirmed(ctx, t)
		}); err != nil {
			r.logger.Warn("plugin OnChargeConfirmed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitBatchSettled emits a batch settled event.
func (r *Registry) EmitBatchSettled(ctx context.Context, b *batch.Batch, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onBatchSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBatchSettled(ctx, b, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnBatchSettled failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitBatchFailed emits a batch failed event.
func (r *Registry) EmitBatchFailed(ctx context.Context, b *batch.Batch, batchErr error) {
	r.mu.RLock()
	plugins := r.onBatchFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBatchFailed(ctx, b, batchErr)
		}); err != nil {
			r.logger.Warn("plugin OnBatchFailed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitChannelOpened emits a channel opened event.
func (r *Registry) EmitChannelOpened(ctx context.Context, c *channel.Channel) {
	r.mu.RLock()
	plugins := r.onChannelOpened
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChannelOpened(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnChannelOpened failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitChannelSettled emits a channel settled event.
func (r *Registry) EmitChannelSettled(ctx context.Context, c *channel.Channel) {
	r.mu.RLock()
	plugins := r.onChannelSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChannelSettled(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnChannelSettled failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, s *subscription.Status) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCreated(ctx, s)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCreated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, s *subscription.Status) {
	r.mu.RLock()
	plugins := r.onSubscriptionCanceled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCanceled(ctx, s)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCanceled failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitSubscriptionUpgraded emits a subscription upgraded event.
func (r *Registry) EmitSubscriptionUpgraded(ctx context.Context, oldStatus, newStatus *subscription.Status) {
	r.mu.RLock()
	plugins := r.onSubscriptionUpgraded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionUpgraded(ctx, oldStatus, newStatus)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionUpgraded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitErrorReported emits an error reported event.
func (r *Registry) EmitErrorReported(ctx context.Context, report *recovery.Report) {
	r.mu.RLock()
	plugins := r.onErrorReported
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnErrorReported(ctx, report)
		}); err != nil {
			r.logger.Warn("plugin OnErrorReported failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRecoverySucceeded emits a recovery succeeded event.
func (r *Registry) EmitRecoverySucceeded(ctx context.Context, report *recovery.Report) {
	r.mu.RLock()
	plugins := r.onRecoverySucceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRecoverySucceeded(ctx, report)
		}); err != nil {
			r.logger.Warn("plugin OnRecoverySucceeded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRecoveryFailed emits a recovery failed event.
func (r *Registry) EmitRecoveryFailed(ctx context.Context, report *recovery.Report, recoveryErr error) {
	r.mu.RLock()
	plugins := r.onRecoveryFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRecoveryFailed(ctx, report, recoveryErr)
		}); err != nil {
			r.logger.Warn("plugin OnRecoveryFailed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitBreakerStateChanged emits a breaker state change event.
func (r *Registry) EmitBreakerStateChanged(ctx context.Context, service, from, to string) {
	r.mu.RLock()
	plugins := r.onBreakerStateChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBreakerStateChanged(ctx, service, from, to)
		}); err != nil {
			r.logger.Warn("plugin OnBreakerStateChanged failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the payment pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
