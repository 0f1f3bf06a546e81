// Package audithook bridges Tunegate lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time; SlogRecorder writes events to a
// structured logger for deployments without a dedicated trail.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/plugin"
	"github.com/tunegate/tunegate/recovery"
	"github.com/tunegate/tunegate/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnAccessResolved       = (*Extension)(nil)
	_ plugin.OnChargeConfirmed      = (*Extension)(nil)
	_ plugin.OnBatchSettled         = (*Extension)(nil)
	_ plugin.OnBatchFailed          = (*Extension)(nil)
	_ plugin.OnChannelOpened        = (*Extension)(nil)
	_ plugin.OnChannelSettled       = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated  = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
	_ plugin.OnSubscriptionUpgraded = (*Extension)(nil)
	_ plugin.OnErrorReported        = (*Extension)(nil)
	_ plugin.OnRecoverySucceeded    = (*Extension)(nil)
	_ plugin.OnRecoveryFailed       = (*Extension)(nil)
	_ plugin.OnBreakerStateChanged  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder returns a Recorder that writes events to logger.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, event *AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", event.Action),
			slog.String("resource", event.Resource),
			slog.String("resource_id", event.ResourceID),
			slog.String("category", event.Category),
			slog.String("outcome", event.Outcome),
			slog.String("severity", event.Severity),
			slog.Any("metadata", event.Metadata),
		)
		return nil
	})
}

// Extension bridges Tunegate lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessResolved implements plugin.OnAccessResolved.
func (e *Extension) OnAccessResolved(ctx context.Context, contentID, userID string, d *access.Decision) error {
	action, outcome := ActionAccessGranted, OutcomeSuccess
	if !d.Granted {
		action, outcome = ActionAccessDenied, OutcomeFailure
	}
	return e.record(ctx, action, SeverityInfo, outcome,
		ResourceContent, contentID, CategoryAccess, nil,
		"user_id", userID,
		"method", string(d.Method),
		"reason", d.Reason,
	)
}

// ──────────────────────────────────────────────────
// Channel hooks
// ──────────────────────────────────────────────────

// OnChannelOpened implements plugin.OnChannelOpened.
func (e *Extension) OnChannelOpened(ctx context.Context, c *channel.Channel) error {
	return e.record(ctx, ActionChannelOpened, SeverityInfo, OutcomeSuccess,
		ResourceChannel, c.ID.String(), CategoryPayment, nil,
		"user_id", c.UserID,
		"balance", c.Balance.String(),
	)
}

// OnChannelSettled implements plugin.OnChannelSettled.
func (e *Extension) OnChannelSettled(ctx context.Context, c *channel.Channel) error {
	return e.record(ctx, ActionChannelSettled, SeverityInfo, OutcomeSuccess,
		ResourceChannel, c.ID.String(), CategorySettlement, nil,
		"user_id", c.UserID,
	)
}

// ──────────────────────────────────────────────────
// Charge and settlement hooks
// ──────────────────────────────────────────────────

// OnChargeConfirmed implements plugin.OnChargeConfirmed.
func (e *Extension) OnChargeConfirmed(ctx context.Context, t *channel.Transaction) error {
	return e.record(ctx, ActionChargeConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryPayment, nil,
		"user_id", t.UserID,
		"content_id", t.ContentID,
		"amount", t.Amount.String(),
		"type", string(t.Type),
	)
}

// OnBatchSettled implements plugin.OnBatchSettled.
func (e *Extension) OnBatchSettled(ctx context.Context, b *batch.Batch, elapsed time.Duration) error {
	return e.record(ctx, ActionBatchSettled, SeverityInfo, OutcomeSuccess,
		ResourceBatch, b.ID.String(), CategorySettlement, nil,
		"user_id", b.UserID,
		"total", b.Total.String(),
		"transactions", len(b.Transactions),
		"elapsed", elapsed.String(),
	)
}

// OnBatchFailed implements plugin.OnBatchFailed.
func (e *Extension) OnBatchFailed(ctx context.Context, b *batch.Batch, err error) error {
	return e.record(ctx, ActionBatchFailed, SeverityError, OutcomeFailure,
		ResourceBatch, b.ID.String(), CategorySettlement, err,
		"user_id", b.UserID,
		"total", b.Total.String(),
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, s *subscription.Status) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, s.ID.String(), CategoryPayment, nil,
		"user_id", s.UserID,
		"tier", s.TierID,
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, s *subscription.Status) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, s.ID.String(), CategoryPayment, nil,
		"user_id", s.UserID,
		"tier", s.TierID,
	)
}

// OnSubscriptionUpgraded implements plugin.OnSubscriptionUpgraded.
func (e *Extension) OnSubscriptionUpgraded(ctx context.Context, oldStatus, newStatus *subscription.Status) error {
	return e.record(ctx, ActionSubscriptionUpgraded, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, newStatus.ID.String(), CategoryPayment, nil,
		"user_id", newStatus.UserID,
		"from_tier", oldStatus.TierID,
		"to_tier", newStatus.TierID,
	)
}

// ──────────────────────────────────────────────────
// Recovery hooks
// ──────────────────────────────────────────────────

// OnErrorReported implements plugin.OnErrorReported.
func (e *Extension) OnErrorReported(ctx context.Context, r *recovery.Report) error {
	severity := SeverityWarning
	if r.Severity == recovery.SeverityCritical {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionErrorReported, severity, OutcomeFailure,
		ResourceErrorReport, r.ID.String(), CategoryRecovery, nil,
		"type", string(r.Type),
		"service", r.Service,
		"operation", r.Operation,
	)
}

// OnRecoverySucceeded implements plugin.OnRecoverySucceeded.
func (e *Extension) OnRecoverySucceeded(ctx context.Context, r *recovery.Report) error {
	return e.record(ctx, ActionRecoverySucceeded, SeverityInfo, OutcomeSuccess,
		ResourceErrorReport, r.ID.String(), CategoryRecovery, nil,
		"type", string(r.Type),
		"service", r.Service,
		"attempts", r.Attempts,
	)
}

// OnRecoveryFailed implements plugin.OnRecoveryFailed.
func (e *Extension) OnRecoveryFailed(ctx context.Context, r *recovery.Report, err error) error {
	return e.record(ctx, ActionRecoveryFailed, SeverityError, OutcomeFailure,
		ResourceErrorReport, r.ID.String(), CategoryRecovery, err,
		"type", string(r.Type),
		"service", r.Service,
		"attempts", r.Attempts,
	)
}

// OnBreakerStateChanged implements plugin.OnBreakerStateChanged.
func (e *Extension) OnBreakerStateChanged(ctx context.Context, service, from, to string) error {
	if to != "open" {
		return nil
	}
	return e.record(ctx, ActionBreakerTripped, SeverityWarning, OutcomeFailure,
		ResourceBreaker, service, CategoryRecovery, nil,
		"from", from,
		"to", to,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
