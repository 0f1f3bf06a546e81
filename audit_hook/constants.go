package audithook

// Action constants for audit events.
const (
	// Access actions
	ActionAccessGranted = "access.granted"
	ActionAccessDenied  = "access.denied"

	// Channel actions
	ActionChannelOpened  = "channel.opened"
	ActionChannelSettled = "channel.settled"

	// Charge and settlement actions
	ActionChargeConfirmed = "charge.confirmed"
	ActionBatchSettled    = "batch.settled"
	ActionBatchFailed     = "batch.failed"

	// Subscription actions
	ActionSubscriptionCreated  = "subscription.created"
	ActionSubscriptionUpgraded = "subscription.upgraded"
	ActionSubscriptionCanceled = "subscription.canceled"

	// Recovery actions
	ActionErrorReported     = "error.reported"
	ActionRecoverySucceeded = "recovery.succeeded"
	ActionRecoveryFailed    = "recovery.failed"
	ActionBreakerTripped    = "breaker.tripped"
)

// Resource constants for audit events.
const (
	ResourceContent      = "content"
	ResourceChannel      = "channel"
	ResourceTransaction  = "transaction"
	ResourceBatch        = "batch"
	ResourceSubscription = "subscription"
	ResourceErrorReport  = "error_report"
	ResourceBreaker      = "breaker"
)

// Category constants for audit events.
const (
	CategoryAccess     = "access"
	CategoryPayment    = "payment"
	CategorySettlement = "settlement"
	CategoryRecovery   = "recovery"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
