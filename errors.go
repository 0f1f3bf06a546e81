package tunegate

import (
	"errors"
	"fmt"

	"github.com/tunegate/tunegate/recovery"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound        = errors.New("tunegate: not found")
	ErrAlreadyExists   = errors.New("tunegate: already exists")
	ErrInvalidInput    = errors.New("tunegate: invalid input")
	ErrUnauthenticated = errors.New("tunegate: user not authenticated")

	// Content / access errors
	ErrContentNotFound   = errors.New("tunegate: content not found")
	ErrUnknownAccessTier = errors.New("tunegate: unknown access tier")
	ErrAccessDenied      = errors.New("tunegate: access denied")

	// Payment channel errors
	ErrNoActiveChannel     = errors.New("tunegate: no active payment channel")
	ErrChannelExists       = errors.New("tunegate: user already has an open channel")
	ErrChannelClosed       = errors.New("tunegate: payment channel is closed")
	ErrChannelSettling     = errors.New("tunegate: payment channel is settling")
	ErrInsufficientBalance = errors.New("tunegate: insufficient balance")

	// Microtransaction errors
	ErrInvalidAmount         = errors.New("tunegate: amount outside allowed range")
	ErrEmptyBatch            = errors.New("tunegate: batch contains no items")
	ErrNoPendingTransactions = errors.New("tunegate: no pending transactions to settle")
	ErrSettlementFailed      = errors.New("tunegate: settlement failed")

	// Subscription errors
	ErrTierNotFound         = errors.New("tunegate: subscription tier not found")
	ErrNoActiveSubscription = errors.New("tunegate: no active subscription")
	ErrSubscriptionExpired  = errors.New("tunegate: subscription is expired")
	ErrUpgradeNotHigherTier = errors.New("tunegate: upgrade requires a higher-priced tier")

	// Recovery errors, re-exported from the recovery package so callers
	// can match them without importing it.
	ErrBreakerOpen        = recovery.ErrBreakerOpen
	ErrRecoveryExhausted  = recovery.ErrExhausted
	ErrNoMatchingStrategy = recovery.ErrNoStrategy

	// Store errors
	ErrStoreClosed       = errors.New("tunegate: store is closed")
	ErrTransactionFailed = errors.New("tunegate: store transaction failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tunegate: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrContentNotFound) ||
		errors.Is(err, ErrTierNotFound) ||
		errors.Is(err, ErrNoActiveChannel) ||
		errors.Is(err, ErrNoActiveSubscription)
}

// IsValidation returns true if the error is a terminal validation failure
// that must never be retried.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnknownAccessTier) ||
		errors.Is(err, ErrContentNotFound) ||
		errors.Is(err, ErrUpgradeNotHigherTier) ||
		errors.Is(err, ErrEmptyBatch)
}

// IsRetryable returns true if the error is temporary and the operation can be
// retried, typically by routing through the recovery orchestrator.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSettlementFailed) ||
		errors.Is(err, ErrChannelSettling) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrStoreClosed)
}
