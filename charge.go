package tunegate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/types"
)

// Charge confirms one microtransaction against the user's active channel:
// the balance is debited, the confirmed transaction joins the pending
// settlement queue, and a one-off access right is stored when the request
// names a content item. Validation failures leave all state untouched.
func (e *Engine) Charge(ctx context.Context, userID string, req batch.ChargeRequest) (*channel.Transaction, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if err := e.validateAmount(req.Amount); err != nil {
		return nil, err
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	return e.chargeLocked(ctx, userID, req)
}

// BatchCharge confirms a sequence of microtransactions under one user lock.
// The summed total is validated against the balance up front; afterwards
// items are charged one by one and a failure does not roll back
// already-confirmed charges. The returned results report each item's
// outcome.
func (e *Engine) BatchCharge(ctx context.Context, userID string, items []batch.ChargeRequest) ([]batch.ItemResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	total := types.Zero(e.cfg.Pricing.Currency)
	for i, item := range items {
		if err := e.validateAmount(item.Amount); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		total = total.Add(item.Amount)
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	ch, err := e.store.ActiveChannel(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNoActiveChannel, userID)
	}
	if ch.Balance.LessThan(total) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, total, ch.Balance)
	}

	results := make([]batch.ItemResult, 0, len(items))
	for i, item := range items {
		txn, chargeErr := e.chargeLocked(ctx, userID, item)
		results = append(results, batch.ItemResult{
			Index:       i,
			Transaction: txn,
			Err:         chargeErr,
		})

		if chargeErr != nil {
			e.logger.Warn("batch item failed, continuing",
				"user_id", userID,
				"index", i,
				"error", chargeErr,
			)
		}
	}

	return results, nil
}

// validateAmount enforces the configured currency and charge range.
func (e *Engine) validateAmount(amount types.Money) error {
	if amount.Currency != e.currency() {
		return fmt.Errorf("%w: currency %q, want %q",
			ErrInvalidAmount, amount.Currency, e.currency())
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if amount.LessThan(e.cfg.MinCharge()) || amount.GreaterThan(e.cfg.MaxCharge()) {
		return fmt.Errorf("%w: %s not in [%s, %s]",
			ErrInvalidAmount, amount, e.cfg.MinCharge(), e.cfg.MaxCharge())
	}
	return nil
}

// chargeLocked is the Charge body; the caller holds the user lock and has
// validated the amount range.
func (e *Engine) chargeLocked(ctx context.Context, userID string, req batch.ChargeRequest) (*channel.Transaction, error) {
	txn, err := e.debit(ctx, userID, req.Amount, req.Type, req.ContentID, req.Metadata)
	if err != nil {
		return nil, err
	}

	if err := e.store.AppendPending(ctx, txn); err != nil {
		return nil, fmt.Errorf("queue transaction %s: %w", txn.ID, err)
	}

	if req.ContentID != "" {
		right := &access.Right{
			Entity:    types.NewEntity(),
			ID:        id.NewAccessRightID(),
			ContentID: req.ContentID,
			UserID:    userID,
			Type:      access.RightSingle,
			GrantedAt: txn.Timestamp,
			Source:    txn.ID.String(),
		}
		if req.Duration > 0 {
			expires := txn.Timestamp.Add(req.Duration)
			right.ExpiresAt = &expires
		}

		if err := e.store.CreateRight(ctx, right); err != nil {
			// The charge is confirmed; a missing right is repairable.
			e.logger.Warn("failed to store access right",
				"user_id", userID,
				"content_id", req.ContentID,
				"error", err,
			)
		}
	}

	e.plugins.EmitChargeConfirmed(ctx, txn)
	return txn, nil
}

// debit deducts the amount from the user's active channel and records the
// confirmed transaction. Used by both microtransaction charges and
// subscription purchases; range validation is the caller's concern.
func (e *Engine) debit(ctx context.Context, userID string, amount types.Money, txType channel.TxType, contentID string, metadata map[string]string) (*channel.Transaction, error) {
	ch, err := e.store.ActiveChannel(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNoActiveChannel, userID)
	}
	if ch.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, amount, ch.Balance)
	}

	now := time.Now().UTC()
	ch.Balance = ch.Balance.Subtract(amount)
	ch.LastActivity = now
	ch.Touch()

	if err := e.store.UpdateChannel(ctx, ch); err != nil {
		e.reportTransient(ctx, err, "channel", "debit")
		return nil, fmt.Errorf("debit channel %s: %w", ch.ID, err)
	}

	if txType == "" {
		txType = channel.TxPayment
	}

	txn := &channel.Transaction{
		ID:        id.NewTransactionID(),
		ChannelID: ch.ID,
		UserID:    userID,
		ContentID: contentID,
		Amount:    amount,
		Type:      txType,
		Status:    channel.TxConfirmed,
		Metadata:  metadata,
		Timestamp: now,
	}

	if err := e.store.CreateTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	e.recordBalance(ctx, userID, batch.BalanceEvent{
		Balance:   ch.Balance,
		Delta:     amount.Negate(),
		Reason:    balanceReason(txType, contentID),
		Timestamp: now,
	})

	return txn, nil
}

// reportTransient routes transient store failures to the orchestrator.
// Validation and not-found errors stay out of the error trail.
func (e *Engine) reportTransient(ctx context.Context, err error, service, operation string) {
	if err == nil || IsValidation(err) || IsNotFound(err) || errors.Is(err, ErrInsufficientBalance) {
		return
	}
	e.reportFailure(ctx, err, service, operation)
}

func balanceReason(txType channel.TxType, contentID string) string {
	if contentID != "" {
		return string(txType) + ":" + contentID
	}
	return string(txType)
}
