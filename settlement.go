package tunegate

import (
	"context"
	"fmt"
	"time"

	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/types"
)

// settlementWorker periodically scans pending queues and settles every
// user whose pending total has reached the batch threshold.
func (e *Engine) settlementWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Settlement.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ticker.C:
			e.settleEligible(ctx)
		}
	}
}

// settleEligible flushes every user at or above the batch threshold.
func (e *Engine) settleEligible(ctx context.Context) {
	users, err := e.store.PendingUsers(ctx)
	if err != nil {
		e.logger.Error("failed to scan pending users", "error", err)
		return
	}

	threshold := e.cfg.BatchThreshold()

	for _, userID := range users {
		mu := e.userLock(userID)
		mu.Lock()

		pending, err := e.store.PendingQueue(ctx, userID)
		if err != nil {
			mu.Unlock()
			e.logger.Error("failed to read pending queue", "user_id", userID, "error", err)
			continue
		}

		total := types.Zero(threshold.Currency)
		for _, t := range pending {
			total = total.Add(t.Amount)
		}

		// Below threshold: wait for more charges or a manual trigger.
		if len(pending) == 0 || total.LessThan(threshold) {
			mu.Unlock()
			continue
		}

		if _, err := e.settleUser(ctx, userID, pending); err != nil {
			e.logger.Error("scheduled settlement failed",
				"user_id", userID,
				"total", total,
				"error", err,
			)
		}
		mu.Unlock()
	}
}

// TriggerSettlement flushes the user's pending queue immediately,
// regardless of the batch threshold.
func (e *Engine) TriggerSettlement(ctx context.Context, userID string) (*batch.Batch, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	pending, err := e.store.PendingQueue(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, fmt.Errorf("%w: user %s", ErrNoPendingTransactions, userID)
	}

	return e.settleUser(ctx, userID, pending)
}

// settleUser flushes the given pending transactions as one batch. The
// caller holds the user lock. The queue is cleared only after the batch
// settles; a failed attempt leaves every pending transaction in place for
// the next cycle.
func (e *Engine) settleUser(ctx context.Context, userID string, pending []*channel.Transaction) (*batch.Batch, error) {
	txns := make([]channel.Transaction, 0, len(pending))
	txnIDs := make([]id.TransactionID, 0, len(pending))
	for _, t := range pending {
		txns = append(txns, *t)
		txnIDs = append(txnIDs, t.ID)
	}

	b := batch.New(userID, txns, e.cfg.Pricing.Currency)
	if err := e.store.CreateBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	b.Status = batch.StatusProcessing
	if err := e.store.UpdateBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("mark batch processing: %w", err)
	}

	start := time.Now()

	if err := e.settleChannel(ctx, userID); err != nil {
		b.Status = batch.StatusFailed
		if updateErr := e.store.UpdateBatch(ctx, b); updateErr != nil {
			e.logger.Warn("failed to mark batch failed", "batch_id", b.ID, "error", updateErr)
		}

		e.plugins.EmitBatchFailed(ctx, b, err)
		e.reportTransient(ctx, err, "settlement", "settle_user")

		return b, fmt.Errorf("%w: batch %s: %v", ErrSettlementFailed, b.ID, err)
	}

	now := time.Now().UTC()
	b.Status = batch.StatusSettled
	b.SettledAt = &now
	if err := e.store.UpdateBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("mark batch settled: %w", err)
	}

	if err := e.store.ClearPending(ctx, userID, txnIDs); err != nil {
		return nil, fmt.Errorf("clear pending queue: %w", err)
	}

	elapsed := time.Since(start)
	e.plugins.EmitBatchSettled(ctx, b, elapsed)

	e.logger.Info("batch settled",
		"batch_id", b.ID,
		"user_id", userID,
		"total", b.Total,
		"transactions", len(b.Transactions),
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return b, nil
}

// settleChannel settles the user's active channel on-chain: the channel
// moves active -> settling -> closed and its remaining balance is zeroed
// only once the settlement confirms. With no active channel there is
// nothing to settle and the batch confirms immediately.
func (e *Engine) settleChannel(ctx context.Context, userID string) error {
	ch, err := e.store.ActiveChannel(ctx, userID)
	if err != nil {
		return err
	}
	if ch == nil {
		return nil
	}

	ch.Status = channel.StatusSettling
	ch.Touch()
	if err := e.store.UpdateChannel(ctx, ch); err != nil {
		return fmt.Errorf("mark channel settling: %w", err)
	}

	if e.wallet != nil {
		if _, err := e.wallet.SignPayment(ctx, []byte(ch.ID.String())); err != nil {
			// Settlement did not confirm: reopen the channel, balance
			// untouched.
			ch.Status = channel.StatusActive
			ch.Touch()
			if revertErr := e.store.UpdateChannel(ctx, ch); revertErr != nil {
				e.logger.Error("failed to reopen channel after settlement failure",
					"channel_id", ch.ID,
					"error", revertErr,
				)
			}
			return fmt.Errorf("sign settlement: %w", err)
		}
	}

	remaining := ch.Balance
	now := time.Now().UTC()
	ch.Balance = types.Zero(remaining.Currency)
	ch.Status = channel.StatusClosed
	ch.LastActivity = now
	ch.Touch()

	if err := e.store.UpdateChannel(ctx, ch); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}

	if !remaining.IsZero() {
		e.recordBalance(ctx, userID, batch.BalanceEvent{
			Balance:   ch.Balance,
			Delta:     remaining.Negate(),
			Reason:    "channel_settled",
			Timestamp: now,
		})
	}

	e.plugins.EmitChannelSettled(ctx, ch)
	return nil
}
