package tunegate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	tunegate "github.com/tunegate/tunegate"
	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/config"
	"github.com/tunegate/tunegate/content"
	"github.com/tunegate/tunegate/store/memory"
	"github.com/tunegate/tunegate/subscription"
	"github.com/tunegate/tunegate/types"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func usdc(micros int64) types.Money { return types.Micros(micros, "usdc") }

type fakeWallet struct {
	addr    string
	signErr error
}

func (w *fakeWallet) CurrentAddress(context.Context) (string, error) { return w.addr, nil }

func (w *fakeWallet) Balance(context.Context, string) (types.Money, error) {
	return usdc(0), nil
}

func (w *fakeWallet) SignPayment(context.Context, []byte) ([]byte, error) {
	if w.signErr != nil {
		return nil, w.signErr
	}
	return []byte("sig"), nil
}

func newTestEngine(t *testing.T, opts ...tunegate.Option) (*tunegate.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	return tunegate.New(s, content.NewMemoryCatalog(), opts...), s
}

func mustOpen(t *testing.T, e *tunegate.Engine, userID string, deposit int64) {
	t.Helper()
	if _, err := e.OpenChannel(context.Background(), userID, usdc(deposit)); err != nil {
		t.Fatalf("open channel: %v", err)
	}
}

func mustCharge(t *testing.T, e *tunegate.Engine, userID string, amount int64, contentID string) {
	t.Helper()
	_, err := e.Charge(context.Background(), userID, batch.ChargeRequest{
		ContentID: contentID,
		Amount:    usdc(amount),
	})
	if err != nil {
		t.Fatalf("charge %d: %v", amount, err)
	}
}

func pendingLen(t *testing.T, s *memory.Store, userID string) int {
	t.Helper()
	pending, err := s.PendingQueue(context.Background(), userID)
	if err != nil {
		t.Fatalf("pending queue: %v", err)
	}
	return len(pending)
}

// ──────────────────────────────────────────────────
// Channels
// ──────────────────────────────────────────────────

func TestOpenChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		e, _ := newTestEngine(t)

		ch, err := e.OpenChannel(ctx, "user_1", usdc(1_000_000))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if !ch.Balance.Equal(usdc(1_000_000)) {
			t.Errorf("balance: got %s", ch.Balance)
		}
		if got, err := e.Balance(ctx, "user_1"); err != nil || !got.Equal(usdc(1_000_000)) {
			t.Errorf("Balance: got %s, %v", got, err)
		}

		history, err := e.BalanceHistory(ctx, "user_1")
		if err != nil || len(history) != 1 {
			t.Fatalf("history: got %d events, %v", len(history), err)
		}
		if history[0].Reason != "channel_opened" {
			t.Errorf("history reason: got %q", history[0].Reason)
		}
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)

		_, err := e.OpenChannel(ctx, "user_1", usdc(500_000))
		if !errors.Is(err, tunegate.ErrChannelExists) {
			t.Errorf("got %v, want ErrChannelExists", err)
		}
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		if _, err := e.OpenChannel(ctx, "", usdc(1_000)); !errors.Is(err, tunegate.ErrUnauthenticated) {
			t.Errorf("got %v, want ErrUnauthenticated", err)
		}
	})

	t.Run("non-positive deposit rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		if _, err := e.OpenChannel(ctx, "user_1", usdc(0)); !errors.Is(err, tunegate.ErrInvalidAmount) {
			t.Errorf("got %v, want ErrInvalidAmount", err)
		}
	})

	t.Run("no channel means no balance", func(t *testing.T) {
		e, _ := newTestEngine(t)
		if _, err := e.Balance(ctx, "nobody"); !errors.Is(err, tunegate.ErrNoActiveChannel) {
			t.Errorf("got %v, want ErrNoActiveChannel", err)
		}
	})
}

// ──────────────────────────────────────────────────
// Charges
// ──────────────────────────────────────────────────

func TestChargeValidation(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	mustOpen(t, e, "user_1", 1_000_000)

	// Defaults allow 0.001 to 0.1 per charge.
	tests := []struct {
		name   string
		amount int64
	}{
		{"zero", 0},
		{"negative", -5_000},
		{"below minimum", 500},
		{"above maximum", 200_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Charge(ctx, "user_1", batch.ChargeRequest{Amount: usdc(tt.amount)})
			if !errors.Is(err, tunegate.ErrInvalidAmount) {
				t.Fatalf("got %v, want ErrInvalidAmount", err)
			}
		})
	}

	// Rejected charges leave everything untouched.
	if got, _ := e.Balance(ctx, "user_1"); !got.Equal(usdc(1_000_000)) {
		t.Errorf("balance changed after rejected charges: %s", got)
	}
	if n := pendingLen(t, s, "user_1"); n != 0 {
		t.Errorf("pending queue has %d entries after rejected charges", n)
	}
}

func TestChargeCurrencyMismatch(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	mustOpen(t, e, "user_1", 1_000_000)

	eth := types.Micros(5_000, "eth")

	_, err := e.Charge(ctx, "user_1", batch.ChargeRequest{Amount: eth})
	if !errors.Is(err, tunegate.ErrInvalidAmount) {
		t.Fatalf("Charge: got %v, want ErrInvalidAmount", err)
	}

	_, err = e.BatchCharge(ctx, "user_1", []batch.ChargeRequest{
		{Amount: usdc(5_000)},
		{Amount: eth},
	})
	if !errors.Is(err, tunegate.ErrInvalidAmount) {
		t.Fatalf("BatchCharge: got %v, want ErrInvalidAmount", err)
	}

	_, err = e.OpenChannel(ctx, "user_2", types.Micros(1_000_000, "eth"))
	if !errors.Is(err, tunegate.ErrInvalidAmount) {
		t.Fatalf("OpenChannel: got %v, want ErrInvalidAmount", err)
	}

	if got, _ := e.Balance(ctx, "user_1"); !got.Equal(usdc(1_000_000)) {
		t.Errorf("balance changed after rejected charges: %s", got)
	}
	if n := pendingLen(t, s, "user_1"); n != 0 {
		t.Errorf("pending queue has %d entries after rejected charges", n)
	}
}

func TestChargeSuccess(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	mustOpen(t, e, "user_1", 1_000_000)

	txn, err := e.Charge(ctx, "user_1", batch.ChargeRequest{
		ContentID: "track_002",
		Amount:    usdc(5_000),
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}

	if !txn.Amount.Equal(usdc(5_000)) || txn.ContentID != "track_002" {
		t.Errorf("transaction: %+v", txn)
	}
	if got, _ := e.Balance(ctx, "user_1"); !got.Equal(usdc(995_000)) {
		t.Errorf("balance: got %s, want 0.995", got)
	}
	if n := pendingLen(t, s, "user_1"); n != 1 {
		t.Errorf("pending queue: got %d entries, want 1", n)
	}

	// The charge mints a one-off access right for the content.
	right, err := s.ActiveRight(ctx, "track_002", "user_1")
	if err != nil || right == nil {
		t.Fatalf("active right: %v, %v", right, err)
	}
	if right.Source != txn.ID.String() {
		t.Errorf("right source: got %q, want %q", right.Source, txn.ID)
	}
}

func TestChargeInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	mustOpen(t, e, "user_1", 3_000)

	_, err := e.Charge(ctx, "user_1", batch.ChargeRequest{Amount: usdc(5_000)})
	if !errors.Is(err, tunegate.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if got, _ := e.Balance(ctx, "user_1"); !got.Equal(usdc(3_000)) {
		t.Errorf("balance changed on failed charge: %s", got)
	}
	if n := pendingLen(t, s, "user_1"); n != 0 {
		t.Errorf("pending queue not empty after failed charge: %d", n)
	}
}

func TestChargeWithoutChannel(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Charge(context.Background(), "user_1", batch.ChargeRequest{Amount: usdc(5_000)})
	if !errors.Is(err, tunegate.ErrNoActiveChannel) {
		t.Errorf("got %v, want ErrNoActiveChannel", err)
	}
}

func TestBatchCharge(t *testing.T) {
	ctx := context.Background()

	t.Run("empty rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		if _, err := e.BatchCharge(ctx, "user_1", nil); !errors.Is(err, tunegate.ErrEmptyBatch) {
			t.Errorf("got %v, want ErrEmptyBatch", err)
		}
	})

	t.Run("invalid item rejects whole batch", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)

		items := []batch.ChargeRequest{
			{Amount: usdc(5_000)},
			{Amount: usdc(500)}, // below minimum
		}
		_, err := e.BatchCharge(ctx, "user_1", items)
		if !errors.Is(err, tunegate.ErrInvalidAmount) {
			t.Fatalf("got %v, want ErrInvalidAmount", err)
		}
		if got, _ := e.Balance(ctx, "user_1"); !got.Equal(usdc(1_000_000)) {
			t.Errorf("balance changed: %s", got)
		}
	})

	t.Run("total checked against balance up front", func(t *testing.T) {
		e, s := newTestEngine(t)
		mustOpen(t, e, "user_1", 8_000)

		items := []batch.ChargeRequest{
			{Amount: usdc(5_000)},
			{Amount: usdc(5_000)},
		}
		_, err := e.BatchCharge(ctx, "user_1", items)
		if !errors.Is(err, tunegate.ErrInsufficientBalance) {
			t.Fatalf("got %v, want ErrInsufficientBalance", err)
		}
		if n := pendingLen(t, s, "user_1"); n != 0 {
			t.Errorf("partial charges landed: %d pending", n)
		}
	})

	t.Run("success charges every item", func(t *testing.T) {
		e, s := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)

		items := []batch.ChargeRequest{
			{ContentID: "track_001", Amount: usdc(5_000)},
			{ContentID: "track_002", Amount: usdc(3_000)},
			{ContentID: "track_003", Amount: usdc(2_000)},
		}
		results, err := e.BatchCharge(ctx, "user_1", items)
		if err != nil {
			t.Fatalf("batch charge: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("results: got %d, want 3", len(results))
		}
		for _, r := range results {
			if r.Err != nil || r.Transaction == nil {
				t.Errorf("item %d failed: %v", r.Index, r.Err)
			}
		}
		if got, _ := e.Balance(ctx, "user_1"); !got.Equal(usdc(990_000)) {
			t.Errorf("balance: got %s, want 0.99", got)
		}
		if n := pendingLen(t, s, "user_1"); n != 3 {
			t.Errorf("pending queue: got %d, want 3", n)
		}
	})
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

func TestTriggerSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)

		_, err := e.TriggerSettlement(ctx, "user_1")
		if !errors.Is(err, tunegate.ErrNoPendingTransactions) {
			t.Errorf("got %v, want ErrNoPendingTransactions", err)
		}
	})

	t.Run("settles below threshold", func(t *testing.T) {
		e, s := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)
		mustCharge(t, e, "user_1", 3_000, "track_001")
		mustCharge(t, e, "user_1", 2_000, "track_002")

		b, err := e.TriggerSettlement(ctx, "user_1")
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if b.Status != batch.StatusSettled || b.SettledAt == nil {
			t.Errorf("batch not settled: %+v", b)
		}
		if !b.Total.Equal(usdc(5_000)) {
			t.Errorf("batch total: got %s, want 0.005", b.Total)
		}
		if len(b.Transactions) != 2 {
			t.Errorf("batch transactions: got %d, want 2", len(b.Transactions))
		}
		if n := pendingLen(t, s, "user_1"); n != 0 {
			t.Errorf("queue not cleared: %d pending", n)
		}

		// Settlement closes the channel; the user reopens to keep spending.
		if ch, _ := s.ActiveChannel(ctx, "user_1"); ch != nil {
			t.Errorf("channel still active after settlement: %+v", ch)
		}
	})
}

func TestSettlementFailureKeepsQueue(t *testing.T) {
	ctx := context.Background()
	w := &fakeWallet{addr: "0xwallet", signErr: errors.New("rpc: connection refused")}
	e, s := newTestEngine(t, tunegate.WithWallet(w))
	mustOpen(t, e, "user_1", 1_000_000)
	mustCharge(t, e, "user_1", 5_000, "track_001")

	_, err := e.TriggerSettlement(ctx, "user_1")
	if !errors.Is(err, tunegate.ErrSettlementFailed) {
		t.Fatalf("got %v, want ErrSettlementFailed", err)
	}

	// Nothing is lost: the queue survives for the next cycle and the
	// channel reopens with its balance intact.
	if n := pendingLen(t, s, "user_1"); n != 1 {
		t.Errorf("pending queue: got %d, want 1", n)
	}
	ch, _ := s.ActiveChannel(ctx, "user_1")
	if ch == nil {
		t.Fatal("channel should be active again after failed settlement")
	}
	if !ch.Balance.Equal(usdc(995_000)) {
		t.Errorf("channel balance: got %s, want 0.995", ch.Balance)
	}

	batches, listErr := s.ListBatches(ctx, "user_1")
	if listErr != nil || len(batches) != 1 {
		t.Fatalf("batches: got %d, %v", len(batches), listErr)
	}
	if batches[0].Status != batch.StatusFailed {
		t.Errorf("batch status: got %s, want failed", batches[0].Status)
	}

	// The failed attempt retries cleanly once the wallet recovers.
	w.signErr = nil
	b, err := e.TriggerSettlement(ctx, "user_1")
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if b.Status != batch.StatusSettled {
		t.Errorf("retry batch status: got %s", b.Status)
	}
	if n := pendingLen(t, s, "user_1"); n != 0 {
		t.Errorf("queue not cleared after retry: %d", n)
	}
}

func TestSettlementWorkerHonorsThreshold(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Settlement.Interval = 20 * time.Millisecond

	e, s := newTestEngine(t, tunegate.WithConfig(cfg))

	// Default threshold is 0.01: alice is at it, bob is below.
	mustOpen(t, e, "alice", 1_000_000)
	mustCharge(t, e, "alice", 6_000, "track_001")
	mustCharge(t, e, "alice", 6_000, "track_002")

	mustOpen(t, e, "bob", 1_000_000)
	mustCharge(t, e, "bob", 4_000, "track_001")

	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if n := pendingLen(t, s, "alice"); n != 0 {
		t.Errorf("alice at threshold should settle, %d pending", n)
	}
	if n := pendingLen(t, s, "bob"); n != 1 {
		t.Errorf("bob below threshold should not settle, %d pending", n)
	}
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func TestSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown tier rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)

		if _, err := e.Subscribe(ctx, "user_1", "platinum", subscription.BillingMonthly); !errors.Is(err, tunegate.ErrTierNotFound) {
			t.Errorf("got %v, want ErrTierNotFound", err)
		}
	})

	t.Run("monthly charges the channel", func(t *testing.T) {
		e, s := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)

		status, err := e.Subscribe(ctx, "user_1", "premium", subscription.BillingMonthly)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if !status.Live(time.Now().UTC()) || status.TierID != "premium" || !status.AutoRenew {
			t.Errorf("status: %+v", status)
		}

		// Premium is 0.02 monthly.
		if got, _ := e.Balance(ctx, "user_1"); !got.Equal(usdc(980_000)) {
			t.Errorf("balance: got %s, want 0.98", got)
		}

		// Subscription purchases are channel-level charges, not
		// microtransactions: they skip the pending settlement queue.
		if n := pendingLen(t, s, "user_1"); n != 0 {
			t.Errorf("subscription charge joined the pending queue: %d", n)
		}
	})

	t.Run("yearly is ten monthly prices", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)

		status, err := e.Subscribe(ctx, "user_1", "basic", subscription.BillingYearly)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if got, _ := e.Balance(ctx, "user_1"); !got.Equal(usdc(900_000)) {
			t.Errorf("balance: got %s, want 0.9", got)
		}

		days := time.Until(status.ExpiresAt).Hours() / 24
		if days < 364 || days > 366 {
			t.Errorf("yearly expiry %.0f days out", days)
		}
	})

	t.Run("insufficient balance leaves no subscription", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 5_000)

		if _, err := e.Subscribe(ctx, "user_1", "premium", subscription.BillingMonthly); !errors.Is(err, tunegate.ErrInsufficientBalance) {
			t.Fatalf("got %v, want ErrInsufficientBalance", err)
		}
		if status, _ := e.Subscription(ctx, "user_1"); status != nil {
			t.Errorf("subscription stored despite failed charge: %+v", status)
		}
	})
}

func TestCancelSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("without subscription", func(t *testing.T) {
		e, _ := newTestEngine(t)
		if _, err := e.CancelSubscription(ctx, "user_1"); !errors.Is(err, tunegate.ErrNoActiveSubscription) {
			t.Errorf("got %v, want ErrNoActiveSubscription", err)
		}
	})

	t.Run("keeps paid-for time", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)
		if _, err := e.Subscribe(ctx, "user_1", "basic", subscription.BillingMonthly); err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		status, err := e.CancelSubscription(ctx, "user_1")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if status.AutoRenew {
			t.Error("auto-renew still on after cancel")
		}
		if !status.Live(time.Now().UTC()) {
			t.Error("canceled subscription should stay live until expiry")
		}

		// Access via the tier survives the cancellation.
		ok, err := e.HasTierAccess(ctx, "basic", "user_1")
		if err != nil || !ok {
			t.Errorf("tier access after cancel: %v, %v", ok, err)
		}
	})
}

func TestUpgradeSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("prorated upgrade charge", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)
		original, err := e.Subscribe(ctx, "user_1", "basic", subscription.BillingMonthly)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		before, _ := e.Balance(ctx, "user_1")

		status, err := e.UpgradeSubscription(ctx, "user_1", "premium")
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		if status.TierID != "premium" {
			t.Errorf("tier: got %s", status.TierID)
		}
		if !status.ExpiresAt.Equal(original.ExpiresAt) {
			t.Errorf("upgrade moved expiry: %s -> %s", original.ExpiresAt, status.ExpiresAt)
		}

		// 29 whole days remain right after a monthly subscribe, so the
		// prorated difference is (0.02 - 0.01) * 29 / 30.
		after, _ := e.Balance(ctx, "user_1")
		charged := before.Subtract(after)
		if !charged.Equal(usdc(9_666)) {
			t.Errorf("prorated charge: got %s, want 0.009666", charged)
		}
	})

	t.Run("downgrade rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)
		if _, err := e.Subscribe(ctx, "user_1", "vip", subscription.BillingMonthly); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		before, _ := e.Balance(ctx, "user_1")

		_, err := e.UpgradeSubscription(ctx, "user_1", "basic")
		if !errors.Is(err, tunegate.ErrUpgradeNotHigherTier) {
			t.Fatalf("got %v, want ErrUpgradeNotHigherTier", err)
		}

		status, _ := e.Subscription(ctx, "user_1")
		if status.TierID != "vip" {
			t.Errorf("rejected downgrade mutated tier: %s", status.TierID)
		}
		if after, _ := e.Balance(ctx, "user_1"); !after.Equal(before) {
			t.Errorf("rejected downgrade charged the channel: %s -> %s", before, after)
		}
	})

	t.Run("same tier rejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)
		if _, err := e.Subscribe(ctx, "user_1", "premium", subscription.BillingMonthly); err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		if _, err := e.UpgradeSubscription(ctx, "user_1", "premium"); !errors.Is(err, tunegate.ErrUpgradeNotHigherTier) {
			t.Errorf("got %v, want ErrUpgradeNotHigherTier", err)
		}
	})

	t.Run("without subscription", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustOpen(t, e, "user_1", 1_000_000)

		if _, err := e.UpgradeSubscription(ctx, "user_1", "premium"); !errors.Is(err, tunegate.ErrNoActiveSubscription) {
			t.Errorf("got %v, want ErrNoActiveSubscription", err)
		}
	})
}

func TestHasTierAccess(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	mustOpen(t, e, "user_1", 1_000_000)
	if _, err := e.Subscribe(ctx, "user_1", "premium", subscription.BillingMonthly); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	tests := []struct {
		name     string
		required string
		userID   string
		want     bool
	}{
		{"own tier", "premium", "user_1", true},
		{"lower tier via rank", "basic", "user_1", true},
		{"higher tier denied", "vip", "user_1", false},
		{"unknown tier denied", "platinum", "user_1", false},
		{"no subscription", "basic", "user_2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.HasTierAccess(ctx, tt.required, tt.userID)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Access
// ──────────────────────────────────────────────────

func TestResolveAccessAfterCharge(t *testing.T) {
	ctx := context.Background()

	price := usdc(5_000)
	catalog := content.NewMemoryCatalog()
	catalog.Put(&content.Item{
		ID:   "track_002",
		Tier: content.TierPayPerUse,
		Pricing: content.Pricing{
			PerUse:   &price,
			Currency: "usdc",
		},
	})

	e := tunegate.New(memory.New(), catalog)
	mustOpen(t, e, "user_1", 1_000_000)

	// Before paying: denied with a pay action carrying the price.
	d, err := e.ResolveAccess(ctx, "track_002", "user_1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Granted {
		t.Fatalf("unpaid content granted: %+v", d)
	}
	if d.Action == nil || d.Action.Type != access.ActionPay || !d.Action.Amount.Equal(price) {
		t.Fatalf("required action: %+v", d.Action)
	}

	mustCharge(t, e, "user_1", 5_000, "track_002")

	// After paying: the minted right grants without another charge.
	d, err = e.ResolveAccess(ctx, "track_002", "user_1")
	if err != nil {
		t.Fatalf("resolve after pay: %v", err)
	}
	if !d.Granted || d.Method != access.MethodPayment {
		t.Errorf("got %+v, want payment grant", d)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle and health
// ──────────────────────────────────────────────────

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)

	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// The store is closed with the engine.
	if err := s.Ping(ctx); !errors.Is(err, tunegate.ErrStoreClosed) {
		t.Errorf("ping after stop: got %v, want ErrStoreClosed", err)
	}

	// A second Stop is a no-op rather than a double close.
	if err := e.Stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestSystemHealth(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	h, err := e.SystemHealth(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.TotalErrors != 0 || h.UnresolvedErrors != 0 {
		t.Errorf("fresh engine reports errors: %+v", h)
	}
}

func TestSpendingAnalytics(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	mustOpen(t, e, "user_1", 1_000_000)
	mustCharge(t, e, "user_1", 5_000, "track_001")
	mustCharge(t, e, "user_1", 3_000, "track_001")
	mustCharge(t, e, "user_1", 2_000, "track_002")

	report, err := e.SpendingAnalytics(ctx, "user_1", 7)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if !report.TotalSpent.Equal(usdc(10_000)) {
		t.Errorf("total spent: got %s, want 0.01", report.TotalSpent)
	}
	if report.Count != 3 {
		t.Errorf("transaction count: got %d, want 3", report.Count)
	}
	if report.ContentAccessed != 2 {
		t.Errorf("content accessed: got %d, want 2", report.ContentAccessed)
	}
}
