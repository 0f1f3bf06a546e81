package tunegate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/analytics"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/config"
	"github.com/tunegate/tunegate/content"
	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/nft"
	"github.com/tunegate/tunegate/plugin"
	"github.com/tunegate/tunegate/recovery"
	"github.com/tunegate/tunegate/store"
	"github.com/tunegate/tunegate/subscription"
	"github.com/tunegate/tunegate/types"
	"github.com/tunegate/tunegate/wallet"
)

// Engine is the monetization core: access resolution, the payment channel
// ledger, microtransaction batching, subscriptions, and error recovery.
type Engine struct {
	store    store.Store
	catalog  content.Catalog
	wallet   wallet.Provider
	oracle   nft.Oracle
	resolver *access.Resolver
	recovery *recovery.Orchestrator
	plugins  *plugin.Registry
	logger   *slog.Logger
	cfg      *config.Config
	tiers    []subscription.Tier

	// userLocks serializes charge, batch, and settlement per user.
	// Different users proceed concurrently.
	userLocks sync.Map // userID -> *sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// stopMu guards stopped, so no recovery goroutine is spawned once
	// Stop has begun waiting on wg.
	stopMu  sync.RWMutex
	stopped bool
}

// New creates an Engine over the given store and content catalog.
func New(s store.Store, catalog content.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		catalog:  catalog,
		oracle:   nft.Denying(),
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		cfg:      config.Default(),
		stopChan: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.tiers == nil {
		e.tiers = subscription.DefaultTiers(e.cfg.Pricing.Currency)
	}

	e.resolver = access.NewResolver(e.catalog, e.store, e, e.oracle, e.logger)

	e.recovery = recovery.NewOrchestrator(e.store,
		recovery.WithLogger(e.logger),
		recovery.WithBreakerPolicy(e.cfg.Recovery.FailureThreshold, e.cfg.Recovery.Cooldown),
		recovery.WithRetryPolicy(int(e.cfg.Recovery.MaxAttempts), e.cfg.Recovery.RetryBackoff),
		recovery.WithStateChangeHook(func(service, from, to string) {
			e.plugins.EmitBreakerStateChanged(context.Background(), service, from, to)
		}),
	)

	// Connection and network failures get one built-in strategy: verify
	// the store is reachable again. Domain strategies are registered by
	// the embedding application.
	e.recovery.Register(recovery.Strategy{
		Name:    "store-ping",
		Matches: recovery.MatchType(recovery.TypeConnection, recovery.TypeNetwork),
		Attempt: func(ctx context.Context) error {
			return e.store.Ping(ctx)
		},
	})

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.cfg = cfg
		}
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithWallet sets the wallet provider used for identity and settlement
// signing.
func WithWallet(w wallet.Provider) Option {
	return func(e *Engine) { e.wallet = w }
}

// WithOracle sets the NFT ownership oracle. Without one every NFT check
// denies.
func WithOracle(o nft.Oracle) Option {
	return func(e *Engine) {
		if o != nil {
			e.oracle = o
		}
	}
}

// WithTiers replaces the default subscription tier hierarchy.
func WithTiers(tiers []subscription.Tier) Option {
	return func(e *Engine) { e.tiers = tiers }
}

// Start migrates the store, initializes plugins, and begins the settlement
// worker.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.settlementWorker(ctx)

	e.logger.Info("tunegate started",
		"currency", e.cfg.Pricing.Currency,
		"settle_interval", e.cfg.Settlement.Interval,
		"batch_threshold", e.cfg.BatchThreshold(),
	)

	return nil
}

// Stop shuts down the Engine. Calling it more than once is safe; later
// calls return nil without touching the store again.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.stopMu.Lock()
		e.stopped = true
		e.stopMu.Unlock()

		close(e.stopChan)
		e.wg.Wait()

		e.plugins.EmitShutdown(context.Background())
		err = e.store.Close()
	})
	return err
}

// RegisterRecoveryStrategy adds a recovery strategy to the orchestrator.
func (e *Engine) RegisterRecoveryStrategy(s recovery.Strategy) {
	e.recovery.Register(s)
}

// ──────────────────────────────────────────────────
// Access Resolution
// ──────────────────────────────────────────────────

// ResolveAccess decides whether the user may use the content item. An empty
// userID falls back to the wallet provider's current address; no wallet
// means anonymous resolution.
func (e *Engine) ResolveAccess(ctx context.Context, contentID, userID string) (*access.Decision, error) {
	if userID == "" && e.wallet != nil {
		addr, err := e.wallet.CurrentAddress(ctx)
		if err != nil {
			e.logger.Warn("wallet address lookup failed", "error", err)
		} else {
			userID = addr
		}
	}

	decision, err := e.resolver.Resolve(ctx, contentID, userID)
	if err != nil {
		e.reportFailure(ctx, err, "access", "resolve")
		return nil, err
	}

	e.plugins.EmitAccessResolved(ctx, contentID, userID, decision)
	return decision, nil
}

// ──────────────────────────────────────────────────
// Payment Channels
// ──────────────────────────────────────────────────

// OpenChannel opens a payment channel funded with the deposit. A user has
// at most one active channel.
func (e *Engine) OpenChannel(ctx context.Context, userID string, deposit types.Money) (*channel.Channel, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if !deposit.IsPositive() {
		return nil, fmt.Errorf("%w: deposit %s", ErrInvalidAmount, deposit)
	}
	if deposit.Currency != e.currency() {
		return nil, fmt.Errorf("%w: deposit currency %q, want %q",
			ErrInvalidAmount, deposit.Currency, e.currency())
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := e.store.ActiveChannel(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelExists, existing.ID)
	}

	address := userID
	if e.wallet != nil {
		if addr, addrErr := e.wallet.CurrentAddress(ctx); addrErr == nil && addr != "" {
			address = addr
		}
	}

	now := time.Now().UTC()
	ch := &channel.Channel{
		Entity:       types.NewEntity(),
		ID:           id.NewChannelID(),
		UserID:       userID,
		Address:      address,
		Balance:      deposit,
		Locked:       types.Zero(deposit.Currency),
		Status:       channel.StatusActive,
		LastActivity: now,
	}

	if err := e.store.CreateChannel(ctx, ch); err != nil {
		return nil, err
	}

	e.recordBalance(ctx, userID, batch.BalanceEvent{
		Balance:   ch.Balance,
		Delta:     deposit,
		Reason:    "channel_opened",
		Timestamp: now,
	})

	e.plugins.EmitChannelOpened(ctx, ch)

	e.logger.Info("payment channel opened",
		"channel_id", ch.ID,
		"user_id", userID,
		"deposit", deposit,
	)

	return ch, nil
}

// Balance returns the spendable balance of the user's active channel.
func (e *Engine) Balance(ctx context.Context, userID string) (types.Money, error) {
	ch, err := e.store.ActiveChannel(ctx, userID)
	if err != nil {
		return types.Money{}, err
	}
	if ch == nil {
		return types.Money{}, fmt.Errorf("%w: user %s", ErrNoActiveChannel, userID)
	}
	return ch.Balance, nil
}

// BalanceHistory returns the user's recorded balance changes, oldest first.
func (e *Engine) BalanceHistory(ctx context.Context, userID string) ([]batch.BalanceEvent, error) {
	return e.store.BalanceHistory(ctx, userID)
}

// ──────────────────────────────────────────────────
// Analytics and Health
// ──────────────────────────────────────────────────

// SpendingAnalytics summarizes the user's confirmed spending over the
// trailing number of days.
func (e *Engine) SpendingAnalytics(ctx context.Context, userID string, days int) (*analytics.Report, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	txns, err := e.store.ListTransactions(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	return analytics.Spending(userID, txns, days, e.cfg.Pricing.Currency, now), nil
}

// Health is a point-in-time view of system error state.
type Health struct {
	TotalErrors      int                        `json:"total_errors"`
	CriticalErrors   int                        `json:"critical_errors"`
	UnresolvedErrors int                        `json:"unresolved_errors"`
	Breakers         []recovery.BreakerSnapshot `json:"breakers"`
	RecentErrorRate  float64                    `json:"recent_error_rate"` // errors per minute over the last hour
}

// SystemHealth summarizes reported errors and circuit breaker state.
func (e *Engine) SystemHealth(ctx context.Context) (*Health, error) {
	reports, err := e.store.ListReports(ctx, time.Time{})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	h := &Health{
		TotalErrors: len(reports),
		Breakers:    e.recovery.Snapshots(),
	}

	recent := 0
	for _, r := range reports {
		if r.Severity == recovery.SeverityCritical {
			h.CriticalErrors++
		}
		if !r.Resolved {
			h.UnresolvedErrors++
		}
		if now.Sub(r.Timestamp) <= time.Hour {
			recent++
		}
	}
	h.RecentErrorRate = float64(recent) / 60.0

	return h, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// userLock returns the per-user mutex, creating it on first use.
func (e *Engine) userLock(userID string) *sync.Mutex {
	mu, _ := e.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// currency returns the configured settlement currency in the normalized
// lowercase form Money constructors use.
func (e *Engine) currency() string {
	return strings.ToLower(e.cfg.Pricing.Currency)
}

// reportFailure classifies and persists the failure, publishes it to
// plugins, and attempts recovery in the background so the calling
// operation is not held up by backoff retries.
func (e *Engine) reportFailure(ctx context.Context, err error, service, operation string) {
	report := e.recovery.Report(ctx, err, service, operation)
	e.plugins.EmitErrorReported(ctx, report)

	// Holding stopMu while adding to wg keeps the add ordered before
	// Stop's Wait.
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return
	}

	bg := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if recErr := e.recovery.Recover(bg, report); recErr != nil {
			e.plugins.EmitRecoveryFailed(bg, report, recErr)
			return
		}
		e.plugins.EmitRecoverySucceeded(bg, report)
	}()
}

// recordBalance appends a balance event, logging rather than failing the
// caller when the write does not land.
func (e *Engine) recordBalance(ctx context.Context, userID string, event batch.BalanceEvent) {
	if err := e.store.RecordBalanceEvent(ctx, userID, event); err != nil {
		e.logger.Warn("failed to record balance event",
			"user_id", userID,
			"reason", event.Reason,
			"error", err,
		)
	}
}
