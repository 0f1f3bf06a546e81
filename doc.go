// Package tunegate provides a composable content monetization core for Go
// applications: pay-per-use, subscriptions, and NFT-gated access settled
// through micropayment channels.
//
// Tunegate is designed as a library, not a service. Import it directly into
// your application and wire your own catalog, wallet, and NFT oracle. It
// provides:
//
//   - Per-item access resolution across free, pay-per-use, subscription,
//     NFT-gated, and premium tiers
//   - A payment channel ledger with per-user balances and settlement
//   - Microtransaction batching with threshold-based background settlement
//   - A three-tier subscription hierarchy with prorated upgrades
//   - Error classification, circuit breakers, and pluggable recovery
//     strategies
//   - Lifecycle plugins for audit trails and Prometheus metrics
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/tunegate/tunegate"
//	    "github.com/tunegate/tunegate/content"
//	    "github.com/tunegate/tunegate/store/memory"
//	)
//
//	catalog := content.NewMemoryCatalog()
//	eng := tunegate.New(memory.New(), catalog)
//
//	// Start the engine (begins the settlement worker)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Access resolution answers whether a user may play a content item and, if
// not, what would unlock it:
//
//	decision, err := eng.ResolveAccess(ctx, "track_001", userID)
//	if decision.Granted {
//	    // stream it
//	} else if decision.Action != nil {
//	    // render the pay / subscribe / connect-wallet prompt
//	}
//
// Payment channels hold a user's spendable balance; microtransactions are
// charged against the channel and batched for settlement:
//
//	ch, err := eng.OpenChannel(ctx, userID, tunegate.Micros(1_000_000, "usdc"))
//	txn, err := eng.Charge(ctx, userID, batch.ChargeRequest{
//	    ContentID: "track_001",
//	    Amount:    tunegate.Micros(5_000, "usdc"),
//	})
//
// Subscriptions grant tier-ranked catalog access and imply access to
// anything gated at a lower rank:
//
//	status, err := eng.Subscribe(ctx, userID, "premium", subscription.BillingMonthly)
//
// All monetary amounts use integer micro-units (one millionth of a major
// unit) to express sub-cent prices without floating-point drift.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	chan_01h2xcejqtf2nbrexx3vqjhp41  // Channel ID
//	txn_01h2xcejqtf2nbrexx3vqjhp41   // Transaction ID
//	batch_01h455vb4pex5vsknk084sn02q // Settlement batch ID
//
// TypeIDs are K-sortable, providing natural time-ordering of entities.
package tunegate
