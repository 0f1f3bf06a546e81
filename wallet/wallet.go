// Package wallet defines the identity/wallet provider interface consumed by
// the engine. Wallet connection UI flows and signing mechanics live outside
// this core.
package wallet

import (
	"context"

	"github.com/tunegate/tunegate/types"
)

// Provider supplies the current wallet identity and on-chain balance.
type Provider interface {
	// CurrentAddress returns the connected wallet address, or "" when no
	// wallet is connected.
	CurrentAddress(ctx context.Context) (string, error)

	// Balance returns the spendable balance of the address.
	Balance(ctx context.Context, address string) (types.Money, error)

	// SignPayment signs an opaque payment payload.
	SignPayment(ctx context.Context, payload []byte) ([]byte, error)
}
