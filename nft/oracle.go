// Package nft defines NFT ownership requirements and the on-chain ownership
// oracle interface. The oracle is an injected capability consumed as a
// yes/no answer; the chain call itself lives outside this core, and its
// timeout is the caller's responsibility via ctx.
package nft

import "context"

// Requirement describes an NFT holding that unlocks gated content.
type Requirement struct {
	Contract   string   `json:"contract"`
	TokenIDs   []string `json:"token_ids,omitempty"`
	MinBalance int64    `json:"min_balance"`
}

// Oracle answers ownership questions about a contract and address.
type Oracle interface {
	// CheckOwnership reports whether address owns the given token of the
	// contract.
	CheckOwnership(ctx context.Context, contract, tokenID, address string) (bool, error)

	// CheckBalance returns how many tokens of the contract the address holds.
	CheckBalance(ctx context.Context, contract, address string) (int64, error)
}

// Denying returns an Oracle that confirms nothing, the default when no
// chain integration is wired.
func Denying() Oracle { return denying{} }

type denying struct{}

func (denying) CheckOwnership(context.Context, string, string, string) (bool, error) {
	return false, nil
}

func (denying) CheckBalance(context.Context, string, string) (int64, error) {
	return 0, nil
}

// Satisfies reports whether the oracle confirms the requirement for the
// given address. With explicit token IDs any one of them qualifies;
// otherwise the holder's balance must reach MinBalance (minimum 1).
func (r Requirement) Satisfies(ctx context.Context, oracle Oracle, address string) (bool, error) {
	if len(r.TokenIDs) > 0 {
		for _, tokenID := range r.TokenIDs {
			owned, err := oracle.CheckOwnership(ctx, r.Contract, tokenID, address)
			if err != nil {
				return false, err
			}
			if owned {
				return true, nil
			}
		}
		return false, nil
	}

	min := r.MinBalance
	if min <= 0 {
		min = 1
	}

	balance, err := oracle.CheckBalance(ctx, r.Contract, address)
	if err != nil {
		return false, err
	}
	return balance >= min, nil
}
