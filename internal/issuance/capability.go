package issuance

import (
	"context"

	"github.com/Klingon-tech/powmint/pkg/types"
)

// Minter credits newly issued tokens to an account.
type Minter interface {
	Mint(ctx context.Context, account types.Address, amount uint64) error
}

// MintTx stages mints so they can be applied or discarded as a unit.
// Mint on a MintTx records the credit; nothing is visible until Commit.
type MintTx interface {
	Minter
	Commit() error
	Rollback()
}

// TxMinter is a Minter that can stage the mints of one submission. The
// issuer prefers it over plain Mint calls so an aborted submission leaves
// balances untouched.
type TxMinter interface {
	Minter
	BeginMint() MintTx
}

// GovernanceAdvancer moves the governance contract to its next step.
type GovernanceAdvancer interface {
	Advance(ctx context.Context) error
}

// AdvanceTx stages one governance advance. Rollback discards it, or undoes
// it when already committed.
type AdvanceTx interface {
	Commit() error
	Rollback()
}

// TxAdvancer is a GovernanceAdvancer that can stage an advance, so the epoch
// only moves once the submission is durable.
type TxAdvancer interface {
	GovernanceAdvancer
	BeginAdvance(ctx context.Context) (AdvanceTx, error)
}

// directTx adapts a plain Minter to MintTx. Mints take effect immediately,
// so Commit and Rollback have nothing to do.
type directTx struct {
	Minter
}

func (directTx) Commit() error { return nil }
func (directTx) Rollback()     {}

func beginMint(m Minter) MintTx {
	if tm, ok := m.(TxMinter); ok {
		return tm.BeginMint()
	}
	return directTx{m}
}

// directAdvance runs a plain Advance up front; there is nothing to stage.
type directAdvance struct{}

func (directAdvance) Commit() error { return nil }
func (directAdvance) Rollback()     {}

func beginAdvance(ctx context.Context, a GovernanceAdvancer) (AdvanceTx, error) {
	if ta, ok := a.(TxAdvancer); ok {
		return ta.BeginAdvance(ctx)
	}
	if err := a.Advance(ctx); err != nil {
		return nil, err
	}
	return directAdvance{}, nil
}
