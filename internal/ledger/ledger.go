// Package ledger keeps balances of the issued token. It is the Minter the
// issuer credits rewards through.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/internal/safemath"
	"github.com/Klingon-tech/powmint/internal/storage"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// Ledger errors.
var (
	ErrSupplyCap   = errors.New("mint exceeds max supply")
	ErrZeroAccount = errors.New("mint to zero address")
	ErrTxDone      = errors.New("mint transaction already finished")
)

// Ledger tracks balances and total supply in base units.
type Ledger struct {
	mu        sync.Mutex // serializes writes
	store     *store
	maxSupply uint64 // 0 = unlimited
}

// Account is one balance entry.
type Account struct {
	Address types.Address `json:"address"`
	Balance uint64        `json:"balance"`
}

// New creates a ledger over db. A zero maxSupply disables the cap.
func New(db storage.BatchDB, maxSupply uint64) *Ledger {
	return &Ledger{store: &store{db: db}, maxSupply: maxSupply}
}

// ApplyGenesis credits the genesis allocation once. It does nothing when
// the ledger already has a recorded supply.
func (l *Ledger) ApplyGenesis(g *config.Genesis) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	done, err := l.store.hasSupply()
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	balances := make(map[types.Address]uint64, len(g.Alloc))
	var supply uint64
	for addrStr, amount := range g.Alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("genesis alloc %q: %w", addrStr, err)
		}
		if balances[addr], err = safemath.Add(balances[addr], amount); err != nil {
			return fmt.Errorf("genesis alloc %s: %w", addr, err)
		}
		if supply, err = safemath.Add(supply, amount); err != nil {
			return fmt.Errorf("genesis supply: %w", err)
		}
	}
	if l.maxSupply != 0 && supply > l.maxSupply {
		return fmt.Errorf("genesis alloc %d: %w", supply, ErrSupplyCap)
	}
	if err := l.store.write(balances, supply); err != nil {
		return err
	}
	log.Ledger.Info().Int("accounts", len(balances)).Uint64("supply", supply).Msg("Genesis allocation applied")
	return nil
}

// Mint credits amount to account immediately.
func (l *Ledger) Mint(ctx context.Context, account types.Address, amount uint64) error {
	tx := l.BeginMint()
	if err := tx.Mint(ctx, account, amount); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// BeginMint starts a staged set of mints.
func (l *Ledger) BeginMint() issuance.MintTx {
	return &mintTx{ledger: l, pending: make(map[types.Address]uint64)}
}

// BalanceOf returns the balance of addr.
func (l *Ledger) BalanceOf(addr types.Address) (uint64, error) {
	return l.store.balance(addr)
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() (uint64, error) {
	return l.store.supply()
}

// MaxSupply returns the supply cap, 0 when unlimited.
func (l *Ledger) MaxSupply() uint64 {
	return l.maxSupply
}

// Accounts returns every funded account in address order.
func (l *Ledger) Accounts() ([]Account, error) {
	accounts := []Account{}
	err := l.store.forEach(func(addr types.Address, bal uint64) error {
		accounts = append(accounts, Account{Address: addr, Balance: bal})
		return nil
	})
	return accounts, err
}

// mintTx accumulates credits and applies them in one batch.
type mintTx struct {
	ledger  *Ledger
	pending map[types.Address]uint64
	total   uint64
	done    bool
}

func (tx *mintTx) Mint(ctx context.Context, account types.Address, amount uint64) error {
	if tx.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if account.IsZero() {
		return ErrZeroAccount
	}
	if amount == 0 {
		return nil
	}
	pending, err := safemath.Add(tx.pending[account], amount)
	if err != nil {
		return fmt.Errorf("mint %s: %w", account, err)
	}
	total, err := safemath.Add(tx.total, amount)
	if err != nil {
		return fmt.Errorf("mint total: %w", err)
	}
	if err := tx.ledger.checkCap(total); err != nil {
		return err
	}
	tx.pending[account] = pending
	tx.total = total
	return nil
}

// checkCap fails when minting extra on top of the committed supply would
// pass the cap.
func (l *Ledger) checkCap(extra uint64) error {
	if l.maxSupply == 0 {
		return nil
	}
	supply, err := l.store.supply()
	if err != nil {
		return err
	}
	if newSupply, err := safemath.Add(supply, extra); err != nil || newSupply > l.maxSupply {
		return fmt.Errorf("supply %d + %d > %d: %w", supply, extra, l.maxSupply, ErrSupplyCap)
	}
	return nil
}

// Commit checks the cap against the current supply and applies all credits.
func (tx *mintTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if tx.total == 0 {
		return nil
	}

	l := tx.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	supply, err := l.store.supply()
	if err != nil {
		return err
	}
	newSupply, err := safemath.Add(supply, tx.total)
	if err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	if l.maxSupply != 0 && newSupply > l.maxSupply {
		return fmt.Errorf("supply %d + %d > %d: %w", supply, tx.total, l.maxSupply, ErrSupplyCap)
	}

	balances := make(map[types.Address]uint64, len(tx.pending))
	for addr, amount := range tx.pending {
		bal, err := l.store.balance(addr)
		if err != nil {
			return err
		}
		if balances[addr], err = safemath.Add(bal, amount); err != nil {
			return fmt.Errorf("balance %s: %w", addr, err)
		}
	}
	if err := l.store.write(balances, newSupply); err != nil {
		return err
	}

	for addr, amount := range tx.pending {
		log.Ledger.Debug().Str("account", addr.String()).Uint64("amount", amount).Msg("Minted")
	}
	return nil
}

func (tx *mintTx) Rollback() {
	tx.done = true
	tx.pending = nil
}
