package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/consensus"
	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/storage"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// Compile-time interface checks.
var (
	_ issuance.Minter   = (*Ledger)(nil)
	_ issuance.TxMinter = (*Ledger)(nil)
)

var (
	alice = types.Address{0xa1}
	bob   = types.Address{0xb0}
)

func balance(t *testing.T, l *Ledger, a types.Address) uint64 {
	t.Helper()
	b, err := l.BalanceOf(a)
	if err != nil {
		t.Fatalf("BalanceOf(%s): %v", a, err)
	}
	return b
}

func supply(t *testing.T, l *Ledger) uint64 {
	t.Helper()
	s, err := l.TotalSupply()
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	return s
}

func TestLedger_Mint(t *testing.T) {
	l := New(storage.NewMemory(), 0)
	ctx := context.Background()

	if err := l.Mint(ctx, alice, 100); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Mint(ctx, alice, 50); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Mint(ctx, bob, 7); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if got := balance(t, l, alice); got != 150 {
		t.Errorf("alice = %d, want 150", got)
	}
	if got := balance(t, l, bob); got != 7 {
		t.Errorf("bob = %d, want 7", got)
	}
	if got := supply(t, l); got != 157 {
		t.Errorf("supply = %d, want 157", got)
	}
}

func TestLedger_MintZeroAmount(t *testing.T) {
	l := New(storage.NewMemory(), 0)
	if err := l.Mint(context.Background(), alice, 0); err != nil {
		t.Fatalf("Mint(0): %v", err)
	}
	if supply(t, l) != 0 {
		t.Error("zero mint changed supply")
	}
}

func TestLedger_MintZeroAccount(t *testing.T) {
	l := New(storage.NewMemory(), 0)
	if err := l.Mint(context.Background(), types.Address{}, 1); !errors.Is(err, ErrZeroAccount) {
		t.Errorf("Mint to zero = %v, want ErrZeroAccount", err)
	}
}

func TestLedger_TxCommitAndRollback(t *testing.T) {
	l := New(storage.NewMemory(), 0)
	ctx := context.Background()

	tx := l.BeginMint()
	if err := tx.Mint(ctx, alice, 10); err != nil {
		t.Fatal(err)
	}
	if err := tx.Mint(ctx, bob, 5); err != nil {
		t.Fatal(err)
	}
	if balance(t, l, alice) != 0 {
		t.Error("staged mint visible before commit")
	}
	tx.Rollback()
	if balance(t, l, alice) != 0 || supply(t, l) != 0 {
		t.Error("rollback applied credits")
	}
	if err := tx.Commit(); !errors.Is(err, ErrTxDone) {
		t.Errorf("Commit after Rollback = %v, want ErrTxDone", err)
	}

	tx = l.BeginMint()
	_ = tx.Mint(ctx, alice, 10)
	_ = tx.Mint(ctx, alice, 10)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if balance(t, l, alice) != 20 || supply(t, l) != 20 {
		t.Errorf("after commit alice = %d supply = %d, want 20, 20", balance(t, l, alice), supply(t, l))
	}
	if err := tx.Mint(ctx, alice, 1); !errors.Is(err, ErrTxDone) {
		t.Errorf("Mint after Commit = %v, want ErrTxDone", err)
	}
}

func TestLedger_MaxSupply(t *testing.T) {
	l := New(storage.NewMemory(), 100)
	ctx := context.Background()

	if err := l.Mint(ctx, alice, 60); err != nil {
		t.Fatal(err)
	}
	tx := l.BeginMint()
	if err := tx.Mint(ctx, alice, 30); err != nil {
		t.Fatalf("Mint within cap: %v", err)
	}
	if err := tx.Mint(ctx, bob, 20); !errors.Is(err, ErrSupplyCap) {
		t.Errorf("Mint past cap = %v, want ErrSupplyCap", err)
	}
	tx.Rollback()

	// A cap reached between staging and commit is caught at commit.
	tx = l.BeginMint()
	if err := tx.Mint(ctx, bob, 30); err != nil {
		t.Fatal(err)
	}
	if err := l.Mint(ctx, alice, 30); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); !errors.Is(err, ErrSupplyCap) {
		t.Errorf("Commit past cap = %v, want ErrSupplyCap", err)
	}
	if got := supply(t, l); got != 90 {
		t.Errorf("supply = %d, want 90", got)
	}
}

func TestLedger_ApplyGenesis(t *testing.T) {
	db := storage.NewMemory()
	l := New(db, 0)
	g := config.TestnetGenesis()
	g.Alloc = map[string]uint64{
		alice.String(): 1000,
		bob.String():   1,
	}
	if err := l.ApplyGenesis(g); err != nil {
		t.Fatalf("ApplyGenesis: %v", err)
	}
	if balance(t, l, alice) != 1000 || supply(t, l) != 1001 {
		t.Errorf("after genesis alice = %d supply = %d", balance(t, l, alice), supply(t, l))
	}

	// A second application is a no-op.
	if err := l.Mint(context.Background(), bob, 9); err != nil {
		t.Fatal(err)
	}
	if err := New(db, 0).ApplyGenesis(g); err != nil {
		t.Fatalf("second ApplyGenesis: %v", err)
	}
	if balance(t, l, bob) != 10 || supply(t, l) != 1010 {
		t.Errorf("genesis reapplied: bob = %d supply = %d", balance(t, l, bob), supply(t, l))
	}

	accounts, err := l.Accounts()
	if err != nil || len(accounts) != 2 {
		t.Fatalf("Accounts = %v, %v", accounts, err)
	}
	if accounts[0].Address != alice {
		t.Errorf("accounts not in address order: %v", accounts)
	}
}

func TestLedger_ApplyGenesisOverCap(t *testing.T) {
	l := New(storage.NewMemory(), 10)
	g := config.TestnetGenesis()
	g.Alloc = map[string]uint64{alice.String(): 11}
	if err := l.ApplyGenesis(g); !errors.Is(err, ErrSupplyCap) {
		t.Errorf("ApplyGenesis over cap = %v, want ErrSupplyCap", err)
	}
}

func TestLedger_WithIssuer(t *testing.T) {
	db := storage.NewMemory()
	l := New(storage.NewPrefixDB(db, []byte("l/")), 0)
	r := config.TestnetGenesis().Issuance
	iss, err := issuance.New(issuance.Config{
		Rules:         &r,
		Store:         issuance.NewStore(storage.NewPrefixDB(db, []byte("i/"))),
		Operator:      alice,
		LiquidityPool: bob,
		Minter:        l,
	})
	if err != nil {
		t.Fatalf("issuance.New: %v", err)
	}

	w, err := iss.Work()
	if err != nil {
		t.Fatal(err)
	}
	p := consensus.Puzzle{Height: w.Height, LastNonce: w.LastNonce, Submitter: alice, Target: w.Target}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c, err := p.Solve(ctx, 2)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	ev, err := iss.Submit(context.Background(), c, alice)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if balance(t, l, alice) != ev.MinerReward || balance(t, l, bob) != ev.PoolReward {
		t.Errorf("balances = (%d, %d), want (%d, %d)", balance(t, l, alice), balance(t, l, bob), ev.MinerReward, ev.PoolReward)
	}
	if supply(t, l) != ev.MinerReward+ev.PoolReward {
		t.Errorf("supply = %d, want %d", supply(t, l), ev.MinerReward+ev.PoolReward)
	}
}
