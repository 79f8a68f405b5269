package issuance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/consensus"
	"github.com/Klingon-tech/powmint/internal/storage"
	"github.com/Klingon-tech/powmint/pkg/types"
)

var (
	operator = types.Address{0x0e}
	pool     = types.Address{0x0b}
	govAddr  = types.Address{0x0c}
	miner1   = types.Address{0x01}
	miner2   = types.Address{0x02}
)

func powTarget(bits uint) types.Target {
	return types.TargetFromInt(new(uint256.Int).Lsh(uint256.NewInt(1), bits))
}

// testRules returns rules with an easy proof and no halving, stages or
// governance boundaries in the first few hundred heights.
func testRules() *config.IssuanceRules {
	return &config.IssuanceRules{
		RetargetPeriod: 3,
		TargetSpacing:  2, // expected span 6
		MaxTarget:      powTarget(250),
		BaseReward:     1000,
		HalvingPeriod:  1_000_000,
		StageSpan:      1_000_000,
		Tiers: [config.TierCount]config.Tier{
			{MinerPercent: 70, PoolPercent: 30},
			{MinerPercent: 70, PoolPercent: 30},
			{MinerPercent: 60, PoolPercent: 30, BonusPercent: 10},
		},
		AdvancePeriod:          1,
		GovernanceActiveHeight: 1_000_000,
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type credit struct {
	account types.Address
	amount  uint64
}

// fakeMinter records credits. fail, when set, is returned from the call
// with index failAt (0-based).
type fakeMinter struct {
	mu      sync.Mutex
	calls   int
	credits []credit
	failAt  int
	fail    error
	hook    func(ctx context.Context, account types.Address, amount uint64)
}

func (m *fakeMinter) Mint(ctx context.Context, account types.Address, amount uint64) error {
	if m.hook != nil {
		m.hook(ctx, account, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	m.calls++
	if m.fail != nil && idx == m.failAt {
		return m.fail
	}
	m.credits = append(m.credits, credit{account, amount})
	return nil
}

func (m *fakeMinter) balance(a types.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum uint64
	for _, c := range m.credits {
		if c.account == a {
			sum += c.amount
		}
	}
	return sum
}

// fakeTxMinter stages credits and applies them on Commit.
type fakeTxMinter struct {
	fakeMinter
	commitErr error
	commits   int
	rollbacks int
}

type fakeTx struct {
	parent  *fakeTxMinter
	pending []credit
	mintErr error
}

func (m *fakeTxMinter) BeginMint() MintTx {
	return &fakeTx{parent: m, mintErr: m.fail}
}

func (tx *fakeTx) Mint(_ context.Context, account types.Address, amount uint64) error {
	if tx.mintErr != nil {
		return tx.mintErr
	}
	tx.pending = append(tx.pending, credit{account, amount})
	return nil
}

func (tx *fakeTx) Commit() error {
	tx.parent.mu.Lock()
	defer tx.parent.mu.Unlock()
	if tx.parent.commitErr != nil {
		return tx.parent.commitErr
	}
	tx.parent.commits++
	tx.parent.credits = append(tx.parent.credits, tx.pending...)
	return nil
}

func (tx *fakeTx) Rollback() {
	tx.parent.mu.Lock()
	tx.parent.rollbacks++
	tx.parent.mu.Unlock()
}

type fakeAdvancer struct {
	mu    sync.Mutex
	count int
	err   error
}

func (a *fakeAdvancer) Advance(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.count++
	return nil
}

func (a *fakeAdvancer) advances() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

type testEnv struct {
	iss      *Issuer
	db       *storage.MemoryDB
	store    *Store
	minter   Minter
	advancer *fakeAdvancer
	clock    *fakeClock
	rules    *config.IssuanceRules
}

func newTestEnv(t *testing.T, rules *config.IssuanceRules, minter Minter) *testEnv {
	t.Helper()
	if rules == nil {
		rules = testRules()
	}
	if minter == nil {
		minter = &fakeMinter{}
	}
	env := &testEnv{
		db:       storage.NewMemory(),
		minter:   minter,
		advancer: &fakeAdvancer{},
		clock:    newFakeClock(),
		rules:    rules,
	}
	env.store = NewStore(env.db)
	iss, err := New(Config{
		Rules:         rules,
		Store:         env.store,
		Operator:      operator,
		LiquidityPool: pool,
		Governance:    govAddr,
		Minter:        minter,
		Advancer:      env.advancer,
		Clock:         env.clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.iss = iss
	return env
}

// solve finds a valid candidate for submitter against the issuer's current work.
func solve(t *testing.T, iss *Issuer, submitter types.Address) types.Nonce {
	t.Helper()
	w, err := iss.Work()
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	p := consensus.Puzzle{Height: w.Height, LastNonce: w.LastNonce, Submitter: submitter, Target: w.Target}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c, err := p.Solve(ctx, 1)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	return c
}

// badCandidate finds a candidate that does not meet the current target.
func badCandidate(t *testing.T, iss *Issuer, submitter types.Address) types.Nonce {
	t.Helper()
	w, err := iss.Work()
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	p := consensus.Puzzle{Height: w.Height, LastNonce: w.LastNonce, Submitter: submitter, Target: w.Target}
	for i := 0; i < 1<<16; i++ {
		var c types.Nonce
		c[0], c[1] = byte(i>>8), byte(i)
		if err := p.CheckProof(c); errors.Is(err, consensus.ErrProofRejected) {
			return c
		}
	}
	t.Fatal("no rejected candidate found")
	return types.Nonce{}
}

// mustSubmit solves and submits, failing the test on error.
func mustSubmit(t *testing.T, iss *Issuer, submitter types.Address) *RewardEvent {
	t.Helper()
	ev, err := iss.Submit(context.Background(), solve(t, iss, submitter), submitter)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return ev
}

// fakeTxAdvancer stages advances and counts the epoch only on Commit.
type fakeTxAdvancer struct {
	mu        sync.Mutex
	epoch     int
	staged    int
	rollbacks int
	commitErr error
}

type fakeAdvanceTx struct {
	parent    *fakeTxAdvancer
	committed bool
}

func (a *fakeTxAdvancer) Advance(ctx context.Context) error {
	tx, err := a.BeginAdvance(ctx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (a *fakeTxAdvancer) BeginAdvance(context.Context) (AdvanceTx, error) {
	a.mu.Lock()
	a.staged++
	a.mu.Unlock()
	return &fakeAdvanceTx{parent: a}, nil
}

func (tx *fakeAdvanceTx) Commit() error {
	tx.parent.mu.Lock()
	defer tx.parent.mu.Unlock()
	if tx.parent.commitErr != nil {
		return tx.parent.commitErr
	}
	tx.parent.epoch++
	tx.committed = true
	return nil
}

func (tx *fakeAdvanceTx) Rollback() {
	tx.parent.mu.Lock()
	defer tx.parent.mu.Unlock()
	tx.parent.rollbacks++
	if tx.committed {
		tx.parent.epoch--
		tx.committed = false
	}
}

func (a *fakeTxAdvancer) current() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epoch
}

// newStagedGovernanceIssuer builds a governed issuer, as newGovernedEnv
// does, around a staging advancer.
func newStagedGovernanceIssuer(t *testing.T, m Minter, adv *fakeTxAdvancer) *testEnv {
	t.Helper()
	env := newGovernedEnv(t, m)
	iss, err := New(Config{
		Rules:         env.rules,
		Store:         env.store,
		Operator:      operator,
		LiquidityPool: pool,
		Governance:    govAddr,
		Minter:        m,
		Advancer:      adv,
		Clock:         env.clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.iss = iss
	return env
}
