// Package issuance implements the proof submission state machine: each
// accepted proof advances the chain state by one height, mints the tiered
// reward and, at governance boundaries, hands off to the governance advancer.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/consensus"
	"github.com/Klingon-tech/powmint/internal/guard"
	"github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/internal/reward"
	"github.com/Klingon-tech/powmint/internal/safemath"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// Config wires an Issuer to its rules, storage and collaborators.
type Config struct {
	Rules *config.IssuanceRules
	Store *Store

	// Initial admin record, used only when the store holds none.
	Operator      types.Address
	LiquidityPool types.Address
	Governance    types.Address

	Minter   Minter
	Advancer GovernanceAdvancer // nil disables advancement

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Issuer owns the chain state. Submit is its only writer.
type Issuer struct {
	rules    config.IssuanceRules
	store    *Store
	minter   Minter
	advancer GovernanceAdvancer
	clock    func() time.Time

	// guard is held from the pause check until the new state is committed.
	guard guard.Guard

	mu    sync.RWMutex // protects state and admin
	state types.ChainState
	admin Admin

	emitMu sync.Mutex // serializes delivery in height order
	subMu  sync.RWMutex
	subs   []func(RewardEvent)
}

// New creates an issuer, resuming from the store when it holds state.
func New(cfg Config) (*Issuer, error) {
	if cfg.Rules == nil {
		return nil, errors.New("issuance rules required")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("issuance rules: %w", err)
	}
	if cfg.Store == nil {
		return nil, errors.New("issuance store required")
	}
	if cfg.Minter == nil {
		return nil, errors.New("minter required")
	}

	i := &Issuer{
		rules:    *cfg.Rules,
		store:    cfg.Store,
		minter:   cfg.Minter,
		advancer: cfg.Advancer,
		clock:    cfg.Clock,
	}
	if i.clock == nil {
		i.clock = time.Now
	}

	st, ok, err := cfg.Store.LoadState()
	if err != nil {
		return nil, err
	}
	if !ok {
		st = types.GenesisState(i.rules.MaxTarget)
		if err := cfg.Store.SaveState(st); err != nil {
			return nil, fmt.Errorf("save genesis state: %w", err)
		}
	}
	if st.Target.IsZero() || st.Target.Cmp(i.rules.MaxTarget) > 0 {
		return nil, fmt.Errorf("%w: target %s outside (0, max]", ErrCorruptState, st.Target)
	}
	i.state = st

	adm, ok, err := cfg.Store.LoadAdmin()
	if err != nil {
		return nil, err
	}
	if !ok {
		adm = Admin{
			Operator:      cfg.Operator,
			LiquidityPool: cfg.LiquidityPool,
			Governance:    cfg.Governance,
		}
		if err := cfg.Store.SaveAdmin(adm); err != nil {
			return nil, fmt.Errorf("save admin: %w", err)
		}
	}
	i.admin = adm

	log.Issuance.Info().
		Uint64("height", st.Height).
		Str("target", st.Target.String()).
		Bool("paused", adm.Paused).
		Msg("Issuer ready")
	return i, nil
}

// Submit verifies candidate as the proof for the next height and, if it
// meets the target, mints the rewards and commits the new state.
//
// On any error the chain state is unchanged and the guard is released.
// A call made while another submission is in flight, including from inside
// that submission's Minter or GovernanceAdvancer, fails with
// ErrReentrantCall.
func (i *Issuer) Submit(ctx context.Context, candidate types.Nonce, submitter types.Address) (*RewardEvent, error) {
	release, err := i.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	i.mu.RLock()
	prev := i.state
	adm := i.admin
	i.mu.RUnlock()

	if adm.Paused {
		return nil, ErrPaused
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := consensus.NextTarget(prev, &i.rules)
	if err != nil {
		return nil, err
	}
	newHeight, err := safemath.Add(prev.Height, 1)
	if err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}
	now := i.now(prev)

	next := prev
	next.Target = target
	if consensus.IsCheckpointHeight(newHeight, i.rules.RetargetPeriod) {
		next.LastRetargetCheckpoint = now
	}

	puzzle := consensus.Puzzle{
		Height:    newHeight,
		LastNonce: prev.LastNonce,
		Submitter: submitter,
		Target:    target,
	}
	if err := puzzle.CheckProof(candidate); err != nil {
		log.Issuance.Debug().
			Uint64("height", newHeight).
			Str("submitter", submitter.String()).
			Err(err).
			Msg("Proof rejected")
		return nil, err
	}

	governed := i.advancer != nil && adm.GovernanceConfigured()
	minerReward, poolReward, err := reward.Current(prev.Height, &i.rules, governed)
	if err != nil {
		return nil, err
	}
	advance := governed && reward.IsAdvanceBoundary(newHeight, &i.rules)

	tx := beginMint(i.minter)
	if err := mintTo(ctx, tx, submitter, minerReward); err != nil {
		tx.Rollback()
		return nil, i.capabilityFailed(CapMinter, newHeight, err)
	}
	if err := mintTo(ctx, tx, adm.LiquidityPool, poolReward); err != nil {
		tx.Rollback()
		return nil, i.capabilityFailed(CapMinter, newHeight, err)
	}
	var gtx AdvanceTx = directAdvance{}
	if advance {
		if gtx, err = beginAdvance(ctx, i.advancer); err != nil {
			tx.Rollback()
			return nil, i.capabilityFailed(CapGovernance, newHeight, err)
		}
	}

	next.LastAcceptedTime = now
	next.LastNonce = candidate
	next.Height = newHeight

	ev := RewardEvent{
		Height:      newHeight,
		Submitter:   submitter,
		Candidate:   candidate,
		MinerReward: minerReward,
		Pool:        adm.LiquidityPool,
		PoolReward:  poolReward,
		Target:      target,
		Time:        now,
		Advanced:    advance,
	}
	if err := i.store.Commit(next, ev); err != nil {
		gtx.Rollback()
		tx.Rollback()
		return nil, err
	}
	if err := gtx.Commit(); err != nil {
		i.revert(prev, newHeight)
		tx.Rollback()
		return nil, i.capabilityFailed(CapGovernance, newHeight, err)
	}
	if err := tx.Commit(); err != nil {
		i.revert(prev, newHeight)
		gtx.Rollback()
		return nil, i.capabilityFailed(CapMinter, newHeight, err)
	}

	i.mu.Lock()
	i.state = next
	i.mu.Unlock()

	// Take emitMu before the guard opens so the next submission's
	// subscribers run after this one's.
	i.emitMu.Lock()
	defer i.emitMu.Unlock()
	release()

	log.Issuance.Info().
		Uint64("height", newHeight).
		Str("submitter", submitter.String()).
		Uint64("miner_reward", minerReward).
		Uint64("pool_reward", poolReward).
		Str("target", target.String()).
		Bool("advanced", advance).
		Msg("Proof accepted")

	i.emit(ev)
	return &ev, nil
}

func (i *Issuer) revert(prev types.ChainState, height uint64) {
	if err := i.store.Revert(prev, height); err != nil {
		log.Issuance.Error().Err(err).Uint64("height", height).Msg("Failed to revert issuance state")
	}
}

// mintTo credits amount to account. A zero account or amount is a no-op.
func mintTo(ctx context.Context, m Minter, account types.Address, amount uint64) error {
	if account.IsZero() || amount == 0 {
		return nil
	}
	return m.Mint(ctx, account, amount)
}

func (i *Issuer) capabilityFailed(capability string, height uint64, err error) error {
	log.Issuance.Warn().
		Str("capability", capability).
		Uint64("height", height).
		Err(err).
		Msg("Submission aborted")
	return capabilityErr(capability, err)
}

// now returns the clock in unix seconds, never earlier than the last
// accepted submission.
func (i *Issuer) now(st types.ChainState) uint64 {
	t := i.clock().Unix()
	if t < 0 || uint64(t) < st.LastAcceptedTime {
		return st.LastAcceptedTime
	}
	return uint64(t)
}

// Subscribe registers fn to receive every accepted RewardEvent, in height
// order, after the submission has committed. fn runs on the submitting
// goroutine and must not call Submit.
func (i *Issuer) Subscribe(fn func(RewardEvent)) {
	i.subMu.Lock()
	i.subs = append(i.subs, fn)
	i.subMu.Unlock()
}

func (i *Issuer) emit(ev RewardEvent) {
	i.subMu.RLock()
	subs := i.subs
	i.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// State returns the committed chain state.
func (i *Issuer) State() types.ChainState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Rules returns a copy of the issuance rules.
func (i *Issuer) Rules() config.IssuanceRules {
	return i.rules
}

// NextTarget returns the target the next submission must meet.
func (i *Issuer) NextTarget() (types.Target, error) {
	return consensus.NextTarget(i.State(), &i.rules)
}

// CurrentReward returns the miner and pool rewards the next accepted
// submission would mint.
func (i *Issuer) CurrentReward() (miner, pool uint64, err error) {
	i.mu.RLock()
	st := i.state
	governed := i.advancer != nil && i.admin.GovernanceConfigured()
	i.mu.RUnlock()
	return reward.Current(st.Height, &i.rules, governed)
}

// Work returns the puzzle for the next submission.
func (i *Issuer) Work() (Work, error) {
	st := i.State()
	target, err := consensus.NextTarget(st, &i.rules)
	if err != nil {
		return Work{}, err
	}
	height, err := safemath.Add(st.Height, 1)
	if err != nil {
		return Work{}, fmt.Errorf("height: %w", err)
	}
	return Work{Height: height, LastNonce: st.LastNonce, Target: target}, nil
}

// Events returns up to limit reward events starting at height from.
func (i *Issuer) Events(from uint64, limit int) ([]RewardEvent, error) {
	return i.store.Events(from, limit)
}

// Busy reports whether a submission is in flight.
func (i *Issuer) Busy() bool {
	return i.guard.Held()
}
