// Package miner searches for proofs and submits them to the issuer.
package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/powmint/internal/consensus"
	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// ErrStaleWork is returned when the work changed while it was being solved.
var ErrStaleWork = errors.New("work went stale")

// Issuer is the part of the issuer the miner needs.
type Issuer interface {
	Work() (issuance.Work, error)
	Submit(ctx context.Context, candidate types.Nonce, submitter types.Address) (*issuance.RewardEvent, error)
}

// Solve searches for a candidate that meets w for submitter.
func Solve(ctx context.Context, w issuance.Work, submitter types.Address, threads int) (types.Nonce, error) {
	p := consensus.Puzzle{
		Height:    w.Height,
		LastNonce: w.LastNonce,
		Submitter: submitter,
		Target:    w.Target,
	}
	return p.Solve(ctx, threads)
}

// Miner repeatedly solves the current work and submits the result.
type Miner struct {
	iss      Issuer
	coinbase types.Address
	threads  int

	// StaleCheck is how often the miner polls for new work while solving.
	StaleCheck time.Duration
	// Backoff is the pause after a failed attempt.
	Backoff time.Duration
	// BusyDelay is the pause after the issuer was busy with another
	// submission.
	BusyDelay time.Duration
	// OnMined, if set, is called for every accepted submission.
	OnMined func(*issuance.RewardEvent)
}

// New creates a miner paying rewards to coinbase.
func New(iss Issuer, coinbase types.Address, threads int) *Miner {
	if threads < 1 {
		threads = 1
	}
	return &Miner{
		iss:        iss,
		coinbase:   coinbase,
		threads:    threads,
		StaleCheck: time.Second,
		Backoff:    5 * time.Second,
		BusyDelay:  250 * time.Millisecond,
	}
}

// MineOne solves the current work and submits it. It returns ErrStaleWork
// when another submission was accepted first.
func (m *Miner) MineOne(ctx context.Context) (*issuance.RewardEvent, error) {
	w, err := m.iss.Work()
	if err != nil {
		return nil, fmt.Errorf("get work: %w", err)
	}

	solveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stale := make(chan struct{})
	go m.watchWork(solveCtx, w.Height, stale, cancel)

	candidate, err := Solve(solveCtx, w, m.coinbase, m.threads)
	if err != nil {
		select {
		case <-stale:
			return nil, ErrStaleWork
		default:
		}
		return nil, err
	}

	ev, err := m.iss.Submit(ctx, candidate, m.coinbase)
	if errors.Is(err, issuance.ErrProofRejected) {
		// Someone else advanced the height between solving and submitting.
		if cur, werr := m.iss.Work(); werr == nil && cur.Height != w.Height {
			return nil, ErrStaleWork
		}
	}
	return ev, err
}

// watchWork cancels the solve when the work height moves past height.
func (m *Miner) watchWork(ctx context.Context, height uint64, stale chan<- struct{}, cancel context.CancelFunc) {
	ticker := time.NewTicker(m.StaleCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w, err := m.iss.Work()
			if err == nil && w.Height != height {
				close(stale)
				cancel()
				return
			}
		}
	}
}

// Run mines until ctx is cancelled.
func (m *Miner) Run(ctx context.Context) {
	log.Miner.Info().
		Str("coinbase", m.coinbase.String()).
		Int("threads", m.threads).
		Msg("Miner started")

	for {
		if ctx.Err() != nil {
			log.Miner.Info().Msg("Miner stopped")
			return
		}

		ev, err := m.MineOne(ctx)
		switch {
		case err == nil:
			log.Miner.Info().
				Uint64("height", ev.Height).
				Uint64("reward", ev.MinerReward).
				Msg("Proof mined")
			if m.OnMined != nil {
				m.OnMined(ev)
			}
		case errors.Is(err, ErrStaleWork):
			log.Miner.Debug().Err(err).Msg("Retrying with fresh work")
		case errors.Is(err, issuance.ErrReentrantCall):
			log.Miner.Debug().Dur("delay", m.BusyDelay).Msg("Issuer busy, retrying")
			m.sleep(ctx, m.BusyDelay)
		case ctx.Err() != nil:
			// Shutting down.
		default:
			if errors.Is(err, issuance.ErrPaused) {
				log.Miner.Debug().Msg("Issuance paused, waiting")
			} else {
				log.Miner.Warn().Err(err).Msg("Mining attempt failed")
			}
			m.sleep(ctx, m.Backoff)
		}
	}
}

func (m *Miner) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
