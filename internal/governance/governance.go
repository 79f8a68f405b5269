// Package governance implements the step counter the issuer advances at
// governance boundaries.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/internal/safemath"
	"github.com/Klingon-tech/powmint/internal/storage"
)

var keyEpoch = []byte("g/epoch")

// ErrTxDone is returned when a staged advance is used after Commit or
// Rollback.
var ErrTxDone = errors.New("governance tx already finished")

// StepFn runs the governance step that moves to epoch. A non-nil error
// aborts the advance and leaves the epoch unchanged.
type StepFn func(ctx context.Context, epoch uint64) error

// Record is the persisted governance progress.
type Record struct {
	Epoch      uint64 `json:"epoch"`
	AdvancedAt uint64 `json:"advanced_at,omitempty"` // unix seconds of the last advance
}

// Governor counts governance epochs.
type Governor struct {
	mu    sync.Mutex
	db    storage.DB
	rec   Record
	step  StepFn
	clock func() time.Time
}

// Option configures a Governor.
type Option func(*Governor)

// WithStep installs a hook run on every advance.
func WithStep(fn StepFn) Option {
	return func(g *Governor) { g.step = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.clock = now }
}

// New loads the governor state from db.
func New(db storage.DB, opts ...Option) (*Governor, error) {
	g := &Governor{db: db, clock: time.Now}
	for _, o := range opts {
		o(g)
	}

	data, err := db.Get(keyEpoch)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("governance get: %w", err)
	default:
		if err := json.Unmarshal(data, &g.rec); err != nil {
			return nil, fmt.Errorf("governance unmarshal: %w", err)
		}
	}
	return g, nil
}

// ErrConflict is returned when another advance committed while a staged one
// was pending.
var ErrConflict = errors.New("governance epoch changed")

// Advance moves to the next epoch.
func (g *Governor) Advance(ctx context.Context) error {
	tx, err := g.BeginAdvance(ctx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// BeginAdvance runs the step hook for the next epoch and stages the new
// record. Nothing is persisted until Commit.
func (g *Governor) BeginAdvance(ctx context.Context) (issuance.AdvanceTx, error) {
	g.mu.Lock()
	base := g.rec
	g.mu.Unlock()

	next, err := safemath.Add(base.Epoch, 1)
	if err != nil {
		return nil, fmt.Errorf("epoch: %w", err)
	}
	if g.step != nil {
		if err := g.step(ctx, next); err != nil {
			return nil, fmt.Errorf("governance step %d: %w", next, err)
		}
	}
	return &advanceTx{
		g:    g,
		base: base,
		rec:  Record{Epoch: next, AdvancedAt: uint64(g.clock().Unix())},
	}, nil
}

func (g *Governor) write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("governance marshal: %w", err)
	}
	if err := g.db.Put(keyEpoch, data); err != nil {
		return fmt.Errorf("governance put: %w", err)
	}
	g.rec = rec
	return nil
}

// advanceTx is one staged epoch change.
type advanceTx struct {
	g         *Governor
	base, rec Record
	committed bool
	done      bool
}

// Commit persists the staged epoch. It fails with ErrConflict if the epoch
// moved since BeginAdvance.
func (tx *advanceTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true

	g := tx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rec != tx.base {
		return fmt.Errorf("%w: at %d, staged from %d", ErrConflict, g.rec.Epoch, tx.base.Epoch)
	}
	if err := g.write(tx.rec); err != nil {
		return err
	}
	tx.committed = true

	log.Governance.Info().Uint64("epoch", tx.rec.Epoch).Msg("Governance advanced")
	return nil
}

// Rollback discards a staged advance. After Commit it restores the previous
// record, as long as nothing advanced since.
func (tx *advanceTx) Rollback() {
	tx.done = true
	if !tx.committed {
		return
	}
	tx.committed = false

	g := tx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rec != tx.rec {
		return
	}
	if err := g.write(tx.base); err != nil {
		log.Governance.Error().Err(err).Uint64("epoch", tx.base.Epoch).Msg("Failed to restore governance epoch")
		return
	}
	log.Governance.Warn().Uint64("epoch", tx.base.Epoch).Msg("Governance advance reverted")
}

// Epoch returns the current epoch.
func (g *Governor) Epoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec.Epoch
}

// Record returns the persisted progress.
func (g *Governor) Record() Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec
}
