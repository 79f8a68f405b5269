package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/storage"
)

var _ issuance.TxAdvancer = (*Governor)(nil)

func TestGovernor_Advance(t *testing.T) {
	db := storage.NewMemory()
	now := time.Unix(1_800_000_000, 0)
	g, err := New(db, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Epoch() != 0 {
		t.Fatalf("initial epoch = %d, want 0", g.Epoch())
	}
	for want := uint64(1); want <= 3; want++ {
		if err := g.Advance(context.Background()); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if g.Epoch() != want {
			t.Errorf("Epoch() = %d, want %d", g.Epoch(), want)
		}
	}
	if rec := g.Record(); rec.AdvancedAt != uint64(now.Unix()) {
		t.Errorf("AdvancedAt = %d, want %d", rec.AdvancedAt, now.Unix())
	}

	reloaded, err := New(db)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if reloaded.Epoch() != 3 {
		t.Errorf("reloaded epoch = %d, want 3", reloaded.Epoch())
	}
}

func TestGovernor_StepFailureKeepsEpoch(t *testing.T) {
	boom := errors.New("quorum not reached")
	var seen []uint64
	fail := true
	g, err := New(storage.NewMemory(), WithStep(func(_ context.Context, epoch uint64) error {
		seen = append(seen, epoch)
		if fail {
			return boom
		}
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	if err := g.Advance(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Advance = %v, want step error", err)
	}
	if g.Epoch() != 0 {
		t.Errorf("epoch after failed step = %d, want 0", g.Epoch())
	}

	fail = false
	if err := g.Advance(context.Background()); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if g.Epoch() != 1 || len(seen) != 2 || seen[0] != 1 || seen[1] != 1 {
		t.Errorf("epoch = %d, step calls = %v", g.Epoch(), seen)
	}
}

func TestGovernor_BeginAdvanceStages(t *testing.T) {
	db := storage.NewMemory()
	g, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tx, err := g.BeginAdvance(ctx)
	if err != nil {
		t.Fatalf("BeginAdvance: %v", err)
	}
	if g.Epoch() != 0 {
		t.Fatalf("epoch before Commit = %d, want 0", g.Epoch())
	}
	if _, err := db.Get(keyEpoch); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("staged advance persisted early: %v", err)
	}
	tx.Rollback()
	if err := tx.Commit(); !errors.Is(err, ErrTxDone) {
		t.Errorf("Commit after Rollback = %v, want ErrTxDone", err)
	}
	if g.Epoch() != 0 {
		t.Errorf("epoch after Rollback = %d, want 0", g.Epoch())
	}

	tx, _ = g.BeginAdvance(ctx)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if g.Epoch() != 1 {
		t.Errorf("epoch after Commit = %d, want 1", g.Epoch())
	}
}

func TestGovernor_RollbackAfterCommitRestores(t *testing.T) {
	db := storage.NewMemory()
	g, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := g.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	before := g.Record()

	tx, _ := g.BeginAdvance(ctx)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	tx.Rollback()
	if g.Record() != before {
		t.Errorf("record after Rollback = %+v, want %+v", g.Record(), before)
	}
	reloaded, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Epoch() != 1 {
		t.Errorf("persisted epoch = %d, want 1", reloaded.Epoch())
	}
}

func TestGovernor_StagedAdvanceConflict(t *testing.T) {
	g, err := New(storage.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	stale, _ := g.BeginAdvance(ctx)
	if err := g.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	if err := stale.Commit(); !errors.Is(err, ErrConflict) {
		t.Errorf("stale Commit = %v, want ErrConflict", err)
	}
	if g.Epoch() != 1 {
		t.Errorf("epoch = %d, want 1", g.Epoch())
	}
}

func TestGovernor_CorruptRecord(t *testing.T) {
	db := storage.NewMemory()
	_ = db.Put(keyEpoch, []byte("garbage"))
	if _, err := New(db); err == nil {
		t.Error("New with corrupt record should fail")
	}
}
