package reward

import (
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/safemath"
)

// testRules uses small periods so every boundary is cheap to reach.
func testRules() *config.IssuanceRules {
	return &config.IssuanceRules{
		RetargetPeriod: 3,
		TargetSpacing:  10,
		BaseReward:     1_000_003, // odd, so halving rounding is visible
		HalvingPeriod:  50,
		StageSpan:      20,
		Tiers: [config.TierCount]config.Tier{
			{MinerPercent: 100},
			{MinerPercent: 80, PoolPercent: 20},
			{MinerPercent: 60, PoolPercent: 30, BonusPercent: 10},
		},
		AdvancePeriod:          5,
		GovernanceActiveHeight: 45,
	}
}

func TestHalve_Iterative(t *testing.T) {
	tests := []struct {
		v, periods, want uint64
	}{
		{7, 0, 7},
		{7, 1, 3},
		{7, 2, 1},
		{7, 3, 0},
		{7, 1000, 0},
		{math.MaxUint64, 63, 1},
		{math.MaxUint64, 64, 0},
		{math.MaxUint64, math.MaxUint64, 0},
	}
	for _, tt := range tests {
		if got := Halve(tt.v, tt.periods); got != tt.want {
			t.Errorf("Halve(%d, %d) = %d, want %d", tt.v, tt.periods, got, tt.want)
		}
	}
}

func TestStage_Clamps(t *testing.T) {
	r := testRules()
	tests := []struct {
		height, want uint64
	}{
		{0, 0}, {19, 0}, {20, 1}, {39, 1}, {40, 2}, {41, 2}, {1_000_000, 2}, {math.MaxUint64, 2},
	}
	for _, tt := range tests {
		got, err := Stage(tt.height, r)
		if err != nil {
			t.Fatalf("Stage(%d): %v", tt.height, err)
		}
		if got != tt.want {
			t.Errorf("Stage(%d) = %d, want %d", tt.height, got, tt.want)
		}
	}
}

func TestStage_ZeroSpan(t *testing.T) {
	r := testRules()
	r.StageSpan = 0
	if _, err := Stage(1, r); !errors.Is(err, safemath.ErrArithmetic) {
		t.Errorf("Stage with zero span = %v, want ErrArithmetic", err)
	}
}

func TestIsAdvanceBoundary(t *testing.T) {
	r := testRules()
	for h := uint64(0); h < 80; h++ {
		want := h >= 45 && (h-45)%5 == 0
		if got := IsAdvanceBoundary(h, r); got != want {
			t.Errorf("IsAdvanceBoundary(%d) = %v, want %v", h, got, want)
		}
	}
}

func TestCurrent_HalvingSchedule(t *testing.T) {
	r := testRules()
	// Disable stages so only halving varies.
	r.StageSpan = 1 << 40
	base := r.BaseReward

	tests := []struct {
		name   string
		height uint64
		halves uint64
	}{
		{"height 0", 0, 0},
		{"one before first halving", r.HalvingPeriod - 2, 0},
		{"H-1 crosses into first halving", r.HalvingPeriod - 1, 1},
		{"H", r.HalvingPeriod, 1},
		{"2H", 2 * r.HalvingPeriod, 2},
		{"2H-1", 2*r.HalvingPeriod - 1, 2},
		{"far future", 100 * r.HalvingPeriod, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if want := (tt.height + 1) / r.HalvingPeriod; want != tt.halves {
				t.Fatalf("bad table: height %d has %d halvings, not %d", tt.height, want, tt.halves)
			}
			miner, pool, err := Current(tt.height, r, false)
			if err != nil {
				t.Fatalf("Current: %v", err)
			}
			want := base
			for i := uint64(0); i < tt.halves; i++ {
				want /= 2
			}
			if miner != want {
				t.Errorf("miner = %d, want %d", miner, want)
			}
			if pool != 0 {
				t.Errorf("pool = %d, want 0 in stage 0", pool)
			}
		})
	}
}

func TestCurrent_HalvesIndependently(t *testing.T) {
	r := testRules()
	r.HalvingPeriod = 41
	// Height 40: stage 2, newHeight 41 -> one halving.
	miner, pool, err := Current(40, r, false)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	wantMiner := r.BaseReward * 60 / 100 / 2
	wantPool := r.BaseReward * 30 / 100 / 2
	if miner != wantMiner || pool != wantPool {
		t.Errorf("Current(40) = (%d, %d), want (%d, %d)", miner, pool, wantMiner, wantPool)
	}
}

func TestCurrent_Tiers(t *testing.T) {
	r := testRules()
	r.HalvingPeriod = math.MaxUint64
	base := r.BaseReward
	tests := []struct {
		height     uint64
		miner, pool uint64
	}{
		{0, base, 0},
		{19, base, 0},
		{20, base * 80 / 100, base * 20 / 100},
		{40, base * 60 / 100, base * 30 / 100},
		{5_000_000, base * 60 / 100, base * 30 / 100},
	}
	for _, tt := range tests {
		miner, pool, err := Current(tt.height, r, false)
		if err != nil {
			t.Fatalf("Current(%d): %v", tt.height, err)
		}
		if miner != tt.miner || pool != tt.pool {
			t.Errorf("Current(%d) = (%d, %d), want (%d, %d)", tt.height, miner, pool, tt.miner, tt.pool)
		}
	}
}

func TestCurrent_GovernanceBonus(t *testing.T) {
	r := testRules()
	r.HalvingPeriod = math.MaxUint64
	base := r.BaseReward
	plain := base * 60 / 100
	lump := base * 10 / 100 * r.AdvancePeriod

	tests := []struct {
		name       string
		height     uint64
		governance bool
		want       uint64
	}{
		{"boundary with governance", 44, true, plain + lump},      // newHeight 45
		{"next boundary", 49, true, plain + lump},                 // newHeight 50
		{"between boundaries", 45, true, plain},                   // newHeight 46
		{"boundary without governance", 44, false, plain},
		{"before activation", 39, true, base * 80 / 100},           // stage 1, newHeight 40
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			miner, _, err := Current(tt.height, r, tt.governance)
			if err != nil {
				t.Fatalf("Current: %v", err)
			}
			if miner != tt.want {
				t.Errorf("miner = %d, want %d", miner, tt.want)
			}
		})
	}
}

func TestCurrent_BonusOnlyInLastStage(t *testing.T) {
	r := testRules()
	r.HalvingPeriod = math.MaxUint64
	// Activate governance early so a boundary falls in stage 1.
	r.GovernanceActiveHeight = 25
	miner, _, err := Current(24, r, true) // stage 1, newHeight 25 is a boundary
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if want := r.BaseReward * 80 / 100; miner != want {
		t.Errorf("stage-1 boundary miner = %d, want %d (no bonus)", miner, want)
	}
}

func TestCurrent_Overflow(t *testing.T) {
	r := testRules()
	if _, _, err := Current(math.MaxUint64, r, false); !errors.Is(err, safemath.ErrArithmetic) {
		t.Errorf("Current(MaxUint64) = %v, want ErrArithmetic", err)
	}

	r.BaseReward = math.MaxUint64 / 2
	if _, _, err := Current(0, r, false); !errors.Is(err, safemath.ErrArithmetic) {
		t.Errorf("Current with oversized base = %v, want ErrArithmetic", err)
	}
}
