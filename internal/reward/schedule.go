// Package reward computes the per-submission issuance: a staged tier split of
// the base reward, a lump governance bonus at advancement boundaries and
// periodic halving.
package reward

import (
	"fmt"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/safemath"
)

// BonusStage is the only stage that pays the governance bonus.
const BonusStage = config.TierCount - 1

// Stage returns the reward stage for a pre-increment height, clamped to the
// last tier.
func Stage(height uint64, r *config.IssuanceRules) (uint64, error) {
	stage, err := safemath.Div(height, r.StageSpan)
	if err != nil {
		return 0, fmt.Errorf("stage: %w", err)
	}
	if stage > BonusStage {
		stage = BonusStage
	}
	return stage, nil
}

// IsAdvanceBoundary reports whether newHeight is a governance advancement
// boundary: at or past the activation height and a whole number of advance
// periods after it.
func IsAdvanceBoundary(newHeight uint64, r *config.IssuanceRules) bool {
	if r.AdvancePeriod == 0 || newHeight < r.GovernanceActiveHeight {
		return false
	}
	return (newHeight-r.GovernanceActiveHeight)%r.AdvancePeriod == 0
}

// Current returns the miner and pool rewards for the submission made at the
// pre-increment height. governance reports whether a governance address is
// configured; without one no bonus is paid.
//
// Both rewards are halved once per elapsed halving period of the
// post-increment height, one floor division at a time.
func Current(height uint64, r *config.IssuanceRules, governance bool) (miner, pool uint64, err error) {
	newHeight, err := safemath.Add(height, 1)
	if err != nil {
		return 0, 0, fmt.Errorf("reward height: %w", err)
	}
	stage, err := Stage(height, r)
	if err != nil {
		return 0, 0, err
	}
	tier := r.TierAt(stage)

	if miner, err = safemath.MulDiv(r.BaseReward, tier.MinerPercent, 100); err != nil {
		return 0, 0, fmt.Errorf("miner reward: %w", err)
	}
	if stage == BonusStage && governance && IsAdvanceBoundary(newHeight, r) {
		bonus, err := safemath.MulDiv(r.BaseReward, tier.BonusPercent, 100)
		if err != nil {
			return 0, 0, fmt.Errorf("bonus reward: %w", err)
		}
		// The bonus for a whole advance period is paid at the boundary.
		lump, err := safemath.Mul(bonus, r.AdvancePeriod)
		if err != nil {
			return 0, 0, fmt.Errorf("bonus lump: %w", err)
		}
		if miner, err = safemath.Add(miner, lump); err != nil {
			return 0, 0, fmt.Errorf("miner reward with bonus: %w", err)
		}
	}
	if pool, err = safemath.MulDiv(r.BaseReward, tier.PoolPercent, 100); err != nil {
		return 0, 0, fmt.Errorf("pool reward: %w", err)
	}

	periods, err := safemath.Div(newHeight, r.HalvingPeriod)
	if err != nil {
		return 0, 0, fmt.Errorf("halving periods: %w", err)
	}
	return Halve(miner, periods), Halve(pool, periods), nil
}

// Halve floor-divides v by two, periods times.
func Halve(v, periods uint64) uint64 {
	for i := uint64(0); i < periods && v != 0; i++ {
		v /= 2
	}
	return v
}
