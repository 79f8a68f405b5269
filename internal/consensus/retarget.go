package consensus

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/safemath"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// IsRetargetHeight reports whether a submission made at height (the
// pre-increment height) recomputes the target. The bootstrap submission at
// height 0 never does.
func IsRetargetHeight(height, period uint64) bool {
	if height == 0 || period == 0 {
		return false
	}
	return (height+1)%period == 1
}

// IsCheckpointHeight reports whether accepting newHeight opens a new retarget
// window, i.e. the acceptance time becomes the window's checkpoint.
func IsCheckpointHeight(newHeight, period uint64) bool {
	return period != 0 && newHeight%period == 1
}

// ClampSpan limits an observed window duration to [expected/4, expected*4].
func ClampSpan(span, expected uint64) uint64 {
	lo := expected / 4
	hi := expected * 4
	if span < lo {
		return lo
	}
	if span > hi {
		return hi
	}
	return span
}

// NextTarget returns the target that applies to the next submission from st.
// Outside a retarget height it is st.Target. At a retarget height it is
// st.Target scaled by observed/expected window duration, with the observed
// duration clamped first and the result clamped to [1, MaxTarget].
//
// An error wraps safemath.ErrArithmetic and means the rules or state are
// inconsistent; it cannot happen for validated rules and a monotonic clock.
func NextTarget(st types.ChainState, r *config.IssuanceRules) (types.Target, error) {
	if !IsRetargetHeight(st.Height, r.RetargetPeriod) {
		return st.Target, nil
	}

	span, err := safemath.Sub(st.LastAcceptedTime, st.LastRetargetCheckpoint)
	if err != nil {
		return types.Target{}, fmt.Errorf("retarget span: %w", err)
	}
	expected, err := safemath.Mul(r.RetargetPeriod, r.TargetSpacing)
	if err != nil {
		return types.Target{}, fmt.Errorf("expected span: %w", err)
	}
	span = ClampSpan(span, expected)

	scaled, err := safemath.Mul256(st.Target.Int(), uint256.NewInt(span))
	if err != nil {
		return types.Target{}, fmt.Errorf("retarget multiply: %w", err)
	}
	next, err := safemath.Div256(scaled, uint256.NewInt(expected))
	if err != nil {
		return types.Target{}, fmt.Errorf("retarget divide: %w", err)
	}

	if max := r.MaxTarget.Int(); next.Gt(max) {
		next = max
	}
	// A zero target would admit no proof at all.
	if next.IsZero() {
		next.SetOne()
	}
	return types.TargetFromInt(next), nil
}
