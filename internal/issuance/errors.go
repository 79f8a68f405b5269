package issuance

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/powmint/internal/consensus"
	"github.com/Klingon-tech/powmint/internal/guard"
	"github.com/Klingon-tech/powmint/internal/safemath"
)

// Submission and admin errors. Every failed call returns exactly one of these
// kinds (possibly wrapped), so callers can branch with errors.Is.
var (
	ErrReentrantCall = guard.ErrReentrantCall
	ErrProofRejected = consensus.ErrProofRejected
	ErrArithmetic    = safemath.ErrArithmetic

	ErrPaused       = errors.New("issuance paused")
	ErrUnauthorized = errors.New("caller is not the operator")
	ErrCapability   = errors.New("capability call failed")
	ErrCorruptState = errors.New("corrupt issuance state")
)

// Capabilities named in a CapabilityError.
const (
	CapMinter     = "minter"
	CapGovernance = "governance"
)

// CapabilityError reports a failed collaborator call. It matches
// ErrCapability under errors.Is and unwraps to the collaborator's error.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCapability) match any CapabilityError.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapability
}

func capabilityErr(capability string, err error) error {
	return &CapabilityError{Capability: capability, Err: err}
}
