package issuance

import (
	"errors"
	"fmt"
	"testing"
)

func TestCapabilityError(t *testing.T) {
	inner := errors.New("boom")
	err := fmt.Errorf("submit: %w", capabilityErr(CapMinter, inner))

	if !errors.Is(err, ErrCapability) {
		t.Error("errors.Is(err, ErrCapability) = false")
	}
	if !errors.Is(err, inner) {
		t.Error("CapabilityError should unwrap to the collaborator error")
	}
	if errors.Is(err, ErrPaused) {
		t.Error("CapabilityError must not match unrelated kinds")
	}
	var ce *CapabilityError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As(err, *CapabilityError) = false")
	}
	if ce.Capability != CapMinter {
		t.Errorf("Capability = %q, want %q", ce.Capability, CapMinter)
	}
	if got := ce.Error(); got != "minter capability failed: boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorKindsDistinct(t *testing.T) {
	kinds := []error{ErrReentrantCall, ErrProofRejected, ErrArithmetic, ErrPaused, ErrUnauthorized, ErrCapability}
	for i, a := range kinds {
		for j, b := range kinds {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}
