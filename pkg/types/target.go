package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// TargetSize is the width of a proof target in bytes.
const TargetSize = 32

// Target is a 256-bit unsigned proof threshold in big-endian byte order.
// A digest is accepted when, read as a big-endian integer, it does not
// exceed the target.
type Target [TargetSize]byte

// TargetFromInt converts a 256-bit integer to a Target.
func TargetFromInt(v *uint256.Int) Target {
	return Target(v.Bytes32())
}

// Int returns the target as a freshly allocated 256-bit integer.
func (t Target) Int() *uint256.Int {
	return new(uint256.Int).SetBytes32(t[:])
}

// IsZero returns true if the target is zero. A zero target admits no proof.
func (t Target) IsZero() bool {
	return t == Target{}
}

// Cmp compares two targets as unsigned integers.
func (t Target) Cmp(o Target) int {
	for i := 0; i < TargetSize; i++ {
		switch {
		case t[i] < o[i]:
			return -1
		case t[i] > o[i]:
			return 1
		}
	}
	return 0
}

// String returns the 0x-prefixed, zero-padded hex target.
func (t Target) String() string {
	return "0x" + hex.EncodeToString(t[:])
}

// MarshalJSON encodes the target as a 0x-prefixed hex string.
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a hex target. Shorter inputs are left-padded.
func (t *Target) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTarget(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTarget parses a hex target of up to 64 digits, with or without 0x.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return Target{}, fmt.Errorf("empty target")
	}
	if len(s) > 2*TargetSize {
		return Target{}, fmt.Errorf("target exceeds %d bits", 8*TargetSize)
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target: %w", err)
	}
	var t Target
	copy(t[TargetSize-len(b):], b)
	return t, nil
}
