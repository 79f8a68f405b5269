// Package safemath implements checked integer arithmetic.
//
// Every operation returns ErrArithmetic instead of wrapping around or
// dividing by zero. Amounts are uint64 base units; targets are 256-bit
// unsigned integers backed by holiman/uint256.
package safemath

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

// ErrArithmetic is returned on overflow, underflow or division by zero.
var ErrArithmetic = errors.New("arithmetic fault")

// Add returns a + b.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d overflows", ErrArithmetic, a, b)
	}
	return sum, nil
}

// Sub returns a - b.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d underflows", ErrArithmetic, a, b)
	}
	return diff, nil
}

// Mul returns a * b.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d overflows", ErrArithmetic, a, b)
	}
	return lo, nil
}

// Div returns a / b, floored.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d / 0", ErrArithmetic, a)
	}
	return a / b, nil
}

// Mod returns a % b.
func Mod(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d %% 0", ErrArithmetic, a)
	}
	return a % b, nil
}

// MulDiv returns a * b / c, failing if the intermediate product overflows.
func MulDiv(a, b, c uint64) (uint64, error) {
	p, err := Mul(a, b)
	if err != nil {
		return 0, err
	}
	return Div(p, c)
}

// Add256 returns a + b as a new value.
func Add256(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: 256-bit addition overflows", ErrArithmetic)
	}
	return z, nil
}

// Sub256 returns a - b as a new value.
func Sub256(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("%w: 256-bit subtraction underflows", ErrArithmetic)
	}
	return z, nil
}

// Mul256 returns a * b as a new value.
func Mul256(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: 256-bit multiplication overflows", ErrArithmetic)
	}
	return z, nil
}

// Div256 returns a / b as a new value, floored.
func Div256(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, fmt.Errorf("%w: 256-bit division by zero", ErrArithmetic)
	}
	return new(uint256.Int).Div(a, b), nil
}
