// Package consensus implements the proof-of-work rules of the issuer: the
// proof digest, the admission test against the target, the retarget
// controller and a candidate search.
package consensus

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// PoW errors.
var (
	ErrProofRejected  = errors.New("proof digest exceeds target")
	ErrZeroTarget     = errors.New("target must be > 0")
	ErrNonceExhausted = errors.New("nonce space exhausted")
)

// prefixLen is the length of the digest input before the candidate:
// height (8) + last nonce (32) + submitter (20).
const prefixLen = 8 + types.HashSize + types.AddressSize

// counterOffset is where the search counter lives inside a candidate. The
// leading bytes carry a random salt so independent miners do not repeat
// each other's work.
const counterOffset = types.HashSize - 8

// Puzzle is everything a proof depends on besides the candidate.
type Puzzle struct {
	Height    uint64        // Post-increment height the proof is for
	LastNonce types.Nonce   // Most recently accepted candidate
	Submitter types.Address // Identity credited with the miner reward
	Target    types.Target  // Inclusive upper bound for the digest
}

// proofPrefix returns the digest input WITHOUT the trailing candidate.
// Searchers compute it once and only append+hash the candidate per try.
func proofPrefix(height uint64, lastNonce types.Nonce, submitter types.Address) []byte {
	buf := make([]byte, 0, prefixLen+types.HashSize)
	buf = binary.BigEndian.AppendUint64(buf, height)
	buf = append(buf, lastNonce[:]...)
	buf = append(buf, submitter[:]...)
	return buf
}

// Digest computes BLAKE3(height ‖ lastNonce ‖ submitter ‖ candidate), with
// the height as 8 big-endian bytes.
func Digest(height uint64, lastNonce types.Nonce, submitter types.Address, candidate types.Nonce) types.Hash {
	buf := proofPrefix(height, lastNonce, submitter)
	buf = append(buf, candidate[:]...)
	return crypto.Hash(buf)
}

// MeetsTarget reports whether digest, read as a big-endian unsigned
// integer, does not exceed target.
func MeetsTarget(digest types.Hash, target types.Target) bool {
	return types.Target(digest).Cmp(target) <= 0
}

// CheckProof verifies candidate against the puzzle.
func (p Puzzle) CheckProof(candidate types.Nonce) error {
	if p.Target.IsZero() {
		return ErrZeroTarget
	}
	d := Digest(p.Height, p.LastNonce, p.Submitter, candidate)
	if !MeetsTarget(d, p.Target) {
		return fmt.Errorf("%w: digest %s at height %d", ErrProofRejected, d, p.Height)
	}
	return nil
}

// Solve searches for a candidate satisfying the puzzle. With threads > 1 the
// search runs in parallel goroutines over strided partitions of the counter
// space. It returns ctx.Err() when the context is cancelled first.
func (p Puzzle) Solve(ctx context.Context, threads int) (types.Nonce, error) {
	if p.Target.IsZero() {
		return types.Nonce{}, ErrZeroTarget
	}
	var salt types.Nonce
	if _, err := rand.Read(salt[:counterOffset]); err != nil {
		return types.Nonce{}, fmt.Errorf("candidate salt: %w", err)
	}
	if threads <= 1 {
		return p.solveSingle(ctx, salt)
	}
	return p.solveParallel(ctx, salt, threads)
}

// solveSingle searches with a single goroutine.
func (p Puzzle) solveSingle(ctx context.Context, salt types.Nonce) (types.Nonce, error) {
	buf := append(proofPrefix(p.Height, p.LastNonce, p.Submitter), salt[:]...)
	ctr := buf[prefixLen+counterOffset:]

	for n := uint64(0); ; n++ {
		// Check cancellation every 65536 iterations.
		if n&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return types.Nonce{}, ctx.Err()
			default:
			}
		}

		binary.BigEndian.PutUint64(ctr, n)
		if MeetsTarget(crypto.Hash(buf), p.Target) {
			var c types.Nonce
			copy(c[:], buf[prefixLen:])
			return c, nil
		}
		if n == ^uint64(0) {
			return types.Nonce{}, ErrNonceExhausted
		}
	}
}

// solveParallel searches with multiple goroutines; goroutine i starts at
// counter i and steps by threads.
func (p Puzzle) solveParallel(parent context.Context, salt types.Nonce, threads int) (types.Nonce, error) {
	prefix := append(proofPrefix(p.Height, p.LastNonce, p.Submitter), salt[:]...)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	type result struct {
		candidate types.Nonce
		err       error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		start := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			buf := make([]byte, len(prefix))
			copy(buf, prefix)
			ctr := buf[prefixLen+counterOffset:]

			for n := start; ; n += stride {
				// Check cancellation every ~65536 iterations per goroutine.
				if (n/stride)&0xFFFF == 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.BigEndian.PutUint64(ctr, n)
				if MeetsTarget(crypto.Hash(buf), p.Target) {
					var c types.Nonce
					copy(c[:], buf[prefixLen:])
					select {
					case found <- result{candidate: c}:
					default:
					}
					cancel()
					return
				}

				// Overflow: would wrap around past max uint64.
				if n > ^uint64(0)-stride {
					select {
					case found <- result{err: ErrNonceExhausted}:
					default:
					}
					return
				}
			}
		}()
	}

	// Wait in background so goroutines are cleaned up.
	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			// Workers only exit without a result when cancelled.
			return types.Nonce{}, parent.Err()
		}
		return r.candidate, r.err
	case <-parent.Done():
		return types.Nonce{}, parent.Err()
	}
}
