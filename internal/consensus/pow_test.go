package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// easyTarget returns 2^bits, so a random digest passes with chance 2^(bits-256).
func easyTarget(bits uint) types.Target {
	return types.TargetFromInt(new(uint256.Int).Lsh(uint256.NewInt(1), bits))
}

func testPuzzle(target types.Target) Puzzle {
	return Puzzle{
		Height:    5,
		LastNonce: types.Nonce{0xAA, 0xBB},
		Submitter: types.Address{0x01, 0x02, 0x03},
		Target:    target,
	}
}

func TestDigest_Layout(t *testing.T) {
	lastNonce := types.Nonce{0x11}
	submitter := types.Address{0x22}
	candidate := types.Nonce{0x33}

	var h [8]byte
	binary.BigEndian.PutUint64(h[:], 42)
	want := crypto.HashParts(h[:], lastNonce[:], submitter[:], candidate[:])

	if got := Digest(42, lastNonce, submitter, candidate); got != want {
		t.Errorf("Digest = %s, want %s", got, want)
	}
}

func TestDigest_BindsEveryInput(t *testing.T) {
	base := Digest(1, types.Nonce{1}, types.Address{1}, types.Nonce{1})
	variants := map[string]types.Hash{
		"height":    Digest(2, types.Nonce{1}, types.Address{1}, types.Nonce{1}),
		"lastNonce": Digest(1, types.Nonce{2}, types.Address{1}, types.Nonce{1}),
		"submitter": Digest(1, types.Nonce{1}, types.Address{2}, types.Nonce{1}),
		"candidate": Digest(1, types.Nonce{1}, types.Address{1}, types.Nonce{2}),
	}
	for name, d := range variants {
		if d == base {
			t.Errorf("changing %s did not change the digest", name)
		}
	}
}

func TestMeetsTarget_Inclusive(t *testing.T) {
	d := types.Hash{0x00, 0x10}
	if !MeetsTarget(d, types.Target(d)) {
		t.Error("digest equal to target should be accepted")
	}
	looser := types.Target(d)
	looser[31] = 0xFF
	if !MeetsTarget(d, looser) {
		t.Error("digest below target should be accepted")
	}
	tighter := types.Target{0x00, 0x0F, 0xFF}
	if MeetsTarget(d, tighter) {
		t.Error("digest above target should be rejected")
	}
}

func TestMeetsTarget_MatchesBigInt(t *testing.T) {
	target := easyTarget(250)
	tgtInt := new(big.Int).SetBytes(target[:])
	for i := 0; i < 200; i++ {
		d := crypto.Hash([]byte{byte(i)})
		want := new(big.Int).SetBytes(d[:]).Cmp(tgtInt) <= 0
		if got := MeetsTarget(d, target); got != want {
			t.Fatalf("MeetsTarget(%s) = %v, big.Int says %v", d, got, want)
		}
	}
}

func TestCheckProof_Rejects(t *testing.T) {
	p := testPuzzle(types.TargetFromInt(uint256.NewInt(1)))
	err := p.CheckProof(types.Nonce{42})
	if !errors.Is(err, ErrProofRejected) {
		t.Fatalf("CheckProof with target 1 = %v, want ErrProofRejected", err)
	}
}

func TestCheckProof_ZeroTarget(t *testing.T) {
	p := testPuzzle(types.Target{})
	if err := p.CheckProof(types.Nonce{}); !errors.Is(err, ErrZeroTarget) {
		t.Fatalf("CheckProof with zero target = %v, want ErrZeroTarget", err)
	}
}

func TestCheckProof_MaxTargetAcceptsAnything(t *testing.T) {
	p := testPuzzle(types.TargetFromInt(new(uint256.Int).SetAllOne()))
	for i := 0; i < 10; i++ {
		if err := p.CheckProof(types.Nonce{byte(i)}); err != nil {
			t.Fatalf("CheckProof with max target: %v", err)
		}
	}
}

func TestSolve_Single(t *testing.T) {
	// ~1 in 256 candidates pass.
	p := testPuzzle(easyTarget(248))
	c, err := p.Solve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if err := p.CheckProof(c); err != nil {
		t.Fatalf("CheckProof(solution): %v", err)
	}
}

func TestSolve_Parallel(t *testing.T) {
	p := testPuzzle(easyTarget(244))
	c, err := p.Solve(context.Background(), 4)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if err := p.CheckProof(c); err != nil {
		t.Fatalf("CheckProof(solution): %v", err)
	}
}

func TestSolve_SaltDiffers(t *testing.T) {
	p := testPuzzle(types.TargetFromInt(new(uint256.Int).SetAllOne()))
	c1, err := p.Solve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := p.Solve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if c1 == c2 {
		t.Error("independent searches should start from different salts")
	}
}

func TestSolve_Cancel(t *testing.T) {
	// Target 1 is effectively unsolvable.
	p := testPuzzle(types.TargetFromInt(uint256.NewInt(1)))
	for _, threads := range []int{1, 4} {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := p.Solve(ctx, threads)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Solve(threads=%d) after timeout = %v, want DeadlineExceeded", threads, err)
		}
	}
}

func TestSolve_ZeroTarget(t *testing.T) {
	p := testPuzzle(types.Target{})
	if _, err := p.Solve(context.Background(), 1); !errors.Is(err, ErrZeroTarget) {
		t.Fatalf("Solve with zero target = %v, want ErrZeroTarget", err)
	}
}
