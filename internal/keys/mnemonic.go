// Package keys manages operator and miner keys: BIP-39 mnemonics, BIP-32
// derivation and password-encrypted keyfiles.
package keys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits gives 24-word mnemonics.
const MnemonicEntropyBits = 256

// SeedSize is the BIP-39 seed length in bytes.
const SeedSize = 64

// ErrInvalidMnemonic is returned for a phrase with unknown words or a bad checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// NewMnemonic returns a fresh 24-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	m, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return m, nil
}

// ValidMnemonic reports whether the phrase passes the BIP-39 checks.
func ValidMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(normalize(mnemonic))
}

// Seed derives the 64-byte seed for a mnemonic and optional passphrase.
func Seed(mnemonic, passphrase string) ([]byte, error) {
	mnemonic = normalize(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}

// normalize collapses whitespace so pasted phrases validate.
func normalize(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}
