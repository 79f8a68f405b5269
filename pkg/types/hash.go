// Package types defines the primitive value types shared across powmint.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit BLAKE3 digest.
type Hash [HashSize]byte

// Nonce is a miner-chosen proof candidate. It has the same width as a digest
// so the accepted candidate can seed the next proof.
type Nonce Hash

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash. An empty string decodes to
// the zero hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash converts a 64-character hex string (optionally 0x-prefixed) to a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsZero returns true if the nonce is all zeros.
func (n Nonce) IsZero() bool {
	return Hash(n).IsZero()
}

// String returns the hex-encoded nonce.
func (n Nonce) String() string {
	return Hash(n).String()
}

// MarshalJSON encodes the nonce as a hex string.
func (n Nonce) MarshalJSON() ([]byte, error) {
	return Hash(n).MarshalJSON()
}

// UnmarshalJSON decodes a hex string into a nonce.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	return (*Hash)(n).UnmarshalJSON(data)
}

// HexToNonce parses a hex-encoded nonce.
func HexToNonce(s string) (Nonce, error) {
	h, err := HexToHash(s)
	return Nonce(h), err
}
