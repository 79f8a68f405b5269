package keys

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrWrongPassword is returned when a sealed blob fails authentication.
var ErrWrongPassword = errors.New("wrong password or corrupt data")

const (
	saltSize = 32
	// Sealed layout: salt(32) | memory(4) | time(4) | threads(1) | nonce(24) | ciphertext
	sealHeader = saltSize + 4 + 4 + 1
)

// KDFParams are the Argon2id cost parameters stored with each sealed blob.
type KDFParams struct {
	Memory  uint32 `json:"memory"` // KiB
	Time    uint32 `json:"time"`
	Threads uint8  `json:"threads"`
}

// DefaultKDF is used for keyfiles on disk.
func DefaultKDF() KDFParams {
	return KDFParams{Memory: 64 * 1024, Time: 3, Threads: 4}
}

// LightKDF is cheap enough for tests.
func LightKDF() KDFParams {
	return KDFParams{Memory: 1024, Time: 1, Threads: 1}
}

func (p KDFParams) key(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
}

// Seal encrypts plaintext under password with Argon2id and XChaCha20-Poly1305.
func Seal(plaintext, password []byte, p KDFParams) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	key := p.key(password, salt)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	out := make([]byte, 0, sealHeader+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, p.Memory)
	out = binary.LittleEndian.AppendUint32(out, p.Time)
	out = append(out, p.Threads)
	out = append(out, nonce...)
	// The header is authenticated so the KDF parameters cannot be swapped.
	header := append([]byte(nil), out[:sealHeader]...)
	return aead.Seal(out, nonce, plaintext, header), nil
}

// Open decrypts a blob produced by Seal.
func Open(sealed, password []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	if len(sealed) < sealHeader+nonceSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed data too short: %d bytes", len(sealed))
	}
	header := sealed[:sealHeader]
	p := KDFParams{
		Memory:  binary.LittleEndian.Uint32(sealed[saltSize:]),
		Time:    binary.LittleEndian.Uint32(sealed[saltSize+4:]),
		Threads: sealed[saltSize+8],
	}
	if p.Time == 0 || p.Threads == 0 {
		return nil, fmt.Errorf("bad kdf parameters")
	}
	nonce := sealed[sealHeader : sealHeader+nonceSize]

	key := p.key(password, sealed[:saltSize])
	defer zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, sealed[sealHeader+nonceSize:], header)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plain, nil
}
