package keys

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// BIP-44 path components: m/44'/8888'/account'/0/index.
const (
	PurposeBIP44  = bip32.FirstHardenedChild + 44
	CoinType      = bip32.FirstHardenedChild + 8888
	chainExternal = 0
)

// HDKey is a BIP-32 extended key.
type HDKey struct {
	key *bip32.Key
}

// MasterKey creates the root key from a BIP-39 seed.
func MasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	k, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	return &HDKey{key: k}, nil
}

// Child derives the child at index. Add bip32.FirstHardenedChild for a
// hardened child.
func (k *HDKey) Child(index uint32) (*HDKey, error) {
	c, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: c}, nil
}

// Account derives m/44'/8888'/account'/0/index from a master key.
func (k *HDKey) Account(account, index uint32) (*HDKey, error) {
	cur := k
	for _, i := range []uint32{PurposeBIP44, CoinType, bip32.FirstHardenedChild + account, chainExternal, index} {
		next, err := cur.Child(i)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// PrivateKey returns the signing key. It fails for a public-only key.
func (k *HDKey) PrivateKey() (*crypto.PrivateKey, error) {
	if !k.key.IsPrivate {
		return nil, fmt.Errorf("public-only key")
	}
	raw := k.key.Key
	// bip32 pads private keys to 33 bytes with a leading zero.
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// PublicKey returns the 33-byte compressed public key.
func (k *HDKey) PublicKey() []byte {
	return k.key.PublicKey().Key
}

// Address returns BLAKE3(pubkey)[:20].
func (k *HDKey) Address() types.Address {
	return crypto.AddressFromPubKey(k.PublicKey())
}

// FromMnemonic derives the key at m/44'/8888'/account'/0/index.
func FromMnemonic(mnemonic, passphrase string, account, index uint32) (*crypto.PrivateKey, error) {
	seed, err := Seed(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	defer zero(seed)
	master, err := MasterKey(seed)
	if err != nil {
		return nil, err
	}
	k, err := master.Account(account, index)
	if err != nil {
		return nil, err
	}
	return k.PrivateKey()
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
