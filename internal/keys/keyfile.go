package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

const keyfileVersion = 1

// Keyfile is the on-disk JSON form of one encrypted signing key.
type Keyfile struct {
	Version   int           `json:"version"`
	Address   types.Address `json:"address"`
	PublicKey string        `json:"public_key"`
	CreatedAt time.Time     `json:"created_at"`
	Sealed    []byte        `json:"sealed"`
}

// SaveKey encrypts key under password and writes it to path with mode 0600.
// It refuses to overwrite an existing file.
func SaveKey(path string, key *crypto.PrivateKey, password []byte, p KDFParams) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("keyfile %s already exists", path)
	}
	raw := key.Serialize()
	defer zero(raw)
	sealed, err := Seal(raw, password, p)
	if err != nil {
		return fmt.Errorf("seal key: %w", err)
	}
	kf := Keyfile{
		Version:   keyfileVersion,
		Address:   key.Address(),
		PublicKey: hex.EncodeToString(key.PublicKey()),
		CreatedAt: time.Now().UTC(),
		Sealed:    sealed,
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keyfile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// ReadKeyfile parses a keyfile without decrypting it.
func ReadKeyfile(path string) (*Keyfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyfile: %w", err)
	}
	var kf Keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse keyfile: %w", err)
	}
	if kf.Version != keyfileVersion {
		return nil, fmt.Errorf("unsupported keyfile version %d", kf.Version)
	}
	return &kf, nil
}

// LoadKey decrypts the keyfile at path.
func LoadKey(path string, password []byte) (*crypto.PrivateKey, error) {
	kf, err := ReadKeyfile(path)
	if err != nil {
		return nil, err
	}
	raw, err := Open(kf.Sealed, password)
	if err != nil {
		return nil, err
	}
	defer zero(raw)
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, err
	}
	if key.Address() != kf.Address {
		key.Zero()
		return nil, fmt.Errorf("keyfile address mismatch")
	}
	return key, nil
}

// KeyPath returns the keyfile path for name inside dir.
func KeyPath(dir, name string) string {
	return filepath.Join(dir, name+".key")
}
