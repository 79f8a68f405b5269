package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/powmint/internal/storage"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// Key prefixes and state keys for the ledger store.
var (
	prefixBalance = []byte("b/") // b/<addr(20)> -> balance(8)
	keySupply     = []byte("s/supply")
)

// store persists balances and total supply as 8-byte big-endian values.
type store struct {
	db storage.BatchDB
}

func (s *store) balance(addr types.Address) (uint64, error) {
	return s.getUint(balanceKey(addr))
}

func (s *store) supply() (uint64, error) {
	return s.getUint(keySupply)
}

func (s *store) hasSupply() (bool, error) {
	return s.db.Has(keySupply)
}

func (s *store) getUint(key []byte) (uint64, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("ledger value %x: bad length %d", key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// write applies new balances and supply in one batch.
func (s *store) write(balances map[types.Address]uint64, supply uint64) error {
	b := s.db.NewBatch()
	for addr, bal := range balances {
		if err := b.Put(balanceKey(addr), encodeUint(bal)); err != nil {
			return err
		}
	}
	if err := b.Put(keySupply, encodeUint(supply)); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}
	return nil
}

// forEach iterates over all non-empty balances in address order.
func (s *store) forEach(fn func(types.Address, uint64) error) error {
	return s.db.ForEach(prefixBalance, func(key, value []byte) error {
		// Key layout: "b/" + addr(20).
		if len(key) != len(prefixBalance)+types.AddressSize || len(value) != 8 {
			return nil // Malformed entry, skip.
		}
		var addr types.Address
		copy(addr[:], key[len(prefixBalance):])
		return fn(addr, binary.BigEndian.Uint64(value))
	})
}

func balanceKey(addr types.Address) []byte {
	key := make([]byte, len(prefixBalance)+types.AddressSize)
	copy(key, prefixBalance)
	copy(key[len(prefixBalance):], addr[:])
	return key
}

func encodeUint(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
