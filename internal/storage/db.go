// Package storage provides database abstractions.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in ascending
	// key order. The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that are applied together on Commit. Nothing is
// visible to readers before Commit; a batch that is never committed is
// simply dropped.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by databases that can apply a Batch atomically.
type Batcher interface {
	NewBatch() Batch
}

// BatchDB is a DB with atomic batches.
type BatchDB interface {
	DB
	Batcher
}

// batchOp is one buffered write. A nil value means delete.
type batchOp struct {
	key   []byte
	value []byte
}

// opBuffer accumulates copies of batch writes.
type opBuffer struct {
	ops []batchOp
}

func (b *opBuffer) put(key, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	b.ops = append(b.ops, batchOp{key: clone(key), value: v})
}

func (b *opBuffer) del(key []byte) {
	b.ops = append(b.ops, batchOp{key: clone(key)})
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
