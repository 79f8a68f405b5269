package issuance

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/powmint/internal/storage"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// Key prefixes and singleton keys for the issuance store.
var (
	keyState    = []byte("s/state")
	keyAdmin    = []byte("s/admin")
	prefixEvent = []byte("e/") // e/<height(8)> -> RewardEvent JSON
)

var errStopIteration = errors.New("stop iteration")

// Store persists issuance state, the admin record and the reward event log.
type Store struct {
	db storage.BatchDB
}

// NewStore creates an issuance store backed by the given database.
func NewStore(db storage.BatchDB) *Store {
	return &Store{db: db}
}

// LoadState returns the committed chain state. ok is false when nothing has
// been stored yet.
func (s *Store) LoadState() (st types.ChainState, ok bool, err error) {
	ok, err = s.load(keyState, &st)
	return st, ok, err
}

// LoadAdmin returns the stored admin record. ok is false when nothing has
// been stored yet.
func (s *Store) LoadAdmin() (a Admin, ok bool, err error) {
	ok, err = s.load(keyAdmin, &a)
	return a, ok, err
}

func (s *Store) load(key []byte, v any) (bool, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("issuance get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorruptState, key, err)
	}
	return true, nil
}

// SaveState writes the chain state on its own. Used at initialization
// and to restore a prior state.
func (s *Store) SaveState(st types.ChainState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("state marshal: %w", err)
	}
	return s.db.Put(keyState, data)
}

// SaveAdmin writes the admin record.
func (s *Store) SaveAdmin(a Admin) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("admin marshal: %w", err)
	}
	return s.db.Put(keyAdmin, data)
}

// Commit writes the new state and its event in one batch.
func (s *Store) Commit(st types.ChainState, ev RewardEvent) error {
	stateData, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("state marshal: %w", err)
	}
	evData, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event marshal: %w", err)
	}
	b := s.db.NewBatch()
	if err := b.Put(keyState, stateData); err != nil {
		return err
	}
	if err := b.Put(eventKey(ev.Height), evData); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("issuance commit: %w", err)
	}
	return nil
}

// Revert undoes a Commit: it restores prev and drops the event at height.
func (s *Store) Revert(prev types.ChainState, height uint64) error {
	data, err := json.Marshal(prev)
	if err != nil {
		return fmt.Errorf("state marshal: %w", err)
	}
	b := s.db.NewBatch()
	if err := b.Put(keyState, data); err != nil {
		return err
	}
	if err := b.Delete(eventKey(height)); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("issuance revert: %w", err)
	}
	return nil
}

// Event returns the event recorded at height.
func (s *Store) Event(height uint64) (*RewardEvent, error) {
	data, err := s.db.Get(eventKey(height))
	if err != nil {
		return nil, fmt.Errorf("event get %d: %w", height, err)
	}
	var ev RewardEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: event %d: %v", ErrCorruptState, height, err)
	}
	return &ev, nil
}

// Events returns up to limit events with height >= from, in height order.
// A zero limit returns every matching event.
func (s *Store) Events(from uint64, limit int) ([]RewardEvent, error) {
	events := []RewardEvent{}
	err := s.db.ForEach(prefixEvent, func(key, value []byte) error {
		// Key layout: "e/" + height(8).
		if len(key) != len(prefixEvent)+8 {
			return nil // Malformed key, skip.
		}
		if binary.BigEndian.Uint64(key[len(prefixEvent):]) < from {
			return nil
		}
		var ev RewardEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("%w: event %x: %v", ErrCorruptState, key, err)
		}
		events = append(events, ev)
		if limit > 0 && len(events) >= limit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return events, nil
}

func eventKey(height uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], height)
	return key
}
