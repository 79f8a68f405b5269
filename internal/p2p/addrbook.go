package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	klog "github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/internal/storage"
)

const (
	addrPrefix      = "addr/"
	addrTTL         = 24 * time.Hour
	addrBookCap     = 500
	persistInterval = 5 * time.Minute
	redialLimit     = 32 // Entries dialed on start.
)

// AddrEntry is what the node remembers about a peer between runs.
type AddrEntry struct {
	ID       string     `json:"id"`
	Addrs    []string   `json:"addrs"`
	Source   PeerSource `json:"source"`
	Height   uint64     `json:"height"` // Best issuance height the peer reported
	LastSeen int64      `json:"last_seen"`
}

// AddrBook persists peer addresses under "addr/". Peers that reported the
// highest issuance height come back first.
type AddrBook struct {
	db  storage.DB
	now func() time.Time
}

// NewAddrBook creates an address book backed by db.
func NewAddrBook(db storage.DB) *AddrBook {
	return &AddrBook{db: db, now: time.Now}
}

func addrKey(id string) []byte {
	return []byte(addrPrefix + id)
}

// Put stores e, keeping the higher of the old and new heights. When the
// book is full, a new peer replaces the least recently seen one.
func (b *AddrBook) Put(e AddrEntry) error {
	old, err := b.get(e.ID)
	switch {
	case err == nil:
		if old.Height > e.Height {
			e.Height = old.Height
		}
		if e.Source == "" {
			e.Source = old.Source
		}
	case errors.Is(err, storage.ErrNotFound):
		if err := b.makeRoom(); err != nil {
			return err
		}
	default:
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal addr entry: %w", err)
	}
	return b.db.Put(addrKey(e.ID), data)
}

func (b *AddrBook) makeRoom() error {
	entries, err := b.all()
	if err != nil {
		return err
	}
	if len(entries) < addrBookCap {
		return nil
	}
	oldest := entries[0]
	for _, e := range entries[1:] {
		if e.LastSeen < oldest.LastSeen {
			oldest = e
		}
	}
	return b.db.Delete(addrKey(oldest.ID))
}

func (b *AddrBook) get(id string) (*AddrEntry, error) {
	data, err := b.db.Get(addrKey(id))
	if err != nil {
		return nil, err
	}
	var e AddrEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal addr entry: %w", err)
	}
	return &e, nil
}

// Get returns the entry for id.
func (b *AddrBook) Get(id peer.ID) (*AddrEntry, error) {
	return b.get(id.String())
}

func (b *AddrBook) all() ([]AddrEntry, error) {
	var entries []AddrEntry
	err := b.db.ForEach([]byte(addrPrefix), func(_, value []byte) error {
		var e AddrEntry
		if json.Unmarshal(value, &e) == nil {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate addr book: %w", err)
	}
	return entries, nil
}

// Entries returns every entry, highest reported height first and most
// recently seen among equals.
func (b *AddrBook) Entries() ([]AddrEntry, error) {
	entries, err := b.all()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Height != entries[j].Height {
			return entries[i].Height > entries[j].Height
		}
		return entries[i].LastSeen > entries[j].LastSeen
	})
	return entries, nil
}

// Remove deletes the entry for id.
func (b *AddrBook) Remove(id peer.ID) error {
	return b.db.Delete(addrKey(id.String()))
}

// Expire drops entries not seen within addrTTL, and corrupt ones. It
// returns how many were removed.
func (b *AddrBook) Expire() (int, error) {
	cutoff := b.now().Add(-addrTTL).Unix()
	var drop [][]byte
	err := b.db.ForEach([]byte(addrPrefix), func(key, value []byte) error {
		var e AddrEntry
		if json.Unmarshal(value, &e) != nil || e.LastSeen < cutoff {
			drop = append(drop, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate addr book: %w", err)
	}
	for _, k := range drop {
		if err := b.db.Delete(k); err != nil {
			return 0, fmt.Errorf("expire addr entry: %w", err)
		}
	}
	return len(drop), nil
}

// Len returns the number of entries.
func (b *AddrBook) Len() (int, error) {
	n := 0
	err := b.db.ForEach([]byte(addrPrefix), func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// saveAddrs records every connected peer in the book.
func (n *Node) saveAddrs() {
	if n.book == nil || n.host == nil {
		return
	}
	now := time.Now().Unix()
	for _, p := range n.PeerList() {
		if n.scorer != nil && n.scorer.Banned(p.ID) {
			continue
		}
		addrs := n.host.Peerstore().Addrs(p.ID)
		if len(addrs) == 0 {
			continue
		}
		strs := make([]string, len(addrs))
		for i, a := range addrs {
			strs[i] = a.String()
		}
		_ = n.book.Put(AddrEntry{
			ID:       p.ID.String(),
			Addrs:    strs,
			Source:   p.Source,
			Height:   p.Height,
			LastSeen: now,
		})
	}
}

// redialBook reconnects to the best remembered peers.
func (n *Node) redialBook() {
	if n.book == nil {
		return
	}
	if _, err := n.book.Expire(); err != nil {
		klog.P2P.Debug().Err(err).Msg("Address book expiry failed")
	}
	entries, err := n.book.Entries()
	if err != nil {
		return
	}

	dialed := 0
	for _, e := range entries {
		if dialed >= redialLimit || n.ctx.Err() != nil {
			return
		}
		id, err := peer.Decode(e.ID)
		if err != nil || id == n.host.ID() || n.scorer.Banned(id) {
			continue
		}
		info := peer.AddrInfo{ID: id}
		for _, s := range e.Addrs {
			if a, err := ma.NewMultiaddr(s); err == nil {
				info.Addrs = append(info.Addrs, a)
			}
		}
		if len(info.Addrs) == 0 {
			continue
		}
		dialed++
		ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		if err := n.host.Connect(ctx, info); err == nil {
			n.addPeer(id, SourceBook)
			n.notePeerHeight(id, e.Height)
		}
		cancel()
	}
}
