package p2p

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	klog "github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/internal/storage"
)

// Fault is a class of peer misbehaviour.
type Fault uint8

const (
	FaultMalformed  Fault = iota + 1 // Undecodable gossip payload.
	FaultBadProof                    // Digest above its target, or a target easier than the genesis maximum.
	FaultHeightJump                  // Announced height far beyond anything known.
	FaultGenesis                     // Handshake for another chain.
)

func (f Fault) String() string {
	switch f {
	case FaultMalformed:
		return "malformed"
	case FaultBadProof:
		return "bad-proof"
	case FaultHeightJump:
		return "height-jump"
	case FaultGenesis:
		return "genesis"
	default:
		return fmt.Sprintf("fault(%d)", uint8(f))
	}
}

// Weight is the score a single fault adds.
func (f Fault) Weight() int {
	switch f {
	case FaultMalformed:
		return 20
	case FaultBadProof:
		return 50
	case FaultHeightJump:
		return 25
	case FaultGenesis:
		return BanScore
	default:
		return 0
	}
}

// Scoring and ban policy.
const (
	BanScore    = 100 // Score at which a peer is banned.
	DecayPerMin = 1   // Points forgiven per minute of good behaviour.

	BaseBanDuration = time.Hour
	MaxBanDuration  = 7 * 24 * time.Hour

	// banMemory is how long an expired ban is kept so a repeat offender
	// gets a longer one.
	banMemory = 30 * 24 * time.Hour
)

const banPrefix = "ban/"

// Ban is a persisted ban. Count is the number of bans the peer has earned,
// this one included.
type Ban struct {
	Peer     string `json:"peer"`
	Fault    string `json:"fault"`
	Score    int    `json:"score"`
	Count    int    `json:"count"`
	BannedAt int64  `json:"banned_at"`
	Until    int64  `json:"until"`
}

func (b *Ban) activeAt(now time.Time) bool {
	return now.Unix() < b.Until
}

// banDuration doubles with every prior ban.
func banDuration(count int) time.Duration {
	d := BaseBanDuration
	for i := 1; i < count && d < MaxBanDuration; i++ {
		d *= 2
	}
	if d > MaxBanDuration {
		d = MaxBanDuration
	}
	return d
}

type score struct {
	points int
	at     time.Time
}

// current applies decay up to now.
func (s score) current(now time.Time) int {
	p := s.points - int(now.Sub(s.at)/time.Minute)*DecayPerMin
	if p < 0 {
		return 0
	}
	return p
}

// Scorer accumulates fault scores per peer and bans peers that reach
// BanScore. It doubles as the host's connection gater.
type Scorer struct {
	mu     sync.Mutex
	scores map[peer.ID]score
	bans   map[peer.ID]*Ban
	db     storage.DB // nil disables persistence
	now    func() time.Time
	onBan  func(peer.ID)
}

// NewScorer creates a scorer persisting bans to db. onBan, if set, runs in
// its own goroutine for every new ban.
func NewScorer(db storage.DB, onBan func(peer.ID)) *Scorer {
	return &Scorer{
		scores: make(map[peer.ID]score),
		bans:   make(map[peer.ID]*Ban),
		db:     db,
		now:    time.Now,
		onBan:  onBan,
	}
}

// Load restores persisted bans, dropping corrupt and long-expired records.
func (s *Scorer) Load() error {
	if s.db == nil {
		return nil
	}
	now := s.now()
	var drop [][]byte
	loaded := make(map[peer.ID]*Ban)
	err := s.db.ForEach([]byte(banPrefix), func(key, value []byte) error {
		var b Ban
		if err := json.Unmarshal(value, &b); err != nil {
			drop = append(drop, key)
			return nil
		}
		id, err := peer.Decode(b.Peer)
		if err != nil || now.Sub(time.Unix(b.Until, 0)) > banMemory {
			drop = append(drop, key)
			return nil
		}
		loaded[id] = &b
		return nil
	})
	if err != nil {
		return fmt.Errorf("load bans: %w", err)
	}
	for _, k := range drop {
		if err := s.db.Delete(k); err != nil {
			return fmt.Errorf("drop ban record: %w", err)
		}
	}

	s.mu.Lock()
	for id, b := range loaded {
		s.bans[id] = b
	}
	s.mu.Unlock()
	return nil
}

// Report adds fault to id's score and reports whether it caused a ban.
func (s *Scorer) Report(id peer.ID, fault Fault) bool {
	now := s.now()

	s.mu.Lock()
	prev := s.bans[id]
	if prev != nil && prev.activeAt(now) {
		s.mu.Unlock()
		return false
	}
	points := s.scores[id].current(now) + fault.Weight()
	if points < BanScore {
		s.scores[id] = score{points: points, at: now}
		s.mu.Unlock()
		return false
	}

	count := 1
	if prev != nil {
		count = prev.Count + 1
	}
	b := &Ban{
		Peer:     id.String(),
		Fault:    fault.String(),
		Score:    points,
		Count:    count,
		BannedAt: now.Unix(),
		Until:    now.Add(banDuration(count)).Unix(),
	}
	s.bans[id] = b
	delete(s.scores, id)
	s.mu.Unlock()

	if err := s.save(b); err != nil {
		klog.P2P.Warn().Err(err).Str("peer", shortID(id)).Msg("Ban not persisted")
	}
	klog.P2P.Warn().
		Str("peer", shortID(id)).
		Str("fault", b.Fault).
		Int("count", count).
		Time("until", time.Unix(b.Until, 0)).
		Msg("Peer banned")
	if s.onBan != nil {
		go s.onBan(id)
	}
	return true
}

func (s *Scorer) save(b *Ban) error {
	if s.db == nil {
		return nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(banPrefix+b.Peer), data)
}

// Score returns id's decayed score.
func (s *Scorer) Score(id peer.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[id].current(s.now())
}

// Banned reports whether id is currently banned.
func (s *Scorer) Banned(id peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bans[id]
	return b != nil && b.activeAt(s.now())
}

// Unban lifts a ban and forgets the peer's history.
func (s *Scorer) Unban(id peer.ID) error {
	s.mu.Lock()
	delete(s.bans, id)
	delete(s.scores, id)
	s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if err := s.db.Delete([]byte(banPrefix + id.String())); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// Bans returns the active bans, soonest expiry first.
func (s *Scorer) Bans() []Ban {
	now := s.now()
	s.mu.Lock()
	list := make([]Ban, 0, len(s.bans))
	for _, b := range s.bans {
		if b.activeAt(now) {
			list = append(list, *b)
		}
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Until < list[j].Until })
	return list
}

// Prune forgets fully decayed scores and bans past their memory window.
func (s *Scorer) Prune() {
	now := s.now()
	var forget []peer.ID

	s.mu.Lock()
	for id, sc := range s.scores {
		if sc.current(now) == 0 {
			delete(s.scores, id)
		}
	}
	for id, b := range s.bans {
		if now.Sub(time.Unix(b.Until, 0)) > banMemory {
			delete(s.bans, id)
			forget = append(forget, id)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	for _, id := range forget {
		_ = s.db.Delete([]byte(banPrefix + id.String()))
	}
}

// Connection gating. Identity is only known from InterceptSecured on for
// inbound connections.

func (s *Scorer) InterceptPeerDial(p peer.ID) bool { return !s.Banned(p) }

func (s *Scorer) InterceptAddrDial(peer.ID, ma.Multiaddr) bool { return true }

func (s *Scorer) InterceptAccept(network.ConnMultiaddrs) bool { return true }

func (s *Scorer) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return !s.Banned(p)
}

func (s *Scorer) InterceptUpgraded(network.Conn) (bool, control.DisconnectReason) { return true, 0 }
