package p2p

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/powmint/internal/storage"
)

// testPeerID is a valid base58 peer ID; bans are keyed by its string form.
func testPeerID(t *testing.T, s string) peer.ID {
	t.Helper()
	id, err := peer.Decode(s)
	if err != nil {
		t.Fatalf("decode peer id: %v", err)
	}
	return id
}

const (
	peerOne = "QmYyQSo1c1Ym7orWxLYvCrM2EmxFTANf8wXmmE7DWjhx5N"
	peerTwo = "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"
)

// fakeNow is a settable clock for scorers.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeNow) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeNow) add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestScorer(db storage.DB) (*Scorer, *fakeNow) {
	clock := &fakeNow{t: time.Unix(1_800_000_000, 0)}
	s := NewScorer(db, nil)
	s.now = clock.now
	return s, clock
}

func TestFault_Weights(t *testing.T) {
	if FaultGenesis.Weight() < BanScore {
		t.Error("a genesis mismatch should ban on its own")
	}
	if FaultMalformed.Weight() >= FaultBadProof.Weight() {
		t.Error("an invalid proof should weigh more than a malformed payload")
	}
	if Fault(99).Weight() != 0 || Fault(99).String() != "fault(99)" {
		t.Errorf("unknown fault = %d/%s", Fault(99).Weight(), Fault(99))
	}
}

func TestScorer_BansAtThreshold(t *testing.T) {
	s, _ := newTestScorer(nil)
	id := testPeerID(t, peerOne)

	if s.Report(id, FaultBadProof) {
		t.Fatal("one bad proof should not ban")
	}
	if got := s.Score(id); got != 50 {
		t.Errorf("score = %d, want 50", got)
	}
	if !s.Report(id, FaultBadProof) {
		t.Fatal("second bad proof should ban")
	}
	if !s.Banned(id) {
		t.Error("peer should be banned")
	}
	if s.Score(id) != 0 {
		t.Error("score should reset once banned")
	}
	if s.Report(id, FaultBadProof) {
		t.Error("reports against a banned peer should not re-ban")
	}

	bans := s.Bans()
	if len(bans) != 1 || bans[0].Fault != "bad-proof" || bans[0].Count != 1 || bans[0].Score != 100 {
		t.Errorf("bans = %+v", bans)
	}
}

func TestScorer_ScoreDecays(t *testing.T) {
	s, clock := newTestScorer(nil)
	id := testPeerID(t, peerOne)

	s.Report(id, FaultBadProof)
	clock.add(30 * time.Minute)
	if got := s.Score(id); got != 20 {
		t.Errorf("score after 30m = %d, want 20", got)
	}
	// 20 + 50 stays below the threshold after decay.
	if s.Report(id, FaultBadProof) {
		t.Error("decayed score should not ban")
	}
	clock.add(2 * time.Hour)
	s.Prune()
	if _, ok := s.scores[id]; ok {
		t.Error("fully decayed score should be pruned")
	}
}

func TestScorer_RepeatBansEscalate(t *testing.T) {
	s, clock := newTestScorer(nil)
	id := testPeerID(t, peerOne)

	s.Report(id, FaultGenesis)
	first := s.Bans()[0]
	if d := time.Duration(first.Until-first.BannedAt) * time.Second; d != BaseBanDuration {
		t.Errorf("first ban = %v, want %v", d, BaseBanDuration)
	}

	clock.add(BaseBanDuration)
	if s.Banned(id) {
		t.Fatal("ban should have expired")
	}
	s.Report(id, FaultGenesis)
	second := s.Bans()[0]
	if second.Count != 2 {
		t.Errorf("count = %d, want 2", second.Count)
	}
	if d := time.Duration(second.Until-second.BannedAt) * time.Second; d != 2*BaseBanDuration {
		t.Errorf("second ban = %v, want %v", d, 2*BaseBanDuration)
	}
}

func TestBanDuration_Capped(t *testing.T) {
	if banDuration(1) != BaseBanDuration {
		t.Errorf("banDuration(1) = %v", banDuration(1))
	}
	if banDuration(100) != MaxBanDuration {
		t.Errorf("banDuration(100) = %v, want %v", banDuration(100), MaxBanDuration)
	}
}

func TestScorer_PersistsAcrossRestart(t *testing.T) {
	db := storage.NewMemory()
	s, clock := newTestScorer(db)
	one, two := testPeerID(t, peerOne), testPeerID(t, peerTwo)
	s.Report(one, FaultGenesis)

	// Corrupt and long-forgotten records are dropped on load.
	_ = db.Put([]byte(banPrefix+"garbage"), []byte("{"))
	old, _ := json.Marshal(Ban{Peer: two.String(), Until: clock.now().Add(-2 * banMemory).Unix()})
	_ = db.Put([]byte(banPrefix+two.String()), old)

	reloaded, _ := newTestScorer(db)
	reloaded.now = clock.now
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reloaded.Banned(one) {
		t.Error("ban should survive a restart")
	}
	if n, _ := countPrefix(db, banPrefix); n != 1 {
		t.Errorf("ban records = %d, want 1", n)
	}

	if err := reloaded.Unban(one); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if reloaded.Banned(one) {
		t.Error("Unban should lift the ban")
	}
	if n, _ := countPrefix(db, banPrefix); n != 0 {
		t.Errorf("ban records after Unban = %d, want 0", n)
	}
}

func TestScorer_OnBanCallback(t *testing.T) {
	got := make(chan peer.ID, 1)
	s := NewScorer(nil, func(id peer.ID) { got <- id })
	id := testPeerID(t, peerOne)
	s.Report(id, FaultGenesis)

	select {
	case banned := <-got:
		if banned != id {
			t.Errorf("onBan(%s), want %s", banned, id)
		}
	case <-time.After(time.Second):
		t.Fatal("onBan not called")
	}
}

func TestScorer_Gater(t *testing.T) {
	s, _ := newTestScorer(nil)
	bad, good := testPeerID(t, peerOne), testPeerID(t, peerTwo)
	s.Report(bad, FaultGenesis)

	if s.InterceptPeerDial(bad) || s.InterceptSecured(0, bad, nil) {
		t.Error("banned peer should be gated")
	}
	if !s.InterceptPeerDial(good) || !s.InterceptSecured(0, good, nil) {
		t.Error("unbanned peer should pass")
	}
	if !s.InterceptAccept(nil) || !s.InterceptAddrDial(bad, nil) {
		t.Error("identity-less checks always pass")
	}
	if ok, _ := s.InterceptUpgraded(nil); !ok {
		t.Error("upgraded connections pass")
	}
}

func countPrefix(db storage.DB, prefix string) (int, error) {
	n := 0
	err := db.ForEach([]byte(prefix), func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
