package p2p

import (
	"encoding/json"
	"errors"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/powmint/internal/consensus"
	"github.com/Klingon-tech/powmint/internal/issuance"
	klog "github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// RewardAnnouncement is the gossip payload for one accepted submission.
// PrevNonce is the last nonce the proof was solved against, so receivers
// can recheck the digest without the issuer's state.
type RewardAnnouncement struct {
	Event     issuance.RewardEvent `json:"event"`
	PrevNonce types.Nonce          `json:"prev_nonce"`
}

// Announcement verification errors.
var (
	ErrZeroHeight      = errors.New("zero height")
	ErrTargetTooEasy   = errors.New("target above the genesis maximum")
	ErrHeightTooFarOff = errors.New("height too far ahead")
)

// Verify checks the announcement is well formed, claims a target no easier
// than maxTarget, and carries a proof that meets it.
func (a *RewardAnnouncement) Verify(maxTarget types.Target) error {
	if a.Event.Height == 0 {
		return ErrZeroHeight
	}
	if a.Event.Target.Cmp(maxTarget) > 0 {
		return fmt.Errorf("%w: %s", ErrTargetTooEasy, a.Event.Target)
	}
	return consensus.Puzzle{
		Height:    a.Event.Height,
		LastNonce: a.PrevNonce,
		Submitter: a.Event.Submitter,
		Target:    a.Event.Target,
	}.CheckProof(a.Event.Candidate)
}

// BroadcastReward publishes a reward announcement to the gossip network.
func (n *Node) BroadcastReward(a *RewardAnnouncement) error {
	if n.topicReward == nil {
		return fmt.Errorf("p2p node not started")
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal reward: %w", err)
	}

	return n.topicReward.Publish(n.ctx, data)
}

// SetRewardHandler registers a callback for verified incoming reward
// announcements.
func (n *Node) SetRewardHandler(fn func(from peer.ID, a *RewardAnnouncement)) {
	n.rewardHandler = fn
}

func (n *Node) handleRewardMessage(msg *pubsub.Message) {
	defer func() { recover() }()
	from := msg.ReceivedFrom
	n.addPeer(from, "")

	var a RewardAnnouncement
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		n.penalize(from, FaultMalformed)
		return
	}
	if err := a.Verify(n.config.MaxTarget); err != nil {
		klog.P2P.Debug().Err(err).Str("peer", shortID(from)).Uint64("height", a.Event.Height).Msg("Invalid reward announcement")
		n.penalize(from, FaultBadProof)
		return
	}
	if !n.observeHeight(from, a.Event.Height) {
		klog.P2P.Debug().Str("peer", shortID(from)).Uint64("height", a.Event.Height).Msg("Reward announcement too far ahead")
		n.penalize(from, FaultHeightJump)
		return
	}

	if n.rewardHandler != nil {
		n.rewardHandler(from, &a)
	}
}

func (n *Node) penalize(id peer.ID, f Fault) {
	if n.scorer != nil {
		n.scorer.Report(id, f)
	}
}

// shortID abbreviates a peer ID for logs.
func shortID(id peer.ID) string {
	s := id.String()
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
