package issuance

import "github.com/Klingon-tech/powmint/pkg/types"

// RewardEvent records one accepted submission. Events are appended in
// height order and never rewritten.
type RewardEvent struct {
	Height      uint64        `json:"height"`
	Submitter   types.Address `json:"submitter"`
	Candidate   types.Nonce   `json:"candidate"`
	MinerReward uint64        `json:"miner_reward"`

	Pool       types.Address `json:"pool"`
	PoolReward uint64        `json:"pool_reward"`
	Target     types.Target  `json:"target"`
	Time       uint64        `json:"time"`
	Advanced   bool          `json:"advanced,omitempty"`
}

// Work is the puzzle a miner must solve for the next submission.
type Work struct {
	Height    uint64       `json:"height"` // Post-increment height the proof commits to
	LastNonce types.Nonce  `json:"last_nonce"`
	Target    types.Target `json:"target"`
}
