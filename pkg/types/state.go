package types

// ChainState is the singleton issuance state advanced by each accepted
// proof. Timestamps are unix seconds.
type ChainState struct {
	Height                 uint64 `json:"height"`
	Target                 Target `json:"target"`
	LastNonce              Nonce  `json:"last_nonce"`
	LastAcceptedTime       uint64 `json:"last_accepted_time"`
	LastRetargetCheckpoint uint64 `json:"last_retarget_checkpoint"`
}

// GenesisState returns the state before the first accepted submission.
func GenesisState(maxTarget Target) ChainState {
	return ChainState{Target: maxTarget}
}
