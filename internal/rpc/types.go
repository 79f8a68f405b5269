package rpc

import (
	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Issuance error codes. Each maps to one issuance error kind so clients can
// tell retryable failures (reentrant, stale proof) from permanent ones.
const (
	CodeReentrant     = -32001
	CodePaused        = -32002
	CodeProofRejected = -32003
	CodeUnauthorized  = -32004
	CodeArithmetic    = -32005
	CodeCapability    = -32006
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ── Param types ─────────────────────────────────────────────────────────

// AddressParam is used by ledger_getBalance.
type AddressParam struct {
	Address string `json:"address"`
}

// SubmitParam is used by issuance_submit.
type SubmitParam struct {
	Candidate string `json:"candidate"` // 32-byte hex
	Submitter string `json:"submitter"` // 0x-prefixed address
}

// EventsParam is used by issuance_getEvents.
type EventsParam struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit,omitempty"`
}

// AdminParam authenticates an admin_* call. Signature is a Schnorr signature
// by PubKey over AdminDigest(chain ID, method, Arg, IssuedAt).
type AdminParam struct {
	PubKey    string `json:"pubkey"`
	Signature string `json:"signature"`
	IssuedAt  int64  `json:"issued_at"`
	Arg       string `json:"arg,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// StateResult is returned by issuance_getState.
type StateResult struct {
	ChainID                string        `json:"chain_id"`
	Height                 uint64        `json:"height"`
	Target                 types.Target  `json:"target"`
	LastNonce              types.Nonce   `json:"last_nonce"`
	LastAcceptedTime       uint64        `json:"last_accepted_time"`
	LastRetargetCheckpoint uint64        `json:"last_retarget_checkpoint"`
	Operator               types.Address `json:"operator"`
	Paused                 bool          `json:"paused"`
	LiquidityPool          types.Address `json:"liquidity_pool"`
	Governance             types.Address `json:"governance"`
}

// TargetResult is returned by issuance_nextTarget.
type TargetResult struct {
	Target types.Target `json:"target"`
}

// RewardResult is returned by issuance_currentReward.
type RewardResult struct {
	Height      uint64 `json:"height"` // Pre-increment height the reward applies to
	MinerReward uint64 `json:"miner_reward"`
	PoolReward  uint64 `json:"pool_reward"`
}

// RulesResult is returned by issuance_getRules.
type RulesResult struct {
	ChainID  string               `json:"chain_id"`
	Symbol   string               `json:"symbol,omitempty"`
	Decimals int                  `json:"decimals"`
	Rules    config.IssuanceRules `json:"rules"`
}

// BalanceResult is returned by ledger_getBalance.
type BalanceResult struct {
	Address types.Address `json:"address"`
	Balance uint64        `json:"balance"`
}

// SupplyResult is returned by ledger_getSupply.
type SupplyResult struct {
	Supply    uint64 `json:"supply"`
	MaxSupply uint64 `json:"max_supply"` // 0 = unlimited
}

// EpochResult is returned by governance_getEpoch.
type EpochResult struct {
	Epoch      uint64 `json:"epoch"`
	AdvancedAt uint64 `json:"advanced_at,omitempty"`
}

// NodeInfoResult is returned by net_getNodeInfo.
type NodeInfoResult struct {
	ChainID      string   `json:"chain_id"`
	Version      string   `json:"version"`
	ID           string   `json:"id"`
	Addrs        []string `json:"addrs"`
	Peers        int      `json:"peers"`
	RemoteHeight uint64   `json:"remote_height"`
}

// AdminResult is returned by every admin_* method.
type AdminResult struct {
	Paused        bool          `json:"paused"`
	LiquidityPool types.Address `json:"liquidity_pool"`
	Governance    types.Address `json:"governance"`
}
