package rpcclient

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/rpc"
	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// State returns the issuance state and admin settings.
func (c *Client) State() (*rpc.StateResult, error) {
	var r rpc.StateResult
	if err := c.Call("issuance_getState", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Work returns the puzzle for the next submission.
func (c *Client) Work() (*issuance.Work, error) {
	var w issuance.Work
	if err := c.Call("issuance_getWork", nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// NextTarget returns the target the next submission must meet.
func (c *Client) NextTarget() (types.Target, error) {
	var r rpc.TargetResult
	if err := c.Call("issuance_nextTarget", nil, &r); err != nil {
		return types.Target{}, err
	}
	return r.Target, nil
}

// CurrentReward returns the rewards the next submission would mint.
func (c *Client) CurrentReward() (*rpc.RewardResult, error) {
	var r rpc.RewardResult
	if err := c.Call("issuance_currentReward", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Submit sends a proof candidate credited to submitter.
func (c *Client) Submit(candidate types.Nonce, submitter types.Address) (*issuance.RewardEvent, error) {
	p := rpc.SubmitParam{
		Candidate: hex.EncodeToString(candidate[:]),
		Submitter: submitter.String(),
	}
	var ev issuance.RewardEvent
	if err := c.Call("issuance_submit", p, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Events returns up to limit reward events starting at height from.
func (c *Client) Events(from uint64, limit int) ([]issuance.RewardEvent, error) {
	var evs []issuance.RewardEvent
	if err := c.Call("issuance_getEvents", rpc.EventsParam{From: from, Limit: limit}, &evs); err != nil {
		return nil, err
	}
	return evs, nil
}

// Rules returns the chain's issuance rules.
func (c *Client) Rules() (*rpc.RulesResult, error) {
	var r rpc.RulesResult
	if err := c.Call("issuance_getRules", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Balance returns the ledger balance of addr.
func (c *Client) Balance(addr types.Address) (uint64, error) {
	var r rpc.BalanceResult
	if err := c.Call("ledger_getBalance", rpc.AddressParam{Address: addr.String()}, &r); err != nil {
		return 0, err
	}
	return r.Balance, nil
}

// Supply returns the minted supply and cap.
func (c *Client) Supply() (*rpc.SupplyResult, error) {
	var r rpc.SupplyResult
	if err := c.Call("ledger_getSupply", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Epoch returns the governance epoch.
func (c *Client) Epoch() (*rpc.EpochResult, error) {
	var r rpc.EpochResult
	if err := c.Call("governance_getEpoch", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// NodeInfo returns the node's identity and peer summary.
func (c *Client) NodeInfo() (*rpc.NodeInfoResult, error) {
	var r rpc.NodeInfoResult
	if err := c.Call("net_getNodeInfo", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ── Admin ───────────────────────────────────────────────────────────────

// Pause stops submissions. key must be the operator's.
func (c *Client) Pause(key *crypto.PrivateKey) (*rpc.AdminResult, error) {
	return c.admin(key, "admin_pause", "")
}

// Resume re-enables submissions.
func (c *Client) Resume(key *crypto.PrivateKey) (*rpc.AdminResult, error) {
	return c.admin(key, "admin_resume", "")
}

// SetLiquidityPool changes the pool reward recipient.
func (c *Client) SetLiquidityPool(key *crypto.PrivateKey, pool types.Address) (*rpc.AdminResult, error) {
	return c.admin(key, "admin_setLiquidityPool", pool.String())
}

// SetGovernance changes the governance address.
func (c *Client) SetGovernance(key *crypto.PrivateKey, gov types.Address) (*rpc.AdminResult, error) {
	return c.admin(key, "admin_setGovernance", gov.String())
}

func (c *Client) admin(key *crypto.PrivateKey, method, arg string) (*rpc.AdminResult, error) {
	chainID, err := c.adminChainID()
	if err != nil {
		return nil, err
	}

	c.adminMu.Lock()
	issuedAt := time.Now().Unix()
	if issuedAt <= c.lastIssued {
		issuedAt = c.lastIssued + 1
	}
	c.lastIssued = issuedAt
	c.adminMu.Unlock()

	digest := rpc.AdminDigest(chainID, method, arg, issuedAt)
	sig, err := key.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}
	p := rpc.AdminParam{
		PubKey:    hex.EncodeToString(key.PublicKey()),
		Signature: hex.EncodeToString(sig),
		IssuedAt:  issuedAt,
		Arg:       arg,
	}
	var r rpc.AdminResult
	if err := c.Call(method, p, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// adminChainID returns the node's chain ID, asking the node once.
func (c *Client) adminChainID() (string, error) {
	c.adminMu.Lock()
	id := c.chainID
	c.adminMu.Unlock()
	if id != "" {
		return id, nil
	}

	r, err := c.Rules()
	if err != nil {
		return "", fmt.Errorf("fetch chain id: %w", err)
	}
	c.adminMu.Lock()
	c.chainID = r.ChainID
	c.adminMu.Unlock()
	return r.ChainID, nil
}
