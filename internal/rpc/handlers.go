package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// Event paging bounds for issuance_getEvents.
const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// issuanceError maps an issuance failure to its JSON-RPC error code.
func issuanceError(err error) *Error {
	code := CodeInternalError
	switch {
	case errors.Is(err, issuance.ErrReentrantCall):
		code = CodeReentrant
	case errors.Is(err, issuance.ErrPaused):
		code = CodePaused
	case errors.Is(err, issuance.ErrProofRejected):
		code = CodeProofRejected
	case errors.Is(err, issuance.ErrUnauthorized):
		code = CodeUnauthorized
	case errors.Is(err, issuance.ErrArithmetic):
		code = CodeArithmetic
	case errors.Is(err, issuance.ErrCapability):
		code = CodeCapability
	}
	return &Error{Code: code, Message: err.Error()}
}

func parseAddress(s string) (types.Address, *Error) {
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid address: %v", err)}
	}
	return addr, nil
}

// ── Issuance ────────────────────────────────────────────────────────────

func (s *Server) handleGetState(_ *Request) (interface{}, *Error) {
	st := s.issuer.State()
	admin := s.issuer.Admin()
	return &StateResult{
		ChainID:                s.genesis.ChainID,
		Height:                 st.Height,
		Target:                 st.Target,
		LastNonce:              st.LastNonce,
		LastAcceptedTime:       st.LastAcceptedTime,
		LastRetargetCheckpoint: st.LastRetargetCheckpoint,
		Operator:               admin.Operator,
		Paused:                 admin.Paused,
		LiquidityPool:          admin.LiquidityPool,
		Governance:             admin.Governance,
	}, nil
}

func (s *Server) handleGetWork(_ *Request) (interface{}, *Error) {
	w, err := s.issuer.Work()
	if err != nil {
		return nil, issuanceError(err)
	}
	return &w, nil
}

func (s *Server) handleNextTarget(_ *Request) (interface{}, *Error) {
	t, err := s.issuer.NextTarget()
	if err != nil {
		return nil, issuanceError(err)
	}
	return &TargetResult{Target: t}, nil
}

func (s *Server) handleCurrentReward(_ *Request) (interface{}, *Error) {
	height := s.issuer.State().Height
	miner, pool, err := s.issuer.CurrentReward()
	if err != nil {
		return nil, issuanceError(err)
	}
	return &RewardResult{Height: height, MinerReward: miner, PoolReward: pool}, nil
}

func (s *Server) handleSubmit(ctx context.Context, req *Request) (interface{}, *Error) {
	var p SubmitParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	candidate, err := types.HexToNonce(p.Candidate)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid candidate: %v", err)}
	}
	submitter, rpcErr := parseAddress(p.Submitter)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.submitMu.Lock()
	ev, err := s.issuer.Submit(ctx, candidate, submitter)
	s.submitMu.Unlock()
	if err != nil {
		s.logger.Debug().Err(err).Str("submitter", submitter.String()).Msg("Submission rejected")
		return nil, issuanceError(err)
	}
	return ev, nil
}

func (s *Server) handleGetEvents(req *Request) (interface{}, *Error) {
	var p EventsParam
	if req.Params != nil {
		if err := parseParams(req, &p); err != nil {
			return nil, err
		}
	}
	if p.Limit <= 0 {
		p.Limit = defaultEventLimit
	}
	if p.Limit > maxEventLimit {
		p.Limit = maxEventLimit
	}
	events, err := s.issuer.Events(p.From, p.Limit)
	if err != nil {
		return nil, issuanceError(err)
	}
	if events == nil {
		events = []issuance.RewardEvent{}
	}
	return events, nil
}

func (s *Server) handleGetRules(_ *Request) (interface{}, *Error) {
	return &RulesResult{
		ChainID:  s.genesis.ChainID,
		Symbol:   s.genesis.Symbol,
		Decimals: config.Decimals,
		Rules:    s.issuer.Rules(),
	}, nil
}

// ── Ledger ──────────────────────────────────────────────────────────────

func (s *Server) handleGetBalance(req *Request) (interface{}, *Error) {
	var p AddressParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress(p.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := s.ledger.BalanceOf(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &BalanceResult{Address: addr, Balance: bal}, nil
}

func (s *Server) handleGetSupply(_ *Request) (interface{}, *Error) {
	supply, err := s.ledger.TotalSupply()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &SupplyResult{Supply: supply, MaxSupply: s.ledger.MaxSupply()}, nil
}

// ── Governance / Net ────────────────────────────────────────────────────

func (s *Server) handleGetEpoch(_ *Request) (interface{}, *Error) {
	if s.gov == nil {
		return nil, &Error{Code: CodeNotFound, Message: "governance not enabled"}
	}
	rec := s.gov.Record()
	return &EpochResult{Epoch: rec.Epoch, AdvancedAt: rec.AdvancedAt}, nil
}

func (s *Server) handleNetGetNodeInfo(_ *Request) (interface{}, *Error) {
	info := &NodeInfoResult{
		ChainID: s.genesis.ChainID,
		Version: config.Version,
		Addrs:   []string{},
	}
	if s.net != nil {
		info.ID = s.net.NodeID()
		info.Addrs = s.net.Addrs()
		info.Peers = s.net.PeerCount()
		info.RemoteHeight = s.net.RemoteHeight()
	}
	return info, nil
}
