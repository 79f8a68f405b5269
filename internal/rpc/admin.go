package rpc

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// adminDomain separates admin call digests from every other signed message.
const adminDomain = "powmint-admin"

// AdminWindow bounds the clock skew, in seconds, tolerated on issued_at.
const AdminWindow = 120

// AdminDigest returns the message an operator signs to authorize method with
// arg at issuedAt (unix seconds) on the chain named chainID.
func AdminDigest(chainID, method, arg string, issuedAt int64) types.Hash {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(issuedAt))
	return crypto.HashParts(
		[]byte(adminDomain),
		[]byte(chainID),
		[]byte(method),
		[]byte(arg),
		ts[:],
	)
}

// authenticate verifies an admin signature and returns the caller address.
// Only the operator's calls consume an issued_at, and each must be newer
// than the last one accepted.
func (s *Server) authenticate(method string, p *AdminParam) (types.Address, *Error) {
	pub, err := hex.DecodeString(p.PubKey)
	if err != nil || crypto.ParsePublicKey(pub) != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "invalid pubkey"}
	}
	sig, err := hex.DecodeString(p.Signature)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "invalid signature encoding"}
	}

	digest := AdminDigest(s.genesis.ChainID, method, p.Arg, p.IssuedAt)
	if !crypto.VerifySignature(digest[:], sig, pub) {
		return types.Address{}, &Error{Code: CodeUnauthorized, Message: "signature verification failed"}
	}

	now := s.now().Unix()
	if p.IssuedAt < now-AdminWindow || p.IssuedAt > now+AdminWindow {
		return types.Address{}, &Error{Code: CodeUnauthorized, Message: fmt.Sprintf("issued_at %d outside ±%ds window", p.IssuedAt, AdminWindow)}
	}

	caller := crypto.AddressFromPubKey(pub)
	if caller != s.issuer.Admin().Operator {
		return types.Address{}, &Error{Code: CodeUnauthorized, Message: "caller is not the operator"}
	}

	s.adminMu.Lock()
	defer s.adminMu.Unlock()
	if p.IssuedAt <= s.lastAdminTime {
		return types.Address{}, &Error{Code: CodeUnauthorized, Message: "issued_at already used"}
	}
	s.lastAdminTime = p.IssuedAt

	return caller, nil
}

func (s *Server) handleAdmin(req *Request) (interface{}, *Error) {
	var p AdminParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	caller, rpcErr := s.authenticate(req.Method, &p)
	if rpcErr != nil {
		s.logger.Warn().Str("method", req.Method).Str("reason", rpcErr.Message).Msg("Admin call rejected")
		return nil, rpcErr
	}

	var err error
	switch req.Method {
	case "admin_pause":
		err = s.issuer.Pause(caller)
	case "admin_resume":
		err = s.issuer.Resume(caller)
	case "admin_setLiquidityPool", "admin_setGovernance":
		addr, rpcErr := parseAddress(p.Arg)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if req.Method == "admin_setLiquidityPool" {
			err = s.issuer.SetLiquidityPool(caller, addr)
		} else {
			err = s.issuer.SetGovernance(caller, addr)
		}
	}
	if err != nil {
		return nil, issuanceError(err)
	}

	a := s.issuer.Admin()
	return &AdminResult{Paused: a.Paused, LiquidityPool: a.LiquidityPool, Governance: a.Governance}, nil
}
