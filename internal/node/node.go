// Package node wires the issuer, its collaborators and the network surfaces
// into a single embeddable service.
package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/governance"
	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/ledger"
	klog "github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/internal/miner"
	"github.com/Klingon-tech/powmint/internal/p2p"
	"github.com/Klingon-tech/powmint/internal/rpc"
	"github.com/Klingon-tech/powmint/internal/storage"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// Storage namespaces inside the node database.
var (
	prefixLedger     = []byte("l/")
	prefixGovernance = []byte("g/")
	prefixIssuance   = []byte("i/")
	prefixPeers      = []byte("p/")
)

// heightQueryTimeout bounds the height request sent to a new peer.
const heightQueryTimeout = 10 * time.Second

// Node is a fully-initialized issuance node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db     *storage.BadgerDB
	ledger *ledger.Ledger
	gov    *governance.Governor
	issuer *issuance.Issuer

	// Networking
	p2pNode *p2p.Node

	// RPC
	rpcServer *rpc.Server

	// Mining
	coinbase types.Address

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, genesis, storage, issuer, P2P, RPC) but does NOT start the
// miner. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "powmint.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(logFile)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, err := cfg.Genesis()
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	genesisHash, err := genesis.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash genesis: %w", err)
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Uint64("retarget_period", genesis.Issuance.RetargetPeriod).
		Uint64("target_spacing", genesis.Issuance.TargetSpacing).
		Str("genesis", genesisHash.String()).
		Msg("Starting Powmint Node")

	// ── 3. Mining coinbase ──────────────────────────────────────────
	var coinbase types.Address
	if cfg.Mining.Enabled {
		coinbase, err = resolveCoinbase(cfg.Mining.Coinbase)
		if err != nil {
			return nil, err
		}
	}

	// ── 4. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
	}
	logger.Info().Str("path", cfg.DBDir()).Msg("Database opened")

	// From here on every failure must release what was already opened.
	var p2pNode *p2p.Node
	var rpcServer *rpc.Server
	fail := func(err error) (*Node, error) {
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if p2pNode != nil {
			p2pNode.Stop()
		}
		db.Close()
		return nil, err
	}

	// ── 5. Ledger ───────────────────────────────────────────────────
	l := ledger.New(storage.NewPrefixDB(db, prefixLedger), genesis.Issuance.MaxSupply)
	if err := l.ApplyGenesis(genesis); err != nil {
		return fail(fmt.Errorf("apply genesis: %w", err))
	}

	// ── 6. Governance ───────────────────────────────────────────────
	gov, err := governance.New(storage.NewPrefixDB(db, prefixGovernance))
	if err != nil {
		return fail(fmt.Errorf("open governance: %w", err))
	}

	// ── 7. Issuer ───────────────────────────────────────────────────
	iss, err := issuance.New(issuance.Config{
		Rules:         &genesis.Issuance,
		Store:         issuance.NewStore(storage.NewPrefixDB(db, prefixIssuance)),
		Operator:      genesis.Operator,
		LiquidityPool: genesis.LiquidityPool,
		Governance:    genesis.Governance,
		Minter:        l,
		Advancer:      gov,
	})
	if err != nil {
		return fail(fmt.Errorf("create issuer: %w", err))
	}
	st := iss.State()
	logger.Info().
		Uint64("height", st.Height).
		Str("target", st.Target.String()).
		Uint64("epoch", gov.Epoch()).
		Msg("Issuer initialized")

	// ── 8. P2P ──────────────────────────────────────────────────────
	if cfg.P2P.Enabled {
		p2pNode = p2p.New(p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			MaxPeers:   cfg.P2P.MaxPeers,
			NoDiscover: cfg.P2P.NoDiscover,
			DB:         storage.NewPrefixDB(db, prefixPeers),
			DHTServer:  cfg.P2P.DHTServer,
			NetworkID:  genesis.ChainID,
			DataDir:    cfg.ChainDataDir(),
			MaxTarget:  genesis.Issuance.MaxTarget,
		})
		p2pNode.SetGenesisHash(genesisHash)
		p2pNode.SetHeightFn(func() uint64 { return iss.State().Height })
		p2pNode.SetRewardHandler(func(from peer.ID, a *p2p.RewardAnnouncement) {
			logger.Info().
				Str("peer", from.String()).
				Uint64("height", a.Event.Height).
				Str("submitter", a.Event.Submitter.String()).
				Uint64("miner_reward", a.Event.MinerReward).
				Msg("Remote reward announced")
		})
		node := p2pNode
		p2pNode.SetPeerConnectedHandler(func(id peer.ID) {
			ctx, cancel := context.WithTimeout(context.Background(), heightQueryTimeout)
			defer cancel()
			if _, err := node.RequestHeight(ctx, id); err != nil {
				logger.Debug().Err(err).Str("peer", id.String()).Msg("Height query failed")
			}
		})

		if err := p2pNode.Start(); err != nil {
			p2pNode = nil
			return fail(fmt.Errorf("start p2p: %w", err))
		}
		p2pNode.RegisterHeightHandler(func() p2p.HeightResponse {
			st := iss.State()
			return p2p.HeightResponse{Height: st.Height, LastNonce: st.LastNonce}
		})

		iss.Subscribe(func(ev issuance.RewardEvent) {
			announceReward(p2pNode, iss, ev, logger)
		})

		logger.Info().
			Str("id", p2pNode.NodeID()).
			Strs("addrs", p2pNode.Addrs()).
			Msg("P2P node started")
	} else {
		logger.Warn().Msg("P2P disabled by config")
	}

	// ── 9. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
		rpcServer = rpc.New(rpcAddr, iss, l, genesis, cfg.RPC)
		rpcServer.SetGovernor(gov)
		if p2pNode != nil {
			rpcServer.SetNetInfo(p2pNode)
		}
		if err := rpcServer.Start(); err != nil {
			rpcServer = nil
			return fail(fmt.Errorf("start RPC at %s: %w", rpcAddr, err))
		}
		logger.Info().Str("addr", rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		genesis:   genesis,
		logger:    logger,
		db:        db,
		ledger:    l,
		gov:       gov,
		issuer:    iss,
		p2pNode:   p2pNode,
		rpcServer: rpcServer,
		coinbase:  coinbase,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// announceReward gossips an accepted submission together with the nonce it
// was solved against, so receivers can re-check the proof.
func announceReward(n *p2p.Node, iss *issuance.Issuer, ev issuance.RewardEvent, logger zerolog.Logger) {
	a := &p2p.RewardAnnouncement{Event: ev}
	if ev.Height > 1 {
		prev, err := iss.Events(ev.Height-1, 1)
		if err != nil || len(prev) == 0 {
			logger.Warn().Err(err).Uint64("height", ev.Height).Msg("Previous event missing, not announcing")
			return
		}
		a.PrevNonce = prev[0].Candidate
	}
	if err := n.BroadcastReward(a); err != nil {
		logger.Warn().Err(err).Uint64("height", ev.Height).Msg("Reward broadcast failed")
	}
}

// Start launches background work. With mining enabled it runs the local
// miner against the issuer.
func (n *Node) Start() error {
	if !n.cfg.Mining.Enabled {
		return nil
	}

	m := miner.New(n.issuer, n.coinbase, n.cfg.Mining.Threads)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		m.Run(n.ctx)
	}()
	return nil
}

// Stop shuts the node down in reverse start order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	if n.p2pNode != nil {
		if err := n.p2pNode.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("P2P shutdown")
		}
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Height returns the number of accepted submissions.
func (n *Node) Height() uint64 {
	return n.issuer.State().Height
}

// Issuer exposes the node's issuer.
func (n *Node) Issuer() *issuance.Issuer {
	return n.issuer
}

// Ledger exposes the node's ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}
