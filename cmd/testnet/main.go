// Command testnet boots a 2-node local issuance network from scratch.
//
// Usage: go run ./cmd/testnet/
//
// It builds an easy genesis, boots two in-process nodes connected over
// libp2p, mines a fixed number of proofs on the first node and gossips each
// accepted reward. The second node re-verifies every announcement; the run
// succeeds when it has seen all of them. Ctrl+C for early shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/governance"
	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/ledger"
	klog "github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/internal/miner"
	"github.com/Klingon-tech/powmint/internal/p2p"
	"github.com/Klingon-tech/powmint/internal/storage"
	"github.com/Klingon-tech/powmint/pkg/types"
)

const (
	numProofs = 10
	threads   = 2
)

// nodeBundle groups all components for one logical node.
type nodeBundle struct {
	name   string
	ledger *ledger.Ledger
	issuer *issuance.Issuer
	p2p    *p2p.Node

	mu   sync.Mutex
	seen map[uint64]issuance.RewardEvent // Verified remote announcements by height
}

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("testnet")

	logger.Info().Msg("=== Powmint 2-Node Local Testnet ===")

	// ── Phase 1: Genesis ─────────────────────────────────────────────────

	gen := config.TestnetGenesis()
	gen.ChainID = "powmint-testnet-local"
	gen.ChainName = "Local Testnet"
	gen.Timestamp = uint64(time.Now().Unix())
	// A few thousand hashes per proof.
	gen.Issuance.MaxTarget = types.TargetFromInt(new(uint256.Int).Lsh(uint256.NewInt(1), 244))
	if err := gen.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("validate genesis")
	}
	genesisHash, err := gen.Hash()
	if err != nil {
		logger.Fatal().Err(err).Msg("hash genesis")
	}

	logger.Info().
		Str("chain_id", gen.ChainID).
		Str("max_target", gen.Issuance.MaxTarget.String()).
		Msg("Genesis config created")

	// ── Phase 2: Build Nodes ─────────────────────────────────────────────

	node1, err := buildNode("node-1", gen, genesisHash)
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-1")
	}
	node2, err := buildNode("node-2", gen, genesisHash)
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-2")
	}

	// ── Phase 3: Start P2P + Connect ─────────────────────────────────────

	if err := node1.p2p.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start node-1 p2p")
	}
	if err := node2.p2p.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start node-2 p2p")
	}
	defer cleanup(node1, node2)

	logger.Info().
		Str("node1_id", node1.p2p.NodeID()).
		Str("node2_id", node2.p2p.NodeID()).
		Msg("P2P nodes started")

	connectNodes(node1.p2p, node2.p2p)
	time.Sleep(500 * time.Millisecond) // GossipSub mesh stabilization.

	logger.Info().
		Int("node1_peers", node1.p2p.PeerCount()).
		Int("node2_peers", node2.p2p.PeerCount()).
		Msg("Nodes connected")

	// ── Phase 4: Signal handling ─────────────────────────────────────────

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── Phase 5: Mining ──────────────────────────────────────────────────

	coinbase, _ := types.ParseAddress(config.TestnetOperator)
	m := miner.New(node1.issuer, coinbase, threads)

	logger.Info().Int("proofs", numProofs).Msg("Starting mining")

	for mined := 0; mined < numProofs && ctx.Err() == nil; {
		prev := node1.issuer.State().LastNonce
		ev, err := m.MineOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("Mining interrupted")
				break
			}
			logger.Fatal().Err(err).Msg("mine proof")
		}
		mined++

		a := &p2p.RewardAnnouncement{Event: *ev, PrevNonce: prev}
		if err := node1.p2p.BroadcastReward(a); err != nil {
			logger.Error().Err(err).Msg("broadcast reward")
		}
		logger.Info().
			Uint64("height", ev.Height).
			Str("candidate", ev.Candidate.String()[:18]+"...").
			Uint64("reward", ev.MinerReward).
			Str("target", ev.Target.String()[:18]+"...").
			Msg("Proof mined")
	}

	// ── Phase 6: Verification ────────────────────────────────────────────

	// Wait for the last announcement to propagate.
	time.Sleep(2 * time.Second)

	h1 := node1.issuer.State().Height
	seen := node2.seenCount()
	rh := node2.p2p.RemoteHeight()
	bal, _ := node1.ledger.BalanceOf(coinbase)
	supply, _ := node1.ledger.TotalSupply()
	next, _ := node1.issuer.NextTarget()

	logger.Info().
		Uint64("node1_height", h1).
		Int("node2_seen", seen).
		Uint64("node2_remote_height", rh).
		Msg("Final state")

	if h1 > 0 && uint64(seen) == h1 && rh == h1 {
		logger.Info().Msg("SUCCESS: every reward announcement verified on node-2")
		fmt.Println()
		fmt.Printf("  Proofs mined:     %d\n", h1)
		fmt.Printf("  Next target:      %s\n", next)
		fmt.Printf("  Coinbase balance: %d coins\n", bal/config.Coin)
		fmt.Printf("  Total supply:     %d coins\n", supply/config.Coin)
		fmt.Printf("  Decimals:         %d\n", config.Decimals)
		fmt.Println()
	} else {
		logger.Error().Msg("FAILURE: node-2 missed reward announcements")
		os.Exit(1)
	}
}

// buildNode creates an in-memory node with ledger, governance, issuer and p2p.
func buildNode(name string, gen *config.Genesis, genesisHash types.Hash) (*nodeBundle, error) {
	nodeLogger := klog.WithComponent(name)
	db := storage.NewMemory()

	l := ledger.New(storage.NewPrefixDB(db, []byte("l/")), gen.Issuance.MaxSupply)
	if err := l.ApplyGenesis(gen); err != nil {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	gov, err := governance.New(storage.NewPrefixDB(db, []byte("g/")))
	if err != nil {
		return nil, fmt.Errorf("create governance: %w", err)
	}
	iss, err := issuance.New(issuance.Config{
		Rules:         &gen.Issuance,
		Store:         issuance.NewStore(storage.NewPrefixDB(db, []byte("i/"))),
		Operator:      gen.Operator,
		LiquidityPool: gen.LiquidityPool,
		Governance:    gen.Governance,
		Minter:        l,
		Advancer:      gov,
	})
	if err != nil {
		return nil, fmt.Errorf("create issuer: %w", err)
	}

	p2pNode := p2p.New(p2p.Config{
		ListenAddr: "127.0.0.1",
		Port:       0, // Random port.
		NoDiscover: true,
		NetworkID:  gen.ChainID,
		MaxTarget:  gen.Issuance.MaxTarget,
	})
	// Handshake: only peers on the same genesis are accepted.
	p2pNode.SetGenesisHash(genesisHash)
	p2pNode.SetHeightFn(func() uint64 { return iss.State().Height })

	nb := &nodeBundle{
		name:   name,
		ledger: l,
		issuer: iss,
		p2p:    p2pNode,
		seen:   make(map[uint64]issuance.RewardEvent),
	}
	p2pNode.SetRewardHandler(func(from libp2ppeer.ID, a *p2p.RewardAnnouncement) {
		nb.mu.Lock()
		nb.seen[a.Event.Height] = a.Event
		nb.mu.Unlock()
		nodeLogger.Info().
			Uint64("height", a.Event.Height).
			Str("from", from.String()[:16]+"...").
			Msg("Reward announcement verified")
	})
	return nb, nil
}

func (nb *nodeBundle) seenCount() int {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return len(nb.seen)
}

// connectNodes connects two P2P nodes directly.
func connectNodes(a, b *p2p.Node) {
	aHost := a.Host()
	info := libp2ppeer.AddrInfo{
		ID:    aHost.ID(),
		Addrs: aHost.Addrs(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.Host().Connect(ctx, info)
}

// cleanup stops all P2P nodes.
func cleanup(nodes ...*nodeBundle) {
	for _, n := range nodes {
		n.p2p.Stop()
	}
}
