// Package p2p implements peer-to-peer networking using libp2p.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	klog "github.com/Klingon-tech/powmint/internal/log"
	"github.com/Klingon-tech/powmint/internal/storage"
	"github.com/Klingon-tech/powmint/pkg/types"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
)

const (
	// dhtRendezvousFallback is the default DHT namespace when no NetworkID is set.
	dhtRendezvousFallback = defaultNetwork

	// dhtDiscoveryInterval is how often DHT FindPeers runs.
	dhtDiscoveryInterval = 30 * time.Second

	// peerConnectTimeout is the timeout for connecting to a remembered peer.
	peerConnectTimeout = 5 * time.Second

	// DefaultMaxHeightLead is how far past the best known height a peer may
	// claim to be.
	DefaultMaxHeightLead = 10_000
)

// Config holds P2P node configuration.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string
	MaxPeers   int
	NoDiscover bool
	DB         storage.DB // Ban and address persistence (nil = disabled, for tests)
	DHTServer  bool       // Run DHT in server mode (for seeds)
	NetworkID  string     // Chain ID; isolates DHT and topics per network
	DataDir    string     // Data directory for persisting node identity

	// MaxTarget is the genesis maximum target. Announcements claiming an
	// easier target are rejected; the zero value rejects all of them.
	MaxTarget types.Target
	// MaxHeightLead bounds reported heights relative to the best known one
	// (0 = DefaultMaxHeightLead).
	MaxHeightLead uint64
}

// Node represents a P2P node built on libp2p.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	config Config
	ctx    context.Context
	cancel context.CancelFunc

	topicReward   *pubsub.Topic
	subReward     *pubsub.Subscription
	rewardHandler func(peer.ID, *RewardAnnouncement)

	mu    sync.RWMutex
	peers map[peer.ID]*Peer

	scorer          *Scorer
	book            *AddrBook     // nil if Config.DB is nil
	dht             *dht.IpfsDHT  // nil if NoDiscover
	events          *peerEvents   // connection lifecycle tracker
	onPeerConnected func(peer.ID) // optional callback when a peer connects

	// Handshake fields.
	genesisHash      types.Hash
	handshakeEnabled bool
	heightFn         func() uint64

	remoteHeight atomic.Uint64 // Highest plausible height seen from any peer
}

// New creates a new P2P node with the given config.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.MaxHeightLead == 0 {
		cfg.MaxHeightLead = DefaultMaxHeightLead
	}
	n := &Node{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[peer.ID]*Peer),
	}
	n.scorer = NewScorer(cfg.DB, n.dropBanned)
	if cfg.DB != nil {
		n.book = NewAddrBook(cfg.DB)
	}
	return n
}

// rendezvous returns the DHT/mDNS discovery namespace for this node.
// When NetworkID is set, it isolates peer discovery per network.
func (n *Node) rendezvous() string {
	if n.config.NetworkID != "" {
		return "powmint/" + n.config.NetworkID
	}
	return dhtRendezvousFallback
}

// Start initializes the libp2p host, pubsub, and begins listening.
func (n *Node) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)

	if err := n.scorer.Load(); err != nil {
		klog.P2P.Warn().Err(err).Msg("Persisted bans not loaded")
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(addr),
		libp2p.ConnectionGater(n.scorer),
	}

	// Load or generate persistent identity so peer ID survives restarts.
	if n.config.DataDir != "" {
		privKey, err := loadOrCreateIdentity(n.config.DataDir)
		if err != nil {
			return fmt.Errorf("load p2p identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(privKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h

	n.events = &peerEvents{node: n}
	h.Network().Notify(n.events)

	// Init DHT before GossipSub so the DHT can serve as a peer source.
	if !n.config.NoDiscover {
		if err := n.initDHT(); err != nil {
			h.Close()
			return fmt.Errorf("init dht: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(n.ctx, h,
		pubsub.WithMaxMessageSize(maxMessageSize),
	)
	if err != nil {
		n.closeDHT()
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	if err := n.joinTopics(); err != nil {
		n.closeDHT()
		h.Close()
		return err
	}

	if n.handshakeEnabled {
		n.registerHandshakeHandler()
	}

	go n.readLoop(n.subReward, n.handleRewardMessage)
	go n.redialBook()

	// First seed attempt is blocking, retries run in background.
	if len(n.config.Seeds) > 0 {
		klog.P2P.Info().Int("seeds", len(n.config.Seeds)).Msg("Connecting to seeds...")
	}
	n.connectSeedsOnce()
	go n.connectSeedsLoop()

	if !n.config.NoDiscover {
		n.startMDNS()
		go n.runDHTDiscovery()
	}

	go n.runMaintenance()
	return nil
}

// Stop shuts down the P2P node.
func (n *Node) Stop() error {
	n.saveAddrs()

	n.cancel()
	if n.subReward != nil {
		n.subReward.Cancel()
	}
	if n.topicReward != nil {
		n.topicReward.Close()
	}

	n.closeDHT()
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

// Host returns the underlying libp2p host (nil before Start).
func (n *Node) Host() host.Host {
	return n.host
}

// SetPeerConnectedHandler registers a callback invoked when a new peer connects.
func (n *Node) SetPeerConnectedHandler(fn func(peer.ID)) {
	n.onPeerConnected = fn
}

// SetGenesisHash enables the handshake protocol for peers on genesis h. A
// zero hash disables it.
func (n *Node) SetGenesisHash(h types.Hash) {
	n.genesisHash = h
	n.handshakeEnabled = h != types.Hash{}
}

// SetHeightFn sets the source of the local issuance height.
func (n *Node) SetHeightFn(fn func() uint64) {
	n.heightFn = fn
}

// DisconnectPeer closes all connections to a peer and removes it from the peer list.
func (n *Node) DisconnectPeer(id peer.ID) error {
	if n.host == nil {
		return fmt.Errorf("node not started")
	}
	n.removePeer(id)
	return n.host.Network().ClosePeer(id)
}

// dropBanned disconnects a freshly banned peer and forgets its addresses.
func (n *Node) dropBanned(id peer.ID) {
	if n.book != nil {
		_ = n.book.Remove(id)
	}
	if n.host != nil {
		n.DisconnectPeer(id)
	}
}

// Bans returns the active bans.
func (n *Node) Bans() []Ban {
	return n.scorer.Bans()
}

// Banned reports whether id is banned.
func (n *Node) Banned(id peer.ID) bool {
	return n.scorer.Banned(id)
}

// ID returns the peer ID of this node.
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// NodeID returns the peer ID as a string ("" before Start).
func (n *Node) NodeID() string {
	return n.ID().String()
}

// RemoteHeight returns the highest issuance height reported by any peer.
func (n *Node) RemoteHeight() uint64 {
	return n.remoteHeight.Load()
}

// heightCeiling is the highest height a peer may report: the best known
// height plus MaxHeightLead.
func (n *Node) heightCeiling() uint64 {
	best := n.remoteHeight.Load()
	if n.heightFn != nil {
		if local := n.heightFn(); local > best {
			best = local
		}
	}
	lead := n.config.MaxHeightLead
	if lead == 0 {
		lead = DefaultMaxHeightLead
	}
	if best > ^uint64(0)-lead {
		return ^uint64(0)
	}
	return best + lead
}

// observeHeight records h as reported by from and raises the tracked remote
// height. Heights above heightCeiling are ignored and reported as false.
func (n *Node) observeHeight(from peer.ID, h uint64) bool {
	if h > n.heightCeiling() {
		return false
	}
	n.notePeerHeight(from, h)
	for {
		cur := n.remoteHeight.Load()
		if h <= cur || n.remoteHeight.CompareAndSwap(cur, h) {
			return true
		}
	}
}

// Addrs returns the full multiaddrs of this node.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var addrs []string
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

func (n *Node) joinTopics() error {
	var err error
	n.topicReward, err = n.pubsub.Join(RewardTopic(n.config.NetworkID))
	if err != nil {
		return fmt.Errorf("join reward topic: %w", err)
	}
	n.subReward, err = n.topicReward.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe reward: %w", err)
	}
	return nil
}

func (n *Node) readLoop(sub *pubsub.Subscription, handler func(*pubsub.Message)) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return // Context cancelled.
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue // Skip own messages.
		}
		handler(msg)
	}
}

func (n *Node) startMDNS() {
	svc := mdns.NewMdnsService(n.host, n.rendezvous(), n.events)
	// mDNS failure is non-fatal.
	_ = svc.Start()
}

// connectSeedsOnce tries to connect to each seed peer once (blocking).
// Returns true if at least one seed connected.
func (n *Node) connectSeedsOnce() bool {
	logger := klog.P2P
	connected := false
	for _, addr := range n.config.Seeds {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			logger.Warn().Str("addr", addr).Err(err).Msg("Bad seed address")
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
		err = n.host.Connect(ctx, *info)
		cancel()
		if err != nil {
			logger.Warn().Str("peer", shortID(info.ID)).Err(err).Msg("Seed connect failed")
		} else {
			n.addPeer(info.ID, SourceSeed)
			logger.Info().Str("peer", shortID(info.ID)).Msg("Seed connected")
			connected = true
		}
	}
	return connected
}

// connectSeedsLoop retries seed connections every 10s while the node has
// no peers.
func (n *Node) connectSeedsLoop() {
	if len(n.config.Seeds) == 0 {
		return
	}
	logger := klog.P2P

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(10 * time.Second):
			if n.PeerCount() == 0 {
				logger.Info().Int("seeds", len(n.config.Seeds)).Msg("No peers, retrying seeds...")
				n.connectSeedsOnce()
			}
		}
	}
}

// runMaintenance periodically saves the address book and forgets decayed
// scores.
func (n *Node) runMaintenance() {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.saveAddrs()
			n.scorer.Prune()
			if n.book != nil {
				n.book.Expire()
			}
		}
	}
}

// --- DHT ---

func (n *Node) initDHT() error {
	mode := dht.ModeClient
	if n.config.DHTServer {
		mode = dht.ModeServer
	}
	kadDHT, err := dht.New(n.ctx, n.host, dht.Mode(mode))
	if err != nil {
		return fmt.Errorf("create kad-dht: %w", err)
	}
	n.dht = kadDHT
	return kadDHT.Bootstrap(n.ctx)
}

func (n *Node) closeDHT() {
	if n.dht != nil {
		n.dht.Close()
		n.dht = nil
	}
}

func (n *Node) runDHTDiscovery() {
	if n.dht == nil {
		return
	}

	routingDiscovery := drouting.NewRoutingDiscovery(n.dht)
	dutil.Advertise(n.ctx, routingDiscovery, n.rendezvous())

	ticker := time.NewTicker(dhtDiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.findDHTPeers(routingDiscovery)
		}
	}
}

func (n *Node) findDHTPeers(routingDiscovery *drouting.RoutingDiscovery) {
	ctx, cancel := context.WithTimeout(n.ctx, 20*time.Second)
	defer cancel()

	peerCh, err := routingDiscovery.FindPeers(ctx, n.rendezvous())
	if err != nil {
		return
	}

	for p := range peerCh {
		if p.ID == n.host.ID() || len(p.Addrs) == 0 || n.scorer.Banned(p.ID) {
			continue
		}
		if n.config.MaxPeers > 0 && n.PeerCount() >= n.config.MaxPeers {
			return
		}

		connectCtx, connectCancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		if err := n.host.Connect(connectCtx, p); err == nil {
			n.addPeer(p.ID, SourceDHT)
		}
		connectCancel()
	}
}

// loadOrCreateIdentity loads a persisted libp2p identity key from dataDir,
// or generates a new one and saves it. This ensures the peer ID is stable.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "node.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}

	return priv, nil
}
