package p2p

import (
	"context"
	"sort"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// PeerSource records how a peer was found.
type PeerSource string

const (
	SourceSeed    PeerSource = "seed"
	SourceMDNS    PeerSource = "mdns"
	SourceDHT     PeerSource = "dht"
	SourceBook    PeerSource = "book" // Redialed from the address book
	SourceInbound PeerSource = "inbound"
)

// Peer is a connected peer and the issuance height it last reported.
type Peer struct {
	ID          peer.ID
	ConnectedAt time.Time
	Source      PeerSource
	Height      uint64
}

// addPeer tracks id. A known peer keeps its entry; src only fills an
// unset source.
func (n *Node) addPeer(id peer.ID, src PeerSource) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.peers == nil {
		n.peers = make(map[peer.ID]*Peer)
	}
	if p, ok := n.peers[id]; ok {
		if p.Source == "" {
			p.Source = src
		}
		return
	}
	n.peers[id] = &Peer{ID: id, ConnectedAt: time.Now(), Source: src}
}

func (n *Node) removePeer(id peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

// notePeerHeight raises the height recorded for a tracked peer.
func (n *Node) notePeerHeight(id peer.ID, h uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.peers[id]; ok && h > p.Height {
		p.Height = h
	}
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// PeerList returns a snapshot of connected peers, highest height first.
func (n *Node) PeerList() []Peer {
	n.mu.RLock()
	out := make([]Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, *p)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// peerEvents feeds connection and mDNS events into the peer table.
type peerEvents struct {
	node *Node
}

func (e *peerEvents) Connected(_ network.Network, conn network.Conn) {
	n := e.node
	id := conn.RemotePeer()
	if id == n.host.ID() {
		return
	}
	var src PeerSource
	if conn.Stat().Direction == network.DirInbound {
		src = SourceInbound
	}
	n.addPeer(id, src)
	if fn := n.onPeerConnected; fn != nil {
		go fn(id)
	}
	// The dialer opens the handshake; inbound ones arrive on the stream handler.
	if n.handshakeEnabled && conn.Stat().Direction == network.DirOutbound {
		go n.doHandshake(id)
	}
}

func (e *peerEvents) Disconnected(net network.Network, conn network.Conn) {
	id := conn.RemotePeer()
	if len(net.ConnsToPeer(id)) == 0 {
		e.node.removePeer(id)
	}
}

func (e *peerEvents) Listen(network.Network, ma.Multiaddr)      {}
func (e *peerEvents) ListenClose(network.Network, ma.Multiaddr) {}

// HandlePeerFound dials a peer announced over mDNS.
func (e *peerEvents) HandlePeerFound(pi peer.AddrInfo) {
	n := e.node
	if pi.ID == n.host.ID() || n.scorer.Banned(pi.ID) {
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
	defer cancel()
	if err := n.host.Connect(ctx, pi); err == nil {
		n.addPeer(pi.ID, SourceMDNS)
	}
}
