package p2p

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/protocol"
)

// defaultNetwork names the topic namespace when no NetworkID is set.
const defaultNetwork = "powmint"

// Stream protocol IDs.
const (
	// HandshakeProtocol is the stream protocol ID for peer compatibility checking.
	HandshakeProtocol = protocol.ID("/powmint/handshake/1.0.0")

	// HeightProtocol is the protocol ID for querying issuance height.
	HeightProtocol = protocol.ID("/powmint/height/1.0.0")
)

// Handshake protocol versions.
const (
	// ProtocolVersion is the current protocol version advertised during handshake.
	ProtocolVersion uint32 = 1

	// MinProtocolVersion is the minimum protocol version we accept from peers.
	MinProtocolVersion uint32 = 1
)

// maxMessageSize bounds a single gossip message. Reward announcements are a
// few hundred bytes of JSON.
const maxMessageSize = 64 << 10

// RewardTopic returns the GossipSub topic carrying accepted reward events
// for a network.
func RewardTopic(networkID string) string {
	if networkID == "" {
		networkID = defaultNetwork
	}
	return fmt.Sprintf("/powmint/%s/reward/1.0.0", networkID)
}
