package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/powmint/pkg/types"
)

// heightReadTimeout is the max time to read a height response.
const heightReadTimeout = 5 * time.Second

// HeightResponse contains a peer's issuance height and last accepted nonce.
type HeightResponse struct {
	Height    uint64      `json:"height"`
	LastNonce types.Nonce `json:"last_nonce"`
}

// RegisterHeightHandler registers a stream handler that responds with the
// local issuance height and last nonce.
func (n *Node) RegisterHeightHandler(fn func() HeightResponse) {
	n.host.SetStreamHandler(HeightProtocol, func(stream network.Stream) {
		defer stream.Close()

		resp := fn()
		json.NewEncoder(stream).Encode(&resp)
	})
}

// RequestHeight queries a peer for its issuance height. A plausible answer
// also raises RemoteHeight; one past the height ceiling is returned with
// ErrHeightTooFarOff.
func (n *Node) RequestHeight(ctx context.Context, peerID peer.ID) (*HeightResponse, error) {
	if n.host == nil {
		return nil, fmt.Errorf("p2p node not started")
	}
	stream, err := n.host.NewStream(ctx, peerID, HeightProtocol)
	if err != nil {
		return nil, fmt.Errorf("open height stream: %w", err)
	}
	defer stream.Close()

	// Signal we're done writing (request is empty, just opening the stream).
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(heightReadTimeout))

	var resp HeightResponse
	if err := json.NewDecoder(io.LimitReader(stream, 1024)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read height response: %w", err)
	}

	if !n.observeHeight(peerID, resp.Height) {
		return &resp, fmt.Errorf("%w: peer reports %d", ErrHeightTooFarOff, resp.Height)
	}
	return &resp, nil
}
