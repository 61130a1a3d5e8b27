package p2p

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// protocolBlockSync is the dedicated libp2p stream protocol ID used for bulk
// block sync (spec §4.8). Gossip announcements ride the pubsub topics in
// node.go; request/response traffic rides a direct stream instead, mirroring
// how the teacher splits Broadcast pubsub topics from its Dialer/net.Conn
// direct-connection helper in core/network.go.
const protocolBlockSync protocol.ID = "/provchain/blocksync/1.0.0"

// BlockResponseProvider answers a BlockRequest with the locally held blocks,
// implemented by the syncengine/core collaborator that owns the chain.
type BlockResponseProvider interface {
	HandleBlockRequest(req BlockRequestMessage) (BlockResponseMessage, error)
}

// ServeBlockSync registers a libp2p stream handler that answers incoming
// BlockRequest frames using provider. Call once after NewNode.
func (n *Node) ServeBlockSync(provider BlockResponseProvider) {
	n.host.SetStreamHandler(protocolBlockSync, func(s network.Stream) {
		defer s.Close()
		frame, err := ReadFrame(s)
		if err != nil {
			n.logger.Warnf("p2p: blocksync read request: %v", err)
			return
		}
		if frame.Kind != KindBlockRequest {
			n.logger.Warnf("p2p: blocksync unexpected frame kind %s", frame.Kind)
			return
		}
		var req BlockRequestMessage
		if err := frame.Decode(&req); err != nil {
			n.logger.Warnf("p2p: blocksync decode request: %v", err)
			return
		}
		resp, err := provider.HandleBlockRequest(req)
		if err != nil {
			n.logger.Warnf("p2p: blocksync handle request: %v", err)
			return
		}
		if err := WriteFrame(s, KindBlockResponse, resp); err != nil {
			n.logger.Warnf("p2p: blocksync write response: %v", err)
		}
	})
}

// RequestBlocks opens a direct stream to peerID, sends a BlockRequest frame,
// and returns the decoded BlockResponse.
func (n *Node) RequestBlocks(peerIDStr string, req BlockRequestMessage) (BlockResponseMessage, error) {
	pid, err := peer.Decode(peerIDStr)
	if err != nil {
		return BlockResponseMessage{}, fmt.Errorf("p2p: invalid peer id %s: %w", peerIDStr, err)
	}
	s, err := n.host.NewStream(n.ctx, pid, protocolBlockSync)
	if err != nil {
		return BlockResponseMessage{}, fmt.Errorf("p2p: open blocksync stream to %s: %w", peerIDStr, err)
	}
	defer s.Close()
	if err := WriteFrame(s, KindBlockRequest, req); err != nil {
		return BlockResponseMessage{}, fmt.Errorf("p2p: write block request: %w", err)
	}
	frame, err := ReadFrame(s)
	if err != nil {
		return BlockResponseMessage{}, fmt.Errorf("p2p: read block response: %w", err)
	}
	if frame.Kind != KindBlockResponse {
		return BlockResponseMessage{}, fmt.Errorf("p2p: expected BlockResponse, got %s", frame.Kind)
	}
	var resp BlockResponseMessage
	if err := frame.Decode(&resp); err != nil {
		return BlockResponseMessage{}, fmt.Errorf("p2p: decode block response: %w", err)
	}
	return resp, nil
}
