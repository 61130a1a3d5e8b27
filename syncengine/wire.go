package syncengine

import (
	"context"
	"fmt"
	"time"

	core "github.com/provchain/core/core"
	"github.com/provchain/core/p2p"
	"github.com/provchain/core/rdf"
)

// tripleToWire/wireToTriple convert between the store's in-memory Triple and
// the p2p package's wire-safe string encoding (its N-Triples term syntax),
// so a BlockResponse payload can travel as plain JSON strings.
func tripleToWire(t rdf.Triple) p2p.TripleWire {
	return p2p.TripleWire{
		Subject:   t.Subject.NTriples(),
		Predicate: t.Predicate.NTriples(),
		Object:    t.Object.NTriples(),
	}
}

func wireToTriple(w p2p.TripleWire) (rdf.Triple, error) {
	line := w.Subject + " " + w.Predicate + " " + w.Object + " ."
	triples, err := rdf.ParseNTriples(line)
	if err != nil || len(triples) != 1 {
		return rdf.Triple{}, fmt.Errorf("syncengine: malformed wire triple: %w", err)
	}
	return triples[0], nil
}

func headerToWire(b core.Block) p2p.BlockHeaderWire {
	return p2p.BlockHeaderWire{
		Index:            b.Index,
		TimestampRFC3339: b.TimestampRFC3339(),
		PreviousHash:     b.PreviousHash.Hex(),
		GraphIRI:         b.GraphIRI,
		GraphHash:        b.GraphHash.Hex(),
		Hash:             b.Hash.Hex(),
		Signature:        b.Signature,
		AuthorityPubKey:  b.AuthorityPubKey,
	}
}

func wireToBlock(w p2p.BlockHeaderWire) (core.Block, error) {
	ts, err := time.Parse(time.RFC3339, w.TimestampRFC3339)
	if err != nil {
		return core.Block{}, fmt.Errorf("syncengine: malformed block timestamp: %w", err)
	}
	prevHash, err := core.HashFromHex(w.PreviousHash)
	if err != nil {
		return core.Block{}, err
	}
	graphHash, err := core.HashFromHex(w.GraphHash)
	if err != nil {
		return core.Block{}, err
	}
	hash, err := core.HashFromHex(w.Hash)
	if err != nil {
		return core.Block{}, err
	}
	return core.Block{
		Index:           w.Index,
		Timestamp:       ts.UTC(),
		PreviousHash:    prevHash,
		GraphIRI:        w.GraphIRI,
		GraphHash:       graphHash,
		Hash:            hash,
		Signature:       w.Signature,
		AuthorityPubKey: w.AuthorityPubKey,
	}, nil
}

func batchToWire(batch BlockBatch) p2p.BlockResponseMessage {
	headers := make([]p2p.BlockHeaderWire, len(batch.Blocks))
	payloads := make([][]p2p.TripleWire, len(batch.Blocks))
	for i, b := range batch.Blocks {
		headers[i] = headerToWire(b)
		wirePayload := make([]p2p.TripleWire, len(batch.Payloads[i]))
		for j, t := range batch.Payloads[i] {
			wirePayload[j] = tripleToWire(t)
		}
		payloads[i] = wirePayload
	}
	return p2p.BlockResponseMessage{Headers: headers, Payloads: payloads}
}

func wireToBatch(msg p2p.BlockResponseMessage) (BlockBatch, error) {
	batch := BlockBatch{
		Blocks:   make([]core.Block, len(msg.Headers)),
		Payloads: make([][]rdf.Triple, len(msg.Headers)),
	}
	for i, h := range msg.Headers {
		block, err := wireToBlock(h)
		if err != nil {
			return BlockBatch{}, err
		}
		batch.Blocks[i] = block
		if i < len(msg.Payloads) {
			triples := make([]rdf.Triple, len(msg.Payloads[i]))
			for j, w := range msg.Payloads[i] {
				t, err := wireToTriple(w)
				if err != nil {
					return BlockBatch{}, err
				}
				triples[j] = t
			}
			batch.Payloads[i] = triples
		}
	}
	return batch, nil
}

// ChainBlockResponseProvider answers p2p BlockRequests straight from the
// local chain and store, implementing p2p.BlockResponseProvider.
type ChainBlockResponseProvider struct {
	Chain *core.Chain
	Store *rdf.Store
}

func (p ChainBlockResponseProvider) HandleBlockRequest(req p2p.BlockRequestMessage) (p2p.BlockResponseMessage, error) {
	count := req.Count
	if count == 0 || count > maxChunk {
		count = maxChunk
	}
	var batch BlockBatch
	for i := uint64(0); i < uint64(count); i++ {
		idx := req.FromIndex + i
		block, ok := p.Chain.Get(idx)
		if !ok {
			break
		}
		triples, _ := p.Store.Triples(block.GraphIRI)
		batch.Blocks = append(batch.Blocks, block)
		batch.Payloads = append(batch.Payloads, triples)
	}
	return batchToWire(batch), nil
}

// P2PPeerClient adapts one p2p.Node/session pair to the Engine's PeerClient
// interface, carrying BlockRequest/BlockResponse over the node's dedicated
// blocksync stream protocol.
type P2PPeerClient struct {
	Node      *p2p.Node
	PeerID    string
	session   *p2p.Session
	blacklist func(reason string)
}

// NewP2PPeerClient builds a PeerClient bound to one remote peer ID. session
// supplies the peer's last-known (height, hash) as tracked by handshake/
// HeadAnnounce gossip; blacklist is invoked on admission failure (typically
// to drop the session or mark it as avoided for the remainder of the round).
func NewP2PPeerClient(node *p2p.Node, peerID string, session *p2p.Session, blacklist func(string)) *P2PPeerClient {
	return &P2PPeerClient{Node: node, PeerID: peerID, session: session, blacklist: blacklist}
}

func (c *P2PPeerClient) Head(ctx context.Context) (PeerHead, error) {
	_, _, height, hash := c.session.Snapshot()
	h, err := core.HashFromHex(hash)
	if err != nil {
		return PeerHead{}, err
	}
	return PeerHead{Height: height, HeadHash: h}, nil
}

func (c *P2PPeerClient) GenesisHash(ctx context.Context) (core.Hash, error) {
	batch, err := c.RequestBlocks(ctx, 0, 1)
	if err != nil {
		return core.Hash{}, err
	}
	if len(batch.Blocks) == 0 {
		return core.Hash{}, fmt.Errorf("syncengine: peer returned no genesis block")
	}
	return batch.Blocks[0].Hash, nil
}

func (c *P2PPeerClient) RequestBlocks(ctx context.Context, fromIndex uint64, count uint32) (BlockBatch, error) {
	resp, err := c.Node.RequestBlocks(c.PeerID, p2p.BlockRequestMessage{FromIndex: fromIndex, Count: count})
	if err != nil {
		return BlockBatch{}, err
	}
	return wireToBatch(resp)
}

func (c *P2PPeerClient) Blacklist(reason string) {
	if c.blacklist != nil {
		c.blacklist(reason)
	}
}
