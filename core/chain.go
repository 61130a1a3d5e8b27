package core

import (
	"sync"
	"time"
)

// Chain is the append-only block vector of spec §4.3 (C3). The RDF store
// mirrors each block's scalar metadata in the blockchain-metadata graph,
// but Chain itself exclusively owns the block records (spec §3
// "Ownership"). A single writer lock guards mutation; readers take a
// consistent snapshot at call time, per spec §5's shared-resource policy.
type Chain struct {
	mu     sync.RWMutex
	blocks []Block
}

// NewChain constructs an empty, not-yet-genesis chain.
func NewChain() *Chain {
	return &Chain{}
}

// Genesis creates block 0: fixed previous_hash, the supplied payload graph
// binding, and no signature. It fails if the chain is already initialized.
func (c *Chain) Genesis(graphIRI string, graphHash Hash) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) != 0 {
		return Block{}, Coded(ErrChainLinkMismatch, "chain already has a genesis block")
	}
	b := Block{
		Index:        0,
		Timestamp:    time.Now().UTC(),
		PreviousHash: GenesisPreviousHash,
		GraphIRI:     graphIRI,
		GraphHash:    graphHash,
	}
	b.Hash = b.RecomputeHash()
	c.blocks = append(c.blocks, b)
	return b, nil
}

// Restore installs a previously-persisted, already-validated block vector
// directly, bypassing TryAppend's admission checks (those blocks passed
// them in an earlier process). Used on boot to rebuild Chain.blocks from
// the meta graph after a restart of a persistent node (spec §1
// "persistence and recovery"), since the store's own persistence layer
// only replays triples, never the chain vector itself. Fails if the chain
// already has blocks, or if blocks is not a contiguous 0-based run.
func (c *Chain) Restore(blocks []Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) != 0 {
		return Coded(ErrChainLinkMismatch, "chain already initialized")
	}
	for i, b := range blocks {
		if b.Index != uint64(i) {
			return Coded(ErrChainLinkMismatch, "restored blocks are not a contiguous 0-based run")
		}
	}
	c.blocks = append([]Block{}, blocks...)
	return nil
}

// HeadHash returns the hash of the last block, or GenesisPreviousHash if
// the chain has no blocks yet.
func (c *Chain) HeadHash() Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return GenesisPreviousHash
	}
	return c.blocks[len(c.blocks)-1].Hash
}

// Head returns the last block. ok is false on an empty chain.
func (c *Chain) Head() (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return Block{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// Get returns the block at index, if present.
func (c *Chain) Get(index uint64) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return Block{}, false
	}
	return c.blocks[index], true
}

// Length returns the number of blocks committed, including genesis.
func (c *Chain) Length() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.blocks))
}

// IterHeaders returns the scalar-only projection of every block, for
// efficient sync responses that omit payload triples.
func (c *Chain) IterHeaders() []Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Header, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Header()
	}
	return out
}

// TryAppend performs the structural admission checks of spec §4.3:
// index continuity, previous_hash linkage, timestamp monotonicity, and
// hash recomputation. It does not check graph_hash against the triples
// actually stored at GraphIRI — that cross-component check belongs to
// AtomicCoordinator, which alone has access to both the store and the
// chain.
func (c *Chain) TryAppend(b Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.Index != uint64(len(c.blocks)) {
		return Coded(ErrChainLinkMismatch, "candidate index does not continue the chain")
	}
	var headHash Hash
	var headTimestamp time.Time
	haveHead := len(c.blocks) > 0
	if haveHead {
		head := c.blocks[len(c.blocks)-1]
		headHash = head.Hash
		headTimestamp = head.Timestamp
	} else {
		headHash = GenesisPreviousHash
	}
	if b.PreviousHash != headHash {
		return Coded(ErrChainLinkMismatch, "previous_hash does not match chain head")
	}
	if haveHead && b.Timestamp.Before(headTimestamp) {
		return Coded(ErrTimestampRegress, "candidate timestamp precedes chain head")
	}
	if b.RecomputeHash() != b.Hash {
		return Coded(ErrHashMismatch, "candidate hash does not match its own fields")
	}
	c.blocks = append(c.blocks, b)
	return nil
}

// SnapshotLength returns the current block count, for use as a rollback
// watermark by AtomicCoordinator.
func (c *Chain) SnapshotLength() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// TruncateTo keeps the first n blocks (indices 0..n-1) and discards the
// rest, undoing a TryAppend that
// must be rolled back. n must not exceed the current length.
func (c *Chain) TruncateTo(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n > len(c.blocks) {
		return Coded(ErrChainLinkMismatch, "truncate target out of range")
	}
	c.blocks = c.blocks[:n]
	return nil
}
