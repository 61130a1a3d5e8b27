package core

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/provchain/core/canon"
	"github.com/provchain/core/rdf"
)

// slotWinner tracks the best candidate seen so far for one slot, to
// implement spec §4.6's tie-break rule: prefer the lower hash
// lexicographically; later arrivals for that slot are discarded.
type slotWinner struct {
	block Block
}

// Consensus drives PoA block production and admission (spec §4.6, C6).
// Grounded on the teacher's SynnergyConsensus (core/consensus.go): a
// logrus-logged engine built from injected collaborator interfaces
// (pool/network/authority/coordinator) with a Start(ctx) entrypoint
// spawning the production loop as a goroutine — the hybrid PoH/PoW/PoS
// machinery itself is replaced with the spec's single-authority-per-slot
// rule, since that whole subsystem is out of scope here.
type Consensus struct {
	logger      *logrus.Logger
	store       *rdf.Store
	chain       *Chain
	coordinator *AtomicCoordinator
	authorities *AuthoritySet
	pool        *TxPool
	events      EventSink

	isAuthority  bool
	privKey      ed25519.PrivateKey
	pubKey       []byte
	maxBlockSize int
	slotDuration time.Duration

	mu      sync.Mutex
	winners map[uint64]slotWinner
}

// NewConsensus wires a PoA engine. privKey/pubKey are nil/empty for a
// non-authority (follower) node; slotDuration is consensus.block_interval.
func NewConsensus(lg *logrus.Logger, store *rdf.Store, chain *Chain, coord *AtomicCoordinator, authorities *AuthoritySet, pool *TxPool, events EventSink, isAuthority bool, privKey ed25519.PrivateKey, pubKey []byte, maxBlockSize int, slotDuration time.Duration) *Consensus {
	return &Consensus{
		logger:       lg,
		store:        store,
		chain:        chain,
		coordinator:  coord,
		authorities:  authorities,
		pool:         pool,
		events:       events,
		isAuthority:  isAuthority,
		privKey:      privKey,
		pubKey:       pubKey,
		maxBlockSize: maxBlockSize,
		slotDuration: slotDuration,
		winners:      make(map[uint64]slotWinner),
	}
}

// Start launches the slot-driven production loop. It returns immediately;
// the loop runs until ctx is cancelled.
func (c *Consensus) Start(ctx context.Context) {
	if !c.isAuthority {
		return
	}
	go c.productionLoop(ctx)
}

func (c *Consensus) productionLoop(ctx context.Context) {
	interval := c.slotDuration
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tryProduce(time.Now().UTC())
		}
	}
}

// tryProduce proposes a block if this node owns the current slot and no
// block has been admitted for that slot yet.
func (c *Consensus) tryProduce(now time.Time) {
	slot := c.authorities.SlotOf(now)
	owner, ok := c.authorities.OwnerOfSlot(slot)
	if !ok || !bytes.Equal(owner, c.pubKey) {
		return
	}
	c.mu.Lock()
	_, produced := c.winners[slot]
	c.mu.Unlock()
	if produced {
		return
	}

	head, hasHead := c.chain.Head()
	var prevHash Hash
	if hasHead {
		prevHash = head.Hash
	} else {
		prevHash = GenesisPreviousHash
	}

	candidateTxs := c.pool.Pick(c.maxBlockSize)
	payload := txsToPayload(candidateTxs)
	rawDigest, err := canon.Hash(payload)
	digest := Hash(rawDigest)
	if err != nil {
		c.logf("block production: canonicalization failed: %v", err)
		return
	}

	index := c.chain.Length()
	graphIRI := BlockIRI(index)
	block := Block{
		Index:           index,
		Timestamp:       now,
		PreviousHash:    prevHash,
		GraphIRI:        graphIRI,
		GraphHash:       digest,
		AuthorityPubKey: c.pubKey,
	}
	block.Hash = block.RecomputeHash()
	if c.privKey != nil {
		block.Signature = Sign(c.privKey, block.Hash[:])
	}

	if err := c.AdmitCandidate(block, payload); err != nil {
		c.logf("block production: self-admission failed: %v", err)
		return
	}
	c.authorities.RecordProduced(c.pubKey, now)
}

// AdmitCandidate runs the four admission checks of spec §4.6 and, if they
// pass, drives the atomic commit. Used both for self-produced blocks and
// for blocks received from peers (via the sync engine).
func (c *Consensus) AdmitCandidate(candidate Block, payload []rdf.Triple) error {
	// 1. Structural checks happen inside Chain.TryAppend, invoked by the
	// coordinator below. A block already committed at the candidate's index
	// is handled here: the same hash is acknowledged, a different hash is
	// refused with ErrAlreadyApplied.
	if existing, ok := c.chain.Get(candidate.Index); ok {
		if existing.Hash == candidate.Hash {
			return nil // already applied; at-most-once per spec §4.8
		}
		c.alertIntegrity("duplicate block at committed index with different hash: " + existing.Hash.Hex() + " vs " + candidate.Hash.Hex())
		return Coded(ErrAlreadyApplied, "index already committed with a different hash")
	}

	// 2. Signature verification.
	if len(candidate.AuthorityPubKey) == 0 || !c.authorities.IsAuthority(candidate.AuthorityPubKey) {
		c.alertIntegrity("candidate signed by non-authority key")
		return ErrUnknownAuthority
	}
	if !VerifySignature(candidate.AuthorityPubKey, candidate.Hash[:], candidate.Signature) {
		return ErrBadSignature
	}

	// 3. Slot eligibility, with grace-slot late admission.
	if err := c.authorities.CheckSlotEligibility(candidate.AuthorityPubKey, candidate.Timestamp); err != nil {
		if !c.graceEligible(candidate) {
			return err
		}
	}

	// Tie-break: if another candidate for this slot already won, keep the
	// lexicographically lower hash and discard the later arrival.
	slot := c.authorities.SlotOf(candidate.Timestamp)
	c.mu.Lock()
	if existing, ok := c.winners[slot]; ok {
		if bytes.Compare(candidate.Hash[:], existing.block.Hash[:]) >= 0 {
			c.mu.Unlock()
			return Coded(ErrAlreadyApplied, "slot already won by a lexicographically lower hash")
		}
	}
	c.winners[slot] = slotWinner{block: candidate}
	c.mu.Unlock()

	// 4. Payload validation is the caller's responsibility for
	// transaction-level checks (ValidateTransaction); the payload's
	// canonical hash is checked against candidate.GraphHash by the
	// coordinator inside AddBlockAtomically.
	if err := c.coordinator.AddBlockAtomically(candidate, payload); err != nil {
		return err
	}
	c.pool.EvictIncluded(payload)
	return nil
}

// graceEligible implements the chain-aware half of spec §4.6's grace
// policy: candidate.AuthorityPubKey is accepted as a late producer if it
// was the scheduled owner of some slot within graceSlots before the
// candidate's own slot, and that earlier slot never produced a committed
// block.
func (c *Consensus) graceEligible(candidate Block) bool {
	grace := c.authorities.GraceSlots()
	if grace == 0 {
		return false
	}
	slot := c.authorities.SlotOf(candidate.Timestamp)
	for g := uint64(1); g <= uint64(grace); g++ {
		if slot < g {
			break
		}
		missedSlot := slot - g
		owner, ok := c.authorities.OwnerOfSlot(missedSlot)
		if !ok || !bytes.Equal(owner, candidate.AuthorityPubKey) {
			continue
		}
		if !c.slotHasCommittedBlock(missedSlot) {
			return true
		}
	}
	return false
}

func (c *Consensus) slotHasCommittedBlock(slot uint64) bool {
	for _, h := range c.chain.IterHeaders() {
		if c.authorities.SlotOf(h.Timestamp) == slot {
			return true
		}
	}
	return false
}

func (c *Consensus) alertIntegrity(detail string) {
	if c.events != nil {
		c.events.Publish(Event{Kind: EventIntegrityAlert, Severity: "Critical", Detail: detail})
	}
}

func (c *Consensus) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Errorf(format, args...)
	}
}

func txsToPayload(txs []*Transaction) []rdf.Triple {
	var out []rdf.Triple
	for _, tx := range txs {
		out = append(out, tx.PayloadRDF...)
	}
	return out
}

