package core

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/provchain/core/canon"
	"github.com/provchain/core/rdf"
)

type consensusFixture struct {
	cs          *Consensus
	chain       *Chain
	authorities *AuthoritySet
	genesis     Block
	privByPub   map[string]ed25519.PrivateKey
}

func newConsensusFixture(t *testing.T, n int, grace uint32) *consensusFixture {
	t.Helper()
	store := rdf.NewStore()
	chain := NewChain()
	coord := NewAtomicCoordinator(store, chain, nil)

	raw := make([][]byte, n)
	privByPub := make(map[string]ed25519.PrivateKey, n)
	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		raw[i] = []byte(pub)
		privByPub[string(pub)] = priv
	}
	authorities := NewAuthoritySet(raw, time.Second, grace)
	pool := NewTxPool(0)
	cs := NewConsensus(nil, store, chain, coord, authorities, pool, nil, false, nil, nil, 100, time.Second)

	genesis, err := chain.Genesis(BlockIRI(0), Hash(canon.EmptyDigest))
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return &consensusFixture{cs: cs, chain: chain, authorities: authorities, genesis: genesis, privByPub: privByPub}
}

func (f *consensusFixture) signedBlockForSlot(t *testing.T, signerPub []byte, slot uint64) Block {
	t.Helper()
	priv, ok := f.privByPub[string(signerPub)]
	if !ok {
		t.Fatalf("no private key for signer")
	}
	ts := time.Unix(0, int64(slot)*int64(time.Second))
	digest, err := canon.Hash(nil)
	if err != nil {
		t.Fatalf("canon.Hash: %v", err)
	}
	b := Block{
		Index:           1,
		Timestamp:       ts,
		PreviousHash:    f.chain.HeadHash(),
		GraphIRI:        BlockIRI(1),
		GraphHash:       Hash(digest),
		AuthorityPubKey: signerPub,
	}
	b.Hash = b.RecomputeHash()
	b.Signature = Sign(priv, b.Hash[:])
	return b
}

func TestConsensusAdmitsValidCandidate(t *testing.T) {
	f := newConsensusFixture(t, 1, 1)
	targetSlot := f.authorities.SlotOf(f.genesis.Timestamp) + 1
	owner, _ := f.authorities.OwnerOfSlot(targetSlot)
	b := f.signedBlockForSlot(t, owner, targetSlot)
	if err := f.cs.AdmitCandidate(b, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.chain.Length() != 2 {
		t.Fatalf("expected chain length 2, got %d", f.chain.Length())
	}
}

func TestConsensusRejectsNonAuthoritySigner(t *testing.T) {
	f := newConsensusFixture(t, 1, 1)
	outsiderPub, outsiderPriv, _ := ed25519.GenerateKey(nil)
	targetSlot := f.authorities.SlotOf(f.genesis.Timestamp) + 1
	ts := time.Unix(0, int64(targetSlot)*int64(time.Second))
	digest, _ := canon.Hash(nil)
	b := Block{Index: 1, Timestamp: ts, PreviousHash: f.chain.HeadHash(), GraphIRI: BlockIRI(1), GraphHash: Hash(digest), AuthorityPubKey: []byte(outsiderPub)}
	b.Hash = b.RecomputeHash()
	b.Signature = Sign(outsiderPriv, b.Hash[:])
	if err := f.cs.AdmitCandidate(b, nil); !errors.Is(err, ErrUnknownAuthority) {
		t.Fatalf("expected ErrUnknownAuthority, got %v", err)
	}
}

func TestConsensusRejectsWrongSlotOwnerWithinGenesisSlot(t *testing.T) {
	// Three authorities, so a key that is neither the target slot's owner
	// nor the genesis slot's owner exists; genesis already fills its own
	// slot, so that key proposing one slot later than genesis must be
	// rejected: the grace window only covers a slot that truly produced
	// nothing.
	f := newConsensusFixture(t, 3, 1)
	genesisSlot := f.authorities.SlotOf(f.genesis.Timestamp)
	targetSlot := genesisSlot + 1
	owner, _ := f.authorities.OwnerOfSlot(targetSlot)
	genesisOwner, _ := f.authorities.OwnerOfSlot(genesisSlot)

	var wrongSigner []byte
	for pubStr := range f.privByPub {
		pub := []byte(pubStr)
		if !bytes.Equal(pub, owner) && !bytes.Equal(pub, genesisOwner) {
			wrongSigner = pub
			break
		}
	}
	if wrongSigner == nil {
		t.Skip("every authority key is either the target-slot owner or the genesis-slot owner")
	}
	b := f.signedBlockForSlot(t, wrongSigner, targetSlot)
	if err := f.cs.AdmitCandidate(b, nil); !errors.Is(err, ErrBadSlot) {
		t.Fatalf("expected ErrBadSlot, got %v", err)
	}
}

func TestConsensusGraceAdmitsOwnerOfActuallyMissedSlot(t *testing.T) {
	// 3 authorities so the genesis-slot owner, the target-slot owner, and
	// a third distinct authority all exist; the third authority cannot
	// use the genesis slot's grace window (genesis already filled it),
	// but the genesis-slot owner itself proposing late is irrelevant here
	// since genesis already committed for its own slot — this test
	// instead checks that a slot two windows back, which truly has no
	// committed block, grants grace to its scheduled owner.
	f := newConsensusFixture(t, 3, 2)
	genesisSlot := f.authorities.SlotOf(f.genesis.Timestamp)
	targetSlot := genesisSlot + 3 // leaves slot genesisSlot+1 and +2 empty
	missedSlot := targetSlot - 2  // within the grace=2 window, never committed
	missedOwner, _ := f.authorities.OwnerOfSlot(missedSlot)

	b := f.signedBlockForSlot(t, missedOwner, targetSlot)
	if err := f.cs.AdmitCandidate(b, nil); err != nil {
		t.Fatalf("expected grace admission to succeed, got %v", err)
	}
}

func TestConsensusIdempotentReAdmission(t *testing.T) {
	f := newConsensusFixture(t, 1, 1)
	targetSlot := f.authorities.SlotOf(f.genesis.Timestamp) + 1
	owner, _ := f.authorities.OwnerOfSlot(targetSlot)
	b := f.signedBlockForSlot(t, owner, targetSlot)
	if err := f.cs.AdmitCandidate(b, nil); err != nil {
		t.Fatalf("unexpected error admitting first candidate: %v", err)
	}
	if err := f.cs.AdmitCandidate(b, nil); err != nil {
		t.Fatalf("expected idempotent re-admission of an already-applied block, got %v", err)
	}
	if f.chain.Length() != 2 {
		t.Fatalf("expected chain length to remain 2 after re-admitting the same block, got %d", f.chain.Length())
	}
}
