package core

import (
	"testing"
	"time"

	"github.com/provchain/core/canon"
	"github.com/provchain/core/rdf"
)

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Publish(e Event) { s.events = append(s.events, e) }

func buildCandidate(t *testing.T, index uint64, prevHash Hash, payload []rdf.Triple, ts time.Time) Block {
	t.Helper()
	digest, err := canon.Hash(payload)
	if err != nil {
		t.Fatalf("canon.Hash: %v", err)
	}
	b := Block{
		Index:        index,
		Timestamp:    ts,
		PreviousHash: prevHash,
		GraphIRI:     BlockIRI(index),
		GraphHash:    Hash(digest),
	}
	b.Hash = b.RecomputeHash()
	return b
}

func TestAddBlockAtomicallyCommitsBothStores(t *testing.T) {
	store := rdf.NewStore()
	chain := NewChain()
	sink := &recordingSink{}
	ac := NewAtomicCoordinator(store, chain, sink)

	genesis, err := chain.Genesis(BlockIRI(0), Hash(canon.EmptyDigest))
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}

	payload := []rdf.Triple{{Subject: rdf.IRI("urn:a"), Predicate: rdf.IRI("urn:p"), Object: rdf.IRI("urn:b")}}
	candidate := buildCandidate(t, 1, genesis.Hash, payload, genesis.Timestamp.Add(time.Second))

	if err := ac.AddBlockAtomically(candidate, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain.Length() != 2 {
		t.Fatalf("expected chain length 2, got %d", chain.Length())
	}
	if _, ok := store.Triples(candidate.GraphIRI); !ok {
		t.Fatalf("expected payload graph to be stored")
	}
	if _, ok := store.Triples(MetaGraphIRI); !ok {
		t.Fatalf("expected meta graph to be populated")
	}
	foundCommitted := false
	for _, e := range sink.events {
		if e.Kind == EventBlockCommitted {
			foundCommitted = true
		}
	}
	if !foundCommitted {
		t.Fatalf("expected a BlockCommitted event")
	}
}

func TestAddBlockAtomicallyRollsBackOnHashMismatch(t *testing.T) {
	store := rdf.NewStore()
	chain := NewChain()
	ac := NewAtomicCoordinator(store, chain, nil)
	genesis, _ := chain.Genesis(BlockIRI(0), Hash{})

	payload := []rdf.Triple{{Subject: rdf.IRI("urn:a"), Predicate: rdf.IRI("urn:p"), Object: rdf.IRI("urn:b")}}
	candidate := buildCandidate(t, 1, genesis.Hash, payload, genesis.Timestamp.Add(time.Second))
	candidate.GraphHash[0] ^= 0xff // corrupt so it no longer matches the payload's canonical digest

	if err := ac.AddBlockAtomically(candidate, payload); err == nil {
		t.Fatalf("expected hash mismatch error")
	}
	if chain.Length() != 1 {
		t.Fatalf("expected chain to remain at genesis length, got %d", chain.Length())
	}
	if _, ok := store.Triples(candidate.GraphIRI); ok {
		t.Fatalf("expected payload graph to not exist after rollback")
	}
}

func TestAddBlockAtomicallyRejectsNestedOperation(t *testing.T) {
	store := rdf.NewStore()
	chain := NewChain()
	ac := NewAtomicCoordinator(store, chain, nil)
	ac.inProgress = true
	_, _ = chain.Genesis(BlockIRI(0), Hash{})
	candidate := buildCandidate(t, 1, chain.HeadHash(), nil, time.Now().UTC())
	if err := ac.AddBlockAtomically(candidate, nil); err != ErrNestedOperation {
		t.Fatalf("expected ErrNestedOperation, got %v", err)
	}
}

func TestAddBlockAtomicallyRefusesWhenDegraded(t *testing.T) {
	store := rdf.NewStore()
	chain := NewChain()
	ac := NewAtomicCoordinator(store, chain, nil)
	ac.degraded = true
	candidate := buildCandidate(t, 0, GenesisPreviousHash, nil, time.Now().UTC())
	if err := ac.AddBlockAtomically(candidate, nil); err != ErrFatalDegraded {
		t.Fatalf("expected ErrFatalDegraded, got %v", err)
	}
}
