package core

import (
	"fmt"
	"time"
)

// BlockIRI returns the canonical named-graph IRI for a block's payload
// graph, per spec §6's "Named-graph IRI schema".
func BlockIRI(index uint64) string {
	return fmt.Sprintf("urn:provchain:block:%d", index)
}

// MetaGraphIRI is the single reserved graph carrying block scalar metadata.
const MetaGraphIRI = "urn:provchain:meta"

// OntologyGraphIRI is the reserved graph holding the boot-time ontology.
const OntologyGraphIRI = "urn:provchain:ontology"

// Block is one position in the chain. Field semantics match spec §3
// exactly; GraphIRI/GraphHash bind the block to the payload named graph
// stored in the RDF store.
type Block struct {
	Index           uint64    `json:"index"`
	Timestamp       time.Time `json:"timestamp"`
	PreviousHash    Hash      `json:"previous_hash"`
	GraphIRI        string    `json:"graph_iri"`
	GraphHash       Hash      `json:"graph_hash"`
	Hash            Hash      `json:"hash"`
	Signature       []byte    `json:"signature,omitempty"`
	AuthorityPubKey []byte    `json:"authority_pubkey,omitempty"`
}

// TimestampRFC3339 renders the block timestamp the way ComputeBlockHash
// expects it: RFC3339 in UTC.
func (b *Block) TimestampRFC3339() string {
	return b.Timestamp.UTC().Format(time.RFC3339)
}

// RecomputeHash derives the block's hash from its own fields, independent
// of whatever is currently stored in b.Hash. Callers use this to verify
// invariant 2 of spec §8.
func (b *Block) RecomputeHash() Hash {
	return ComputeBlockHash(b.Index, b.TimestampRFC3339(), b.PreviousHash, b.GraphIRI, b.GraphHash, b.AuthorityPubKey)
}

// IsGenesis reports whether this is block 0.
func (b *Block) IsGenesis() bool { return b.Index == 0 }

// Header is the scalar-only projection of a Block used by iter_headers and
// by sync responses, so a peer can reason about chain shape without
// shipping payload triples (spec §4.3 "iter_headers").
type Header struct {
	Index           uint64    `json:"index"`
	Timestamp       time.Time `json:"timestamp"`
	PreviousHash    Hash      `json:"previous_hash"`
	GraphIRI        string    `json:"graph_iri"`
	GraphHash       Hash      `json:"graph_hash"`
	Hash            Hash      `json:"hash"`
	Signature       []byte    `json:"signature,omitempty"`
	AuthorityPubKey []byte    `json:"authority_pubkey,omitempty"`
}

func (b *Block) Header() Header {
	return Header{
		Index:           b.Index,
		Timestamp:       b.Timestamp,
		PreviousHash:    b.PreviousHash,
		GraphIRI:        b.GraphIRI,
		GraphHash:       b.GraphHash,
		Hash:            b.Hash,
		Signature:       b.Signature,
		AuthorityPubKey: b.AuthorityPubKey,
	}
}
