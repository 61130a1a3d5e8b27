package core

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/provchain/core/rdf"
)

// Predicate IRIs used within MetaGraphIRI to describe a block's scalar
// attributes, so any validator can recover the chain by SPARQL over the
// meta graph alone (spec §3).
const (
	PredBlockIndex        = "urn:provchain:meta#index"
	PredBlockTimestamp    = "urn:provchain:meta#timestamp"
	PredBlockPreviousHash = "urn:provchain:meta#previousHash"
	PredBlockGraphHash    = "urn:provchain:meta#graphHash"
	PredBlockHash         = "urn:provchain:meta#hash"
	PredBlockSignature    = "urn:provchain:meta#signature"
	PredBlockAuthorityKey = "urn:provchain:meta#authorityPubKey"
	PredBlockPayloadGraph = "urn:provchain:meta#hasPayloadGraph"
	ClassBlock            = "urn:provchain:meta#Block"

	xsdInteger  = "http://www.w3.org/2001/XMLSchema#integer"
	xsdDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
	xsdHexBin   = "http://www.w3.org/2001/XMLSchema#hexBinary"
)

// BuildMetaTriples renders a block's scalar fields into the meta-graph
// resource describing it, per spec §3's "one resource per block". Exported
// so callers outside package core (the daemon entrypoint, writing genesis's
// own meta record) can reuse it instead of re-deriving the predicate shape.
func BuildMetaTriples(b Block) []rdf.Triple {
	subj := rdf.IRI(BlockIRI(b.Index))
	triples := []rdf.Triple{
		{Subject: subj, Predicate: rdf.IRI(PredRDFType), Object: rdf.IRI(ClassBlock)},
		{Subject: subj, Predicate: rdf.IRI(PredBlockIndex), Object: rdf.TypedLit(strconv.FormatUint(b.Index, 10), xsdInteger)},
		{Subject: subj, Predicate: rdf.IRI(PredBlockTimestamp), Object: rdf.TypedLit(b.Timestamp.UTC().Format(time.RFC3339), xsdDateTime)},
		{Subject: subj, Predicate: rdf.IRI(PredBlockPreviousHash), Object: rdf.TypedLit(b.PreviousHash.Hex(), xsdHexBin)},
		{Subject: subj, Predicate: rdf.IRI(PredBlockGraphHash), Object: rdf.TypedLit(b.GraphHash.Hex(), xsdHexBin)},
		{Subject: subj, Predicate: rdf.IRI(PredBlockHash), Object: rdf.TypedLit(b.Hash.Hex(), xsdHexBin)},
		{Subject: subj, Predicate: rdf.IRI(PredBlockPayloadGraph), Object: rdf.IRI(b.GraphIRI)},
	}
	if len(b.AuthorityPubKey) > 0 {
		triples = append(triples, rdf.Triple{
			Subject:   subj,
			Predicate: rdf.IRI(PredBlockAuthorityKey),
			Object:    rdf.TypedLit(HashFromBytesHex(b.AuthorityPubKey), xsdHexBin),
		})
	}
	if len(b.Signature) > 0 {
		triples = append(triples, rdf.Triple{
			Subject:   subj,
			Predicate: rdf.IRI(PredBlockSignature),
			Object:    rdf.TypedLit(HashFromBytesHex(b.Signature), xsdHexBin),
		})
	}
	return triples
}

// ParseMetaTriples reconstructs every block's scalar fields from the meta
// graph's triples, sorted by index. Used on boot to rebuild Chain.blocks
// from a persisted store without replaying payload graphs (spec §3's
// recovery claim, spec §1 "persistence and recovery").
func ParseMetaTriples(triples []rdf.Triple) ([]Block, error) {
	groups := make(map[string][]rdf.Triple)
	var order []string
	for _, t := range triples {
		if !t.Subject.IsIRI() {
			continue
		}
		if _, ok := groups[t.Subject.Value]; !ok {
			order = append(order, t.Subject.Value)
		}
		groups[t.Subject.Value] = append(groups[t.Subject.Value], t)
	}
	blocks := make([]Block, 0, len(groups))
	for _, subj := range order {
		b, err := blockFromMetaGroup(groups[subj])
		if err != nil {
			return nil, fmt.Errorf("meta: %s: %w", subj, err)
		}
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Index < blocks[j].Index })
	return blocks, nil
}

func blockFromMetaGroup(triples []rdf.Triple) (Block, error) {
	var b Block
	haveIndex := false
	for _, t := range triples {
		if !t.Predicate.IsIRI() {
			continue
		}
		switch t.Predicate.Value {
		case PredBlockIndex:
			idx, err := strconv.ParseUint(t.Object.Value, 10, 64)
			if err != nil {
				return Block{}, fmt.Errorf("malformed index: %w", err)
			}
			b.Index = idx
			haveIndex = true
		case PredBlockTimestamp:
			ts, err := time.Parse(time.RFC3339, t.Object.Value)
			if err != nil {
				return Block{}, fmt.Errorf("malformed timestamp: %w", err)
			}
			b.Timestamp = ts.UTC()
		case PredBlockPreviousHash:
			h, err := HashFromHex(t.Object.Value)
			if err != nil {
				return Block{}, fmt.Errorf("malformed previousHash: %w", err)
			}
			b.PreviousHash = h
		case PredBlockGraphHash:
			h, err := HashFromHex(t.Object.Value)
			if err != nil {
				return Block{}, fmt.Errorf("malformed graphHash: %w", err)
			}
			b.GraphHash = h
		case PredBlockHash:
			h, err := HashFromHex(t.Object.Value)
			if err != nil {
				return Block{}, fmt.Errorf("malformed hash: %w", err)
			}
			b.Hash = h
		case PredBlockAuthorityKey:
			raw, err := hex.DecodeString(t.Object.Value)
			if err != nil {
				return Block{}, fmt.Errorf("malformed authorityPubKey: %w", err)
			}
			b.AuthorityPubKey = raw
		case PredBlockSignature:
			raw, err := hex.DecodeString(t.Object.Value)
			if err != nil {
				return Block{}, fmt.Errorf("malformed signature: %w", err)
			}
			b.Signature = raw
		case PredBlockPayloadGraph:
			b.GraphIRI = t.Object.Value
		}
	}
	if !haveIndex {
		return Block{}, fmt.Errorf("block resource missing index triple")
	}
	return b, nil
}

// HashFromBytesHex renders arbitrary bytes (not necessarily 32) as lower
// case hex, used for fields like authority_pubkey that aren't a Hash.
func HashFromBytesHex(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
