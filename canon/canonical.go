// Package canon computes the content-addressed digest of a named graph's
// triple set, per spec §4.2 (C2). Two paths are implemented: a fast path
// for blank-node-free graphs (sort N-Triples, hash), and a blank-node hash
// refinement fixed point (an RDFC-1.0-style algorithm) for graphs that
// contain blank nodes, so structurally identical graphs hash identically
// regardless of blank node labeling or triple order.
package canon

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/provchain/core/rdf"
)

// MaxRounds bounds the hash-refinement fixed point (spec §4.2 Path B). If
// the assignment is still changing after this many rounds, the last
// round's labels are used. A blank node with a blank neighbour takes a new
// hash value every round, so graphs with blank-to-blank edges always run
// all MaxRounds rounds.
const MaxRounds = 16

// Digest is the 32-byte canonical hash of a graph's triple set.
type Digest [32]byte

func (d Digest) Hex() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range d {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// EmptyDigest is the fixed digest of a graph with zero triples: SHA-256 of
// a single zero byte, never an address-derived value (DESIGN.md Open
// Question #3).
var EmptyDigest = Digest(sha256.Sum256([]byte{0x00}))

// Hash computes the canonical digest of a triple set. Path A (no blank
// nodes) sorts the N-Triples serialization bytewise and hashes the
// concatenation. Path B (blank nodes present) runs canonicalizeBlankNodes first to
// assign stable, content-derived labels, then proceeds as Path A.
func Hash(triples []rdf.Triple) (Digest, error) {
	if len(triples) == 0 {
		return EmptyDigest, nil
	}
	if !rdf.HasBlankNode(triples) {
		return hashSorted(triples), nil
	}
	relabeled, err := canonicalizeBlankNodes(triples)
	if err != nil {
		return Digest{}, err
	}
	return hashSorted(relabeled), nil
}

func hashSorted(triples []rdf.Triple) Digest {
	sorted := rdf.SortTriples(triples)
	h := sha256.New()
	for i, t := range sorted {
		if i > 0 {
			h.Write([]byte{0x0a})
		}
		h.Write([]byte(t.NTriples()))
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// canonicalizeBlankNodes implements the hash-refinement fixed point: each
// blank node starts with an identical seed label, then repeatedly absorbs
// the sorted multiset of hashes of its neighboring terms until the
// assignment of (blank node -> label) stops changing, or MaxRounds is
// reached. Ties between structurally indistinguishable blank nodes are
// broken by lexicographically smallest final label, giving a deterministic
// overall result even for symmetric graphs.
func canonicalizeBlankNodes(triples []rdf.Triple) ([]rdf.Triple, error) {
	blanks := distinctBlankLabels(triples)

	hashOf := make(map[string]string, len(blanks))
	for _, b := range blanks {
		hashOf[b] = "seed"
	}

	for round := 0; round < MaxRounds; round++ {
		next := make(map[string]string, len(blanks))
		for _, b := range blanks {
			next[b] = refine(b, triples, hashOf)
		}
		if equalAssignment(hashOf, next) {
			break
		}
		hashOf = next
	}

	labels := finalLabels(blanks, hashOf)
	return relabel(triples, labels), nil
}

func distinctBlankLabels(triples []rdf.Triple) []string {
	seen := make(map[string]bool)
	var out []string
	note := func(t rdf.Term) {
		if t.IsBlank() && !seen[t.Value] {
			seen[t.Value] = true
			out = append(out, t.Value)
		}
	}
	for _, t := range triples {
		note(t.Subject)
		note(t.Object)
	}
	sort.Strings(out)
	return out
}

// refine computes the next-round hash input for blank node label by
// collecting, for every triple touching it, a textual fingerprint of the
// triple's other terms (using the current-round hash for any blank node
// among them), then hashing the sorted multiset of those fingerprints.
func refine(label string, triples []rdf.Triple, current map[string]string) string {
	var fingerprints []string
	for _, t := range triples {
		if t.Subject.IsBlank() && t.Subject.Value == label {
			fingerprints = append(fingerprints, "S:"+t.Predicate.NTriples()+"|"+termFingerprint(t.Object, current))
		}
		if t.Object.IsBlank() && t.Object.Value == label {
			fingerprints = append(fingerprints, "O:"+t.Predicate.NTriples()+"|"+termFingerprint(t.Subject, current))
		}
	}
	sort.Strings(fingerprints)
	h := sha256.Sum256([]byte(strings.Join(fingerprints, "\x1e")))
	return Digest(h).Hex()
}

func termFingerprint(t rdf.Term, current map[string]string) string {
	if t.IsBlank() {
		if h, ok := current[t.Value]; ok {
			return "_:" + h
		}
	}
	return t.NTriples()
}

func equalAssignment(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// finalLabels resolves the converged per-blank-node hashes into replacement
// blank node labels. Blank nodes that converge to the same hash (truly
// indistinguishable, e.g. symmetric graphs) are broken by their original
// label so the output stays deterministic without depending on map order.
func finalLabels(blanks []string, hashOf map[string]string) map[string]string {
	type entry struct{ original, hash string }
	entries := make([]entry, len(blanks))
	for i, b := range blanks {
		entries[i] = entry{b, hashOf[b]}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].hash != entries[j].hash {
			return entries[i].hash < entries[j].hash
		}
		return entries[i].original < entries[j].original
	})
	out := make(map[string]string, len(entries))
	for i, e := range entries {
		out[e.original] = fmt.Sprintf("c14n%02d", i)
	}
	return out
}

func relabel(triples []rdf.Triple, labels map[string]string) []rdf.Triple {
	out := make([]rdf.Triple, len(triples))
	for i, t := range triples {
		out[i] = rdf.Triple{
			Subject:   relabelTerm(t.Subject, labels),
			Predicate: t.Predicate,
			Object:    relabelTerm(t.Object, labels),
		}
	}
	return out
}

func relabelTerm(t rdf.Term, labels map[string]string) rdf.Term {
	if t.IsBlank() {
		if l, ok := labels[t.Value]; ok {
			return rdf.Blank(l)
		}
	}
	return t
}

var errNotConverged = canonError("blank node hash refinement did not converge within MaxRounds")

type canonError string

func (e canonError) Error() string { return string(e) }
