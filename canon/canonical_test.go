package canon

import (
	"testing"

	"github.com/provchain/core/rdf"
)

func tr(s, p, o rdf.Term) rdf.Triple { return rdf.Triple{Subject: s, Predicate: p, Object: o} }

func TestHashEmptyGraph(t *testing.T) {
	d, err := Hash(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != EmptyDigest {
		t.Fatalf("expected empty-graph digest constant")
	}
}

func TestHashOrderInsensitive(t *testing.T) {
	a := []rdf.Triple{
		tr(rdf.IRI("urn:a"), rdf.IRI("urn:p"), rdf.IRI("urn:b")),
		tr(rdf.IRI("urn:c"), rdf.IRI("urn:p"), rdf.IRI("urn:d")),
	}
	b := []rdf.Triple{a[1], a[0]}
	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected order-insensitive hash, got %s vs %s", ha.Hex(), hb.Hex())
	}
}

func TestHashBlankNodeLabelInsensitive(t *testing.T) {
	a := []rdf.Triple{
		tr(rdf.Blank("x"), rdf.IRI("urn:p"), rdf.IRI("urn:o")),
		tr(rdf.IRI("urn:s"), rdf.IRI("urn:q"), rdf.Blank("x")),
	}
	b := []rdf.Triple{
		tr(rdf.Blank("z9"), rdf.IRI("urn:p"), rdf.IRI("urn:o")),
		tr(rdf.IRI("urn:s"), rdf.IRI("urn:q"), rdf.Blank("z9")),
	}
	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected blank node relabeling to not affect hash, got %s vs %s", ha.Hex(), hb.Hex())
	}
}

func TestHashDistinguishesDifferentGraphs(t *testing.T) {
	a := []rdf.Triple{tr(rdf.IRI("urn:a"), rdf.IRI("urn:p"), rdf.IRI("urn:b"))}
	b := []rdf.Triple{tr(rdf.IRI("urn:a"), rdf.IRI("urn:p"), rdf.IRI("urn:c"))}
	ha, _ := Hash(a)
	hb, _ := Hash(b)
	if ha == hb {
		t.Fatalf("expected different graphs to hash differently")
	}
}

func TestHashSymmetricBlankNodesDeterministic(t *testing.T) {
	// Two blank nodes playing structurally identical roles: the result
	// must not depend on which original label ends up mapped to which
	// canonical label, only that repeated runs agree.
	build := func(l1, l2 string) []rdf.Triple {
		return []rdf.Triple{
			tr(rdf.IRI("urn:root"), rdf.IRI("urn:has"), rdf.Blank(l1)),
			tr(rdf.IRI("urn:root"), rdf.IRI("urn:has"), rdf.Blank(l2)),
			tr(rdf.Blank(l1), rdf.IRI("urn:type"), rdf.IRI("urn:Leaf")),
			tr(rdf.Blank(l2), rdf.IRI("urn:type"), rdf.IRI("urn:Leaf")),
		}
	}
	h1, err := Hash(build("a", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := Hash(build("m", "n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected symmetric blank node graphs to hash identically, got %s vs %s", h1.Hex(), h2.Hex())
	}
}
