package rdf

import "testing"

func TestTermNTriples(t *testing.T) {
	cases := []struct {
		name string
		term Term
		want string
	}{
		{"iri", IRI("urn:a"), "<urn:a>"},
		{"blank", Blank("b0"), "_:b0"},
		{"plain literal", Lit("hello"), `"hello"^^<http://www.w3.org/2001/XMLSchema#string>`},
		{"lang literal", LangLit("bonjour", "FR"), `"bonjour"@fr`},
		{"typed literal", TypedLit("42", "http://www.w3.org/2001/XMLSchema#integer"), `"42"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"escaped literal", Lit("a\"b\nc"), `"a\"b\nc"^^<http://www.w3.org/2001/XMLSchema#string>`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.term.NTriples(); got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestSortTriplesDeterministic(t *testing.T) {
	a := []Triple{mkTriple("urn:z", "urn:p", "urn:o"), mkTriple("urn:a", "urn:p", "urn:o")}
	b := []Triple{mkTriple("urn:a", "urn:p", "urn:o"), mkTriple("urn:z", "urn:p", "urn:o")}
	sa := SortTriples(a)
	sb := SortTriples(b)
	for i := range sa {
		if sa[i].NTriples() != sb[i].NTriples() {
			t.Fatalf("sort not order-independent at %d: %v vs %v", i, sa[i], sb[i])
		}
	}
}

func TestHasBlankNode(t *testing.T) {
	withBlank := []Triple{{Subject: Blank("b0"), Predicate: IRI("urn:p"), Object: IRI("urn:o")}}
	without := []Triple{mkTriple("urn:a", "urn:p", "urn:o")}
	if !HasBlankNode(withBlank) {
		t.Fatalf("expected blank node detected")
	}
	if HasBlankNode(without) {
		t.Fatalf("expected no blank node detected")
	}
}
