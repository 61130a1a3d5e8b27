package rdf

import (
	"fmt"
	"strings"
)

// ParseNTriples parses a complete N-Triples document (one statement per
// line, blank lines and "#"-comments ignored) into a triple set. Used by
// package ontology to load a static ontology graph at boot, and available
// to any other caller that needs to hand the store a pre-built graph
// without going through SPARQL INSERT-style syntax (which this package does
// not implement).
func ParseNTriples(doc string) ([]Triple, error) {
	var triples []Triple
	for i, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, err := parseTriple(line)
		if err != nil {
			return nil, fmt.Errorf("rdf: line %d: %w", i+1, err)
		}
		triples = append(triples, t)
	}
	return triples, nil
}

// parseTriple parses one N-Triples statement of the exact form produced by
// Triple.NTriples ("<s> <p> o ."), as read back from the bbolt persistence
// layer. It is intentionally narrow: it only needs to round-trip what this
// package itself writes, not arbitrary N-Triples documents.
func parseTriple(line string) (Triple, error) {
	toks := tokenize(line)
	// tokenize is shared with the SPARQL parser; it happens to produce the
	// same term tokens ("iri", "blank", "lit") for N-Triples syntax too,
	// since N-Triples is a strict subset of the pattern-term grammar.
	if len(toks) < 4 {
		return Triple{}, fmt.Errorf("rdf: malformed n-triples line %q", line)
	}
	s, err := termFromToken(toks[0])
	if err != nil {
		return Triple{}, err
	}
	p, err := termFromToken(toks[1])
	if err != nil {
		return Triple{}, err
	}
	o, err := termFromToken(toks[2])
	if err != nil {
		return Triple{}, err
	}
	return Triple{Subject: s, Predicate: p, Object: o}, nil
}

func termFromToken(t token) (Term, error) {
	switch t.kind {
	case "iri":
		return IRI(t.text), nil
	case "blank":
		return Blank(t.text), nil
	case "lit":
		return parseLiteralToken(t.text), nil
	default:
		return Term{}, fmt.Errorf("rdf: unexpected n-triples token %q", t.text)
	}
}
