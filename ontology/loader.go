// Package ontology loads the boot-time vocabulary graph a provchain
// deployment commits to (Product/Producer/Participant classes and the
// predicates validation.go reasons about) into the reserved
// urn:provchain:ontology graph, before the node starts admitting blocks.
package ontology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/provchain/core/rdf"
)

// Manifest is the on-disk shape of an ontology definition file: a set of
// named classes and properties, each carrying an optional human-readable
// label, plus a flat list of any additional raw N-Triples statements a
// deployment wants to seed (e.g. subClassOf/domain/range axioms the class
// and property lists don't capture directly).
type Manifest struct {
	Classes    []Term   `yaml:"classes"`
	Properties []Term   `yaml:"properties"`
	Statements []string `yaml:"statements"`
}

// Term is one named vocabulary entry.
type Term struct {
	IRI   string `yaml:"iri"`
	Label string `yaml:"label"`
}

const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
const rdfsLabel = "http://www.w3.org/2000/01/rdf-schema#label"
const owlClass = "http://www.w3.org/2002/07/owl#Class"
const rdfProperty = "http://www.w3.org/1999/02/22-rdf-syntax-ns#Property"

// LoadFile reads a YAML manifest from path and loads it into store's
// reserved ontology graph. Grounded on the teacher's pkg/config loader
// (file-driven static load at startup, fmt.Errorf wrapping) generalized
// from node configuration to vocabulary data.
func LoadFile(store *rdf.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ontology: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("ontology: parse manifest %s: %w", path, err)
	}
	return Load(store, m)
}

// Load builds the ontology graph's triples from m and inserts them into
// store's urn:provchain:ontology graph. Fails if that graph already exists;
// callers only load the ontology once, at boot, before any block is
// admitted.
func Load(store *rdf.Store, m Manifest) error {
	var triples []rdf.Triple
	for _, c := range m.Classes {
		triples = append(triples, rdf.Triple{Subject: rdf.IRI(c.IRI), Predicate: rdf.IRI(rdfType), Object: rdf.IRI(owlClass)})
		if c.Label != "" {
			triples = append(triples, rdf.Triple{Subject: rdf.IRI(c.IRI), Predicate: rdf.IRI(rdfsLabel), Object: rdf.Lit(c.Label)})
		}
	}
	for _, p := range m.Properties {
		triples = append(triples, rdf.Triple{Subject: rdf.IRI(p.IRI), Predicate: rdf.IRI(rdfType), Object: rdf.IRI(rdfProperty)})
		if p.Label != "" {
			triples = append(triples, rdf.Triple{Subject: rdf.IRI(p.IRI), Predicate: rdf.IRI(rdfsLabel), Object: rdf.Lit(p.Label)})
		}
	}
	if len(m.Statements) > 0 {
		extra, err := rdf.ParseNTriples(joinLines(m.Statements))
		if err != nil {
			return fmt.Errorf("ontology: parse raw statements: %w", err)
		}
		triples = append(triples, extra...)
	}

	const graphIRI = "urn:provchain:ontology"
	if err := store.InsertGraph(graphIRI, triples); err != nil {
		return fmt.Errorf("ontology: insert graph: %w", err)
	}
	return nil
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
