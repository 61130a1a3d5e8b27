package rdf

import (
	"sort"
	"sync"
)

// persister is the narrow interface Store needs from its durability layer,
// satisfied by *boltPersistence (bolt.go). A nil persister means the store
// is memory-only, matching spec §4.1's "Storage.Persistent = false" mode.
type persister interface {
	PutGraph(iri string, triples []Triple) error
	DropGraph(iri string) error
	LoadAll() (map[string][]Triple, error)
	Close() error
}

// Store is the named-graph triple store of spec §4.1 (C1). All graph
// mutation methods take the single write lock; reads (including query
// evaluation) take the read lock, matching the teacher's single-writer/
// multi-reader discipline used throughout its ledger package.
type Store struct {
	mu     sync.RWMutex
	graphs map[string]map[string]Triple // graphIRI -> tripleKey -> Triple

	persist persister
	cache   *queryCache
}

// NewStore constructs a memory-only store with no query cache.
func NewStore() *Store {
	return &Store{graphs: make(map[string]map[string]Triple)}
}

// WithPersistence attaches a durability backend, replaying its contents
// into memory. Call once, before the store serves traffic.
func (s *Store) WithPersistence(p persister) error {
	all, err := p.LoadAll()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = p
	for iri, triples := range all {
		idx := make(map[string]Triple, len(triples))
		for _, t := range triples {
			idx[t.Key()] = t
		}
		s.graphs[iri] = idx
	}
	return nil
}

// WithCache attaches an LRU query-result cache of the given entry capacity.
// Zero or negative size disables caching.
func (s *Store) WithCache(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = newQueryCache(size)
}

// InsertGraph creates a brand-new named graph. It fails with
// ErrDuplicateGraph if the IRI is already present, matching spec §4.1's
// invariant that a graph IRI is written exactly once (blocks never mutate
// an existing payload graph).
func (s *Store) InsertGraph(iri string, triples []Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graphs[iri]; exists {
		return ErrDuplicateGraph
	}
	idx := make(map[string]Triple, len(triples))
	for _, t := range triples {
		idx[t.Key()] = t
	}
	s.graphs[iri] = idx
	if s.persist != nil {
		if err := s.persist.PutGraph(iri, triples); err != nil {
			delete(s.graphs, iri)
			return err
		}
	}
	s.invalidateCacheLocked()
	return nil
}

// AddTriples appends triples to an existing graph, used by the meta and
// ontology graphs which grow incrementally rather than being written once
// (spec §4.1, §4.9).
func (s *Store) AddTriples(iri string, triples []Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.graphs[iri]
	if !ok {
		idx = make(map[string]Triple, len(triples))
		s.graphs[iri] = idx
	}
	for _, t := range triples {
		idx[t.Key()] = t
	}
	if s.persist != nil {
		if err := s.persist.PutGraph(iri, s.allTriplesLocked(iri)); err != nil {
			return err
		}
	}
	s.invalidateCacheLocked()
	return nil
}

// DropGraph removes a named graph entirely. Used by rollback to undo a
// staged-but-not-committed InsertGraph (spec §4.4).
func (s *Store) DropGraph(iri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[iri]; !ok {
		return ErrGraphNotFound
	}
	delete(s.graphs, iri)
	if s.persist != nil {
		if err := s.persist.DropGraph(iri); err != nil {
			return err
		}
	}
	s.invalidateCacheLocked()
	return nil
}

// GraphIRIs returns every named graph IRI currently stored, sorted for
// deterministic iteration.
func (s *Store) GraphIRIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graphIRIsLocked()
}

func (s *Store) graphIRIsLocked() []string {
	out := make([]string, 0, len(s.graphs))
	for iri := range s.graphs {
		out = append(out, iri)
	}
	sort.Strings(out)
	return out
}

// Triples returns a graph's triples in N-Triples-sorted order. The second
// return value is false if the graph does not exist.
func (s *Store) Triples(iri string) ([]Triple, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.graphs[iri]
	if !ok {
		return nil, false
	}
	out := make([]Triple, 0, len(idx))
	for _, t := range idx {
		out = append(out, t)
	}
	return SortTriples(out), true
}

func (s *Store) allTriplesLocked(iri string) []Triple {
	idx := s.graphs[iri]
	out := make([]Triple, 0, len(idx))
	for _, t := range idx {
		out = append(out, t)
	}
	return out
}

func (s *Store) invalidateCacheLocked() {
	if s.cache != nil {
		s.cache.clear()
	}
}

// Select evaluates a SPARQL SELECT query. cacheEpoch should be the caller's
// current chain head hash (or any stable token describing the data
// version); the store keys its query cache on (query text, cacheEpoch) per
// spec §4.1.
func (s *Store) Select(queryText, cacheEpoch string) (*SelectResult, error) {
	if s.cache != nil {
		if hit, ok := s.cache.get(queryText, cacheEpoch); ok {
			if res, ok := hit.(*SelectResult); ok {
				return res, nil
			}
		}
	}
	q, err := ParseQuery(queryText)
	if err != nil {
		return nil, err
	}
	if q.Kind != QuerySelect {
		return nil, &QueryError{Kind: QueryErrorEval, Message: "not a SELECT query"}
	}
	s.mu.RLock()
	bindings := s.evalWhere(q.Where)
	s.mu.RUnlock()

	vars := q.Vars
	if len(vars) == 0 {
		vars = collectVars(q.Where)
	}
	rows := make([]map[string]Term, 0, len(bindings))
	for _, b := range bindings {
		row := make(map[string]Term, len(vars))
		for _, v := range vars {
			if t, ok := b[v]; ok {
				row[v] = t
			}
		}
		rows = append(rows, row)
	}
	res := &SelectResult{Vars: vars, Rows: rows}
	if s.cache != nil {
		s.cache.put(queryText, cacheEpoch, res)
	}
	return res, nil
}

// Ask evaluates a SPARQL ASK query: true if the pattern has at least one
// solution.
func (s *Store) Ask(queryText, cacheEpoch string) (bool, error) {
	if s.cache != nil {
		if hit, ok := s.cache.get(queryText, cacheEpoch); ok {
			if b, ok := hit.(bool); ok {
				return b, nil
			}
		}
	}
	q, err := ParseQuery(queryText)
	if err != nil {
		return false, err
	}
	if q.Kind != QueryAsk {
		return false, &QueryError{Kind: QueryErrorEval, Message: "not an ASK query"}
	}
	s.mu.RLock()
	bindings := s.evalWhere(q.Where)
	s.mu.RUnlock()
	result := len(bindings) > 0
	if s.cache != nil {
		s.cache.put(queryText, cacheEpoch, result)
	}
	return result, nil
}

// Construct evaluates a SPARQL CONSTRUCT query, returning a deduplicated
// triple set built from the template for every matching binding.
func (s *Store) Construct(queryText, cacheEpoch string) ([]Triple, error) {
	if s.cache != nil {
		if hit, ok := s.cache.get(queryText, cacheEpoch); ok {
			if ts, ok := hit.([]Triple); ok {
				return ts, nil
			}
		}
	}
	q, err := ParseQuery(queryText)
	if err != nil {
		return nil, err
	}
	if q.Kind != QueryConstruct {
		return nil, &QueryError{Kind: QueryErrorEval, Message: "not a CONSTRUCT query"}
	}
	if len(q.Template) != 1 {
		return nil, &QueryError{Kind: QueryErrorEval, Message: "CONSTRUCT supports exactly one template triple"}
	}
	s.mu.RLock()
	bindings := s.evalWhere(q.Where)
	s.mu.RUnlock()

	seen := make(map[string]Triple)
	for _, b := range bindings {
		tr, ok := materialize(q.Template, b)
		if !ok {
			continue
		}
		seen[tr.Key()] = tr
	}
	out := make([]Triple, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	return SortTriples(out), nil
}

func collectVars(patterns []triplePattern) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(pt patternTerm) {
		if pt.isVar && !seen[pt.varName] {
			seen[pt.varName] = true
			out = append(out, pt.varName)
		}
	}
	for _, p := range patterns {
		add(p.S)
		add(p.P)
		add(p.O)
	}
	sort.Strings(out)
	return out
}

// Close releases the durability backend, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist != nil {
		return s.persist.Close()
	}
	return nil
}
