package rdf

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

var graphsBucket = []byte("graphs")

// boltPersistence durably backs a Store with one bbolt sub-bucket per named
// graph, keyed by triple N-Triples text. Grounded on the teacher's ledger
// package, which persists its UTXO/account state through go.etcd.io/bbolt
// with exactly this bucket-per-collection layout.
type boltPersistence struct {
	db *bolt.DB
}

// OpenBoltPersistence opens (creating if absent) a bbolt database at path
// for use as a Store's durability backend.
func OpenBoltPersistence(path string) (*boltPersistence, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(graphsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltPersistence{db: db}, nil
}

func (p *boltPersistence) PutGraph(iri string, triples []Triple) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		graphs := tx.Bucket(graphsBucket)
		if err := graphs.DeleteBucket([]byte(iri)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		gb, err := graphs.CreateBucket([]byte(iri))
		if err != nil {
			return err
		}
		for _, t := range triples {
			if err := gb.Put([]byte(t.Key()), []byte(t.NTriples())); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *boltPersistence) DropGraph(iri string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		graphs := tx.Bucket(graphsBucket)
		err := graphs.DeleteBucket([]byte(iri))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

func (p *boltPersistence) LoadAll() (map[string][]Triple, error) {
	out := make(map[string][]Triple)
	err := p.db.View(func(tx *bolt.Tx) error {
		graphs := tx.Bucket(graphsBucket)
		return graphs.ForEach(func(name, v []byte) error {
			if v != nil {
				// Not a nested bucket; graphsBucket only ever holds
				// per-graph sub-buckets, but skip defensively.
				return nil
			}
			gb := graphs.Bucket(name)
			var triples []Triple
			err := gb.ForEach(func(_, tv []byte) error {
				tr, err := parseTriple(string(tv))
				if err != nil {
					return err
				}
				triples = append(triples, tr)
				return nil
			})
			if err != nil {
				return err
			}
			out[string(name)] = append([]Triple{}, triples...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *boltPersistence) Close() error {
	return p.db.Close()
}
