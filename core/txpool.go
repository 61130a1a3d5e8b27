package core

import (
	"hash/fnv"
	"sync"

	"github.com/provchain/core/rdf"
)

// txPoolShards is the shard count for the pending-transaction pool's
// sharded mutex, per spec §5 ("pending-transaction pool uses a sharded
// mutex keyed by id.hash"). A small fixed power of two keeps contention
// low without per-node tuning.
const txPoolShards = 16

type txShard struct {
	mu  sync.Mutex
	txs map[string]*Transaction
}

// TxPool is the at-most-once pending transaction set. Inclusion is keyed
// by Transaction.ID; a transaction whose ID is already pending is rejected.
// The pool keeps no record of evicted transactions, so an ID evicted after
// its block committed can be admitted again.
type TxPool struct {
	shards  [txPoolShards]*txShard
	maxSize int

	sizeMu sync.Mutex
	size   int
}

// NewTxPool constructs a pool that rejects admission past maxSize pending
// transactions with ErrPoolFull. maxSize <= 0 means unbounded.
func NewTxPool(maxSize int) *TxPool {
	p := &TxPool{maxSize: maxSize}
	for i := range p.shards {
		p.shards[i] = &txShard{txs: make(map[string]*Transaction)}
	}
	return p
}

func (p *TxPool) shardFor(id string) *txShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return p.shards[h.Sum32()%txPoolShards]
}

// Admit inserts tx into the pool if no transaction with the same ID is
// already pending. Callers must run tx.Verify() and per-kind validation
// before calling Admit; the pool itself only enforces the at-most-once and
// capacity contracts of spec §4.5/§5.
func (p *TxPool) Admit(tx *Transaction) error {
	shard := p.shardFor(tx.ID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, exists := shard.txs[tx.ID]; exists {
		return Coded(ErrAlreadyApplied, "transaction already pending: "+tx.ID)
	}

	p.sizeMu.Lock()
	if p.maxSize > 0 && p.size >= p.maxSize {
		p.sizeMu.Unlock()
		return ErrPoolFull
	}
	p.size++
	p.sizeMu.Unlock()

	shard.txs[tx.ID] = tx
	return nil
}

// Get returns the pending transaction with the given ID, if any.
func (p *TxPool) Get(id string) (*Transaction, bool) {
	shard := p.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	tx, ok := shard.txs[id]
	return tx, ok
}

// Evict removes a transaction from the pool. Consensus.AdmitCandidate
// evicts (through EvictIncluded) after AtomicCoordinator.AddBlockAtomically
// has returned, outside the coordinator's critical section, so a committed
// block's transactions stay pending for a short window after the commit.
func (p *TxPool) Evict(id string) {
	shard := p.shardFor(id)
	shard.mu.Lock()
	_, existed := shard.txs[id]
	delete(shard.txs, id)
	shard.mu.Unlock()
	if existed {
		p.sizeMu.Lock()
		p.size--
		p.sizeMu.Unlock()
	}
}

// Size returns the current pending transaction count.
func (p *TxPool) Size() int {
	p.sizeMu.Lock()
	defer p.sizeMu.Unlock()
	return p.size
}

// EvictIncluded removes every pending transaction whose full payload is
// already contained in committedPayload, so any committed block purges
// matching pool entries on application — whether the block was self-
// produced (spec §4.5: "included in a block → purged from pool on block
// apply") or admitted from a peer via the sync engine, which only ever
// carries payload triples rather than pool transaction IDs.
func (p *TxPool) EvictIncluded(committedPayload []rdf.Triple) {
	if len(committedPayload) == 0 {
		return
	}
	present := make(map[string]bool, len(committedPayload))
	for _, t := range committedPayload {
		present[t.Key()] = true
	}
	var toEvict []string
	for _, shard := range p.shards {
		shard.mu.Lock()
		for id, tx := range shard.txs {
			if len(tx.PayloadRDF) == 0 {
				continue
			}
			included := true
			for _, t := range tx.PayloadRDF {
				if !present[t.Key()] {
					included = false
					break
				}
			}
			if included {
				toEvict = append(toEvict, id)
			}
		}
		shard.mu.Unlock()
	}
	for _, id := range toEvict {
		p.Evict(id)
	}
}

// Pick returns up to max pending transactions for block assembly, shard by
// shard; the order within a shard is not defined. It does not remove them
// from the pool;
// eviction happens on commit via Evict.
func (p *TxPool) Pick(max int) []*Transaction {
	var out []*Transaction
	for _, shard := range p.shards {
		shard.mu.Lock()
		for _, tx := range shard.txs {
			out = append(out, tx)
			if len(out) >= max && max > 0 {
				shard.mu.Unlock()
				return out
			}
		}
		shard.mu.Unlock()
	}
	return out
}
