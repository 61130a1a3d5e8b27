package core

import (
	"time"

	"github.com/provchain/core/rdf"
)

// BlockView is the Web/API layer's read projection of a committed block,
// including its payload triples (spec §6 "get_block(index) -> BlockView").
type BlockView struct {
	Header  Header
	Payload []rdf.Triple
}

// SubmitResult is the outcome of submit_transaction (spec §6).
type SubmitResult struct {
	Accepted bool
	ID       string
	Reason   string
}

// NodeAPI is the collaborator surface spec §6 says the Web/API layer
// consumes. An HTTP/gRPC transport (itself out of this repository's
// scope — it is an external collaborator, not a component of the spec)
// would implement its handlers in terms of this interface.
type NodeAPI interface {
	SubmitTransaction(tx *Transaction) SubmitResult
	Head() (height uint64, hash Hash)
	GetBlock(index uint64) (BlockView, bool)
	QuerySPARQL(text string) (*rdf.SelectResult, error)
	IntegrityStatus() any
	Events() <-chan Event
}

// Node implements NodeAPI by composing the chain, store, pool, and
// coordinator. Integrity status is supplied by an injected provider so
// this package does not import package integrity (which instead depends
// on core), avoiding an import cycle.
type Node struct {
	Store       *rdf.Store
	Chain       *Chain
	Pool        *TxPool
	Coordinator *AtomicCoordinator
	Authorities *AuthoritySet
	Permissions PermissionChecker
	Bus         *EventBus

	IntegrityStatusFunc func() any
}

func (n *Node) SubmitTransaction(tx *Transaction) SubmitResult {
	if n.Coordinator.Degraded() {
		return SubmitResult{Accepted: false, ID: tx.ID, Reason: "node is FatalDegraded"}
	}
	if err := tx.Verify(); err != nil {
		return SubmitResult{Accepted: false, ID: tx.ID, Reason: err.Error()}
	}
	resolver := StoreEntityResolver{Store: n.Store, CacheEpoch: n.Chain.HeadHash().Hex()}
	if err := ValidateTransaction(tx, resolver, n.Permissions); err != nil {
		return SubmitResult{Accepted: false, ID: tx.ID, Reason: err.Error()}
	}
	if err := n.Pool.Admit(tx); err != nil {
		return SubmitResult{Accepted: false, ID: tx.ID, Reason: err.Error()}
	}
	if n.Bus != nil {
		n.Bus.Publish(Event{Kind: EventTxAccepted, At: time.Now().UTC(), Payload: tx})
	}
	return SubmitResult{Accepted: true, ID: tx.ID}
}

func (n *Node) Head() (uint64, Hash) {
	head, ok := n.Chain.Head()
	if !ok {
		return 0, GenesisPreviousHash
	}
	return head.Index, head.Hash
}

func (n *Node) GetBlock(index uint64) (BlockView, bool) {
	b, ok := n.Chain.Get(index)
	if !ok {
		return BlockView{}, false
	}
	triples, _ := n.Store.Triples(b.GraphIRI)
	return BlockView{Header: b.Header(), Payload: triples}, true
}

func (n *Node) QuerySPARQL(text string) (*rdf.SelectResult, error) {
	return n.Store.Select(text, n.Chain.HeadHash().Hex())
}

func (n *Node) IntegrityStatus() any {
	if n.IntegrityStatusFunc == nil {
		return nil
	}
	return n.IntegrityStatusFunc()
}

func (n *Node) Events() <-chan Event {
	if n.Bus == nil {
		return nil
	}
	return n.Bus.Subscribe(64)
}

var _ NodeAPI = (*Node)(nil)
