package core

import (
	"encoding/hex"
	"sync"

	"github.com/provchain/core/rdf"
)

// PermissionGraphIRI is the reserved graph recording RBAC grants as
// hasPermission triples. RoleRegistry.Grant writes them with
// Store.AddTriples, outside any block commit; Governance transactions in a
// committed block do not write to this graph.
const PermissionGraphIRI = "urn:provchain:permissions"

const predHasPermission = "urn:provchain:permissions#hasPermission"

// RoleRegistry is an in-memory, cached RBAC grant table backed by the
// permission graph, answering core.PermissionChecker for Compliance/
// Governance transactions (spec §4.5: "signer must hold the corresponding
// permission"). Grounded on the teacher's AccessController
// (core/access_control.go): same cache-over-backing-store shape and
// grant/revoke/has-role surface, adapted from the teacher's ledger-keyed
// storage to a graph of hasPermission triples, since this store is
// RDF-native rather than key/value.
type RoleRegistry struct {
	mu    sync.Mutex
	store *rdf.Store
	cache map[string]map[string]bool // pubkey hex -> permission -> granted
}

// NewRoleRegistry wires a registry over store, replaying any grants
// already committed to the permission graph (e.g. from a prior run).
func NewRoleRegistry(store *rdf.Store) *RoleRegistry {
	rr := &RoleRegistry{store: store, cache: make(map[string]map[string]bool)}
	if triples, ok := store.Triples(PermissionGraphIRI); ok {
		for _, t := range triples {
			if t.Predicate.IsIRI() && t.Predicate.Value == predHasPermission && t.Subject.IsIRI() {
				rr.grantLocked(t.Subject.Value, t.Object.Value)
			}
		}
	}
	return rr
}

func (rr *RoleRegistry) grantLocked(pubkeyHex, permission string) {
	granted, ok := rr.cache[pubkeyHex]
	if !ok {
		granted = make(map[string]bool)
		rr.cache[pubkeyHex] = granted
	}
	granted[permission] = true
}

// Grant records that pubkey holds permission, persisting the grant as a
// triple in the permission graph. Idempotent: granting an already-held
// permission is a no-op.
func (rr *RoleRegistry) Grant(pubkey []byte, permission string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	pubkeyHex := hex.EncodeToString(pubkey)
	if rr.cache[pubkeyHex][permission] {
		return nil
	}
	triple := rdf.Triple{Subject: rdf.IRI(pubkeyHex), Predicate: rdf.IRI(predHasPermission), Object: rdf.IRI(permission)}
	if err := rr.store.AddTriples(PermissionGraphIRI, []rdf.Triple{triple}); err != nil {
		return err
	}
	rr.grantLocked(pubkeyHex, permission)
	return nil
}

// HasPermission implements PermissionChecker.
func (rr *RoleRegistry) HasPermission(pubkey []byte, permission string) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.cache[hex.EncodeToString(pubkey)][permission]
}
