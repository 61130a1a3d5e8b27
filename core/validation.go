package core

import (
	"fmt"

	"github.com/provchain/core/rdf"
)

// Ontology predicate/class IRIs the per-kind validators below reason
// about. A deployment's actual ontology (loaded by package ontology) may
// define richer vocabulary; these are the minimum terms spec §4.5's
// per-kind rules require every deployment to honor.
const (
	PredRDFType        = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	ClassProduct       = "urn:provchain:onto#Product"
	ClassProducer      = "urn:provchain:onto#Producer"
	ClassParticipant   = "urn:provchain:onto#Participant"
	PredProducedBy     = "urn:provchain:onto#producedBy"
	PredOriginLocation = "urn:provchain:onto#originLocation"
	PredCurrentOwner   = "urn:provchain:onto#currentOwner"
	PredNewOwner       = "urn:provchain:onto#newOwner"
)

// EntityResolver answers whether an IRI already denotes an entity in some
// already-committed payload graph. Backed by rdf.Store in production; a
// fake implementation is used in tests.
type EntityResolver interface {
	EntityExists(iri string) bool
}

// StoreEntityResolver resolves entities via SPARQL ASK against the union
// of all committed payload graphs.
type StoreEntityResolver struct {
	Store      *rdf.Store
	CacheEpoch string
}

func (r StoreEntityResolver) EntityExists(iri string) bool {
	asSubject := fmt.Sprintf("ASK WHERE { <%s> ?p ?o . }", iri)
	if ok, err := r.Store.Ask(asSubject, r.CacheEpoch); err == nil && ok {
		return true
	}
	asObject := fmt.Sprintf("ASK WHERE { ?s ?p <%s> . }", iri)
	ok, err := r.Store.Ask(asObject, r.CacheEpoch)
	return err == nil && ok
}

// PermissionChecker answers whether a signer holds a named permission,
// supplied by the Auth layer collaborator (spec §6).
type PermissionChecker interface {
	HasPermission(pubkey []byte, permission string) bool
}

// ValidateTransaction runs the per-kind business-rule validator of spec
// §4.5. Signature verification is a separate step (Transaction.Verify);
// callers run both before admitting a transaction to the pool.
func ValidateTransaction(tx *Transaction, resolver EntityResolver, perms PermissionChecker) error {
	switch tx.Kind {
	case TxProduction:
		return validateProduction(tx, resolver)
	case TxProcessing, TxTransport, TxQuality, TxEnvironmental:
		return validateReferencesExisting(tx, resolver)
	case TxTransfer:
		return validateTransfer(tx, resolver)
	case TxCompliance, TxGovernance:
		return validatePermissioned(tx, perms)
	default:
		return Coded(ErrValidationFailed, "unknown transaction kind")
	}
}

// validateProduction requires the payload to bind a new Product entity to
// a Producer agent with an originating location.
func validateProduction(tx *Transaction, resolver EntityResolver) error {
	product, ok := findSubjectOfType(tx.PayloadRDF, ClassProduct)
	if !ok {
		return Coded(ErrValidationFailed, "production tx: no Product-typed entity in payload")
	}
	if resolver.EntityExists(product) {
		return Coded(ErrValidationFailed, "production tx: entity "+product+" already exists")
	}
	producer, ok := findObject(tx.PayloadRDF, product, PredProducedBy)
	if !ok {
		return Coded(ErrValidationFailed, "production tx: missing producedBy link")
	}
	if !hasType(tx.PayloadRDF, producer, ClassProducer) {
		return Coded(ErrValidationFailed, "production tx: producedBy target is not a Producer")
	}
	if _, ok := findObject(tx.PayloadRDF, product, PredOriginLocation); !ok {
		return Coded(ErrValidationFailed, "production tx: missing originLocation")
	}
	return nil
}

// validateReferencesExisting covers Processing, Transport, Quality, and
// Environmental: the payload must reference, by IRI, at least one entity
// already present in a committed payload graph.
func validateReferencesExisting(tx *Transaction, resolver EntityResolver) error {
	for _, t := range tx.PayloadRDF {
		if t.Subject.IsIRI() && resolver.EntityExists(t.Subject.Value) {
			return nil
		}
		if t.Object.IsIRI() && resolver.EntityExists(t.Object.Value) {
			return nil
		}
	}
	return Coded(ErrValidationFailed, fmt.Sprintf("%s tx: no reference to an existing entity", tx.Kind))
}

// validateTransfer requires both a current owner and a new owner, each a
// registered Participant.
func validateTransfer(tx *Transaction, resolver EntityResolver) error {
	var subject string
	for _, t := range tx.PayloadRDF {
		if t.Predicate.IsIRI() && (t.Predicate.Value == PredCurrentOwner || t.Predicate.Value == PredNewOwner) {
			subject = t.Subject.Value
			break
		}
	}
	if subject == "" {
		return Coded(ErrValidationFailed, "transfer tx: no currentOwner/newOwner statement")
	}
	current, ok := findObject(tx.PayloadRDF, subject, PredCurrentOwner)
	if !ok {
		return Coded(ErrValidationFailed, "transfer tx: missing currentOwner")
	}
	next, ok := findObject(tx.PayloadRDF, subject, PredNewOwner)
	if !ok {
		return Coded(ErrValidationFailed, "transfer tx: missing newOwner")
	}
	if !resolver.EntityExists(current) {
		return Coded(ErrValidationFailed, "transfer tx: currentOwner "+current+" not registered")
	}
	if !resolver.EntityExists(next) {
		return Coded(ErrValidationFailed, "transfer tx: newOwner "+next+" not registered")
	}
	return nil
}

// validatePermissioned covers Compliance and Governance: the signer must
// hold the permission matching the transaction kind.
func validatePermissioned(tx *Transaction, perms PermissionChecker) error {
	if perms == nil {
		return Coded(ErrValidationFailed, "permission checker unavailable")
	}
	permission := "permission:" + tx.Kind.String()
	if !perms.HasPermission(tx.SenderPubKey, permission) {
		return Coded(ErrValidationFailed, tx.Kind.String()+" tx: signer lacks "+permission)
	}
	return nil
}

func findSubjectOfType(triples []rdf.Triple, class string) (string, bool) {
	for _, t := range triples {
		if t.Predicate.IsIRI() && t.Predicate.Value == PredRDFType && t.Object.IsIRI() && t.Object.Value == class && t.Subject.IsIRI() {
			return t.Subject.Value, true
		}
	}
	return "", false
}

func hasType(triples []rdf.Triple, subject, class string) bool {
	for _, t := range triples {
		if t.Subject.IsIRI() && t.Subject.Value == subject &&
			t.Predicate.IsIRI() && t.Predicate.Value == PredRDFType &&
			t.Object.IsIRI() && t.Object.Value == class {
			return true
		}
	}
	return false
}

func findObject(triples []rdf.Triple, subject, predicate string) (string, bool) {
	for _, t := range triples {
		if t.Subject.IsIRI() && t.Subject.Value == subject &&
			t.Predicate.IsIRI() && t.Predicate.Value == predicate &&
			t.Object.IsIRI() {
			return t.Object.Value, true
		}
	}
	return "", false
}
