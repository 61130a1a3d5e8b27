package core

import (
	"errors"
	"testing"

	"github.com/provchain/core/rdf"
)

type fakeResolver struct {
	known map[string]bool
}

func (f fakeResolver) EntityExists(iri string) bool { return f.known[iri] }

type fakePermChecker struct {
	granted map[string]bool
}

func (f fakePermChecker) HasPermission(pubkey []byte, permission string) bool {
	return f.granted[string(pubkey)+"|"+permission]
}

func TestValidateProductionRequiresNewProduct(t *testing.T) {
	tx := &Transaction{Kind: TxProduction, PayloadRDF: []rdf.Triple{
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredRDFType), Object: rdf.IRI(ClassProduct)},
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredProducedBy), Object: rdf.IRI("urn:producer1")},
		{Subject: rdf.IRI("urn:producer1"), Predicate: rdf.IRI(PredRDFType), Object: rdf.IRI(ClassProducer)},
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredOriginLocation), Object: rdf.IRI("urn:loc1")},
	}}
	resolver := fakeResolver{known: map[string]bool{}}
	if err := ValidateTransaction(tx, resolver, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateProductionRejectsExistingEntity(t *testing.T) {
	tx := &Transaction{Kind: TxProduction, PayloadRDF: []rdf.Triple{
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredRDFType), Object: rdf.IRI(ClassProduct)},
	}}
	resolver := fakeResolver{known: map[string]bool{"urn:p1": true}}
	if err := ValidateTransaction(tx, resolver, nil); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestValidateProductionRejectsMissingProducerType(t *testing.T) {
	tx := &Transaction{Kind: TxProduction, PayloadRDF: []rdf.Triple{
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredRDFType), Object: rdf.IRI(ClassProduct)},
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredProducedBy), Object: rdf.IRI("urn:producer1")},
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredOriginLocation), Object: rdf.IRI("urn:loc1")},
	}}
	resolver := fakeResolver{known: map[string]bool{}}
	if err := ValidateTransaction(tx, resolver, nil); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for non-Producer producedBy target, got %v", err)
	}
}

func TestValidateReferencesExistingAcceptsAnyKnownEntity(t *testing.T) {
	tx := &Transaction{Kind: TxProcessing, PayloadRDF: []rdf.Triple{
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI("urn:provchain:onto#step"), Object: rdf.IRI("urn:stepA")},
	}}
	resolver := fakeResolver{known: map[string]bool{"urn:p1": true}}
	if err := ValidateTransaction(tx, resolver, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateReferencesExistingRejectsUnknownEntities(t *testing.T) {
	tx := &Transaction{Kind: TxTransport, PayloadRDF: []rdf.Triple{
		{Subject: rdf.IRI("urn:unknown"), Predicate: rdf.IRI("urn:provchain:onto#step"), Object: rdf.IRI("urn:alsounknown")},
	}}
	resolver := fakeResolver{known: map[string]bool{}}
	if err := ValidateTransaction(tx, resolver, nil); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestValidateTransferRequiresBothRegisteredParties(t *testing.T) {
	payload := []rdf.Triple{
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredCurrentOwner), Object: rdf.IRI("urn:owner-old")},
		{Subject: rdf.IRI("urn:p1"), Predicate: rdf.IRI(PredNewOwner), Object: rdf.IRI("urn:owner-new")},
	}
	tx := &Transaction{Kind: TxTransfer, PayloadRDF: payload}

	resolver := fakeResolver{known: map[string]bool{"urn:owner-old": true, "urn:owner-new": true}}
	if err := ValidateTransaction(tx, resolver, nil); err != nil {
		t.Fatalf("unexpected error with both parties registered: %v", err)
	}

	resolverMissingNew := fakeResolver{known: map[string]bool{"urn:owner-old": true}}
	if err := ValidateTransaction(tx, resolverMissingNew, nil); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed when newOwner is unregistered, got %v", err)
	}
}

func TestValidatePermissionedRequiresGrant(t *testing.T) {
	tx := &Transaction{Kind: TxGovernance, SenderPubKey: []byte{1, 2, 3}}

	noPerm := fakePermChecker{granted: map[string]bool{}}
	if err := ValidateTransaction(tx, nil, noPerm); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed without a grant, got %v", err)
	}

	withPerm := fakePermChecker{granted: map[string]bool{string([]byte{1, 2, 3}) + "|permission:Governance": true}}
	if err := ValidateTransaction(tx, nil, withPerm); err != nil {
		t.Fatalf("unexpected error with a grant: %v", err)
	}
}

func TestValidatePermissionedRejectsNilChecker(t *testing.T) {
	tx := &Transaction{Kind: TxCompliance}
	if err := ValidateTransaction(tx, nil, nil); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed with a nil permission checker, got %v", err)
	}
}

func TestValidateTransactionUnknownKind(t *testing.T) {
	tx := &Transaction{Kind: TxKind(200)}
	if err := ValidateTransaction(tx, nil, nil); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for unknown kind, got %v", err)
	}
}
