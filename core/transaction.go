package core

import (
	"encoding/binary"
	"time"

	"github.com/provchain/core/canon"
	"github.com/provchain/core/rdf"
)

// TxKind enumerates the allowed transaction kinds of spec §4.5. Each kind
// gates a distinct predicate/property shape on PayloadRDF, enforced by the
// per-kind validators in validation.go.
type TxKind uint8

const (
	TxProduction TxKind = iota
	TxProcessing
	TxTransport
	TxQuality
	TxTransfer
	TxEnvironmental
	TxCompliance
	TxGovernance
)

func (k TxKind) String() string {
	switch k {
	case TxProduction:
		return "Production"
	case TxProcessing:
		return "Processing"
	case TxTransport:
		return "Transport"
	case TxQuality:
		return "Quality"
	case TxTransfer:
		return "Transfer"
	case TxEnvironmental:
		return "Environmental"
	case TxCompliance:
		return "Compliance"
	case TxGovernance:
		return "Governance"
	default:
		return "Unknown"
	}
}

// Transaction is the unit of provenance admitted to a block, per spec §3.
type Transaction struct {
	ID           string       `json:"id"`
	Kind         TxKind       `json:"kind"`
	SenderPubKey []byte       `json:"sender_pubkey"`
	PayloadRDF   []rdf.Triple `json:"payload_rdf"`
	Timestamp    time.Time    `json:"timestamp"`
	Nonce        uint64       `json:"nonce"`
	Signature    []byte       `json:"signature,omitempty"`
}

// SigningHash derives the digest a transaction's Signature is computed
// over: `len_prefixed(id) || byte(kind) || raw(sender_pubkey) ||
// u64_be(nonce) || len_prefixed(timestamp) || hex32(canon_hash(payload))`.
// Mirrors ComputeBlockHash's encoding discipline (core/hashing.go) so both
// signed artifacts in the system use the same anti-ambiguity conventions.
func (tx *Transaction) SigningHash() (Hash, error) {
	payloadDigest, err := canon.Hash(tx.PayloadRDF)
	if err != nil {
		return Hash{}, err
	}
	h := newSigningHasher()
	h.write(lenPrefixedUTF8(tx.ID))
	h.writeByte(byte(tx.Kind))
	var pk [32]byte
	copy(pk[:], tx.SenderPubKey)
	h.write(pk[:])
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], tx.Nonce)
	h.write(nonceBuf[:])
	h.write(lenPrefixedUTF8(tx.Timestamp.UTC().Format(time.RFC3339)))
	h.write([]byte(Digest(payloadDigest).Hex()))
	return h.sum(), nil
}

// Digest is a local alias so canon.Digest's Hex method is reachable without
// importing canon into every caller of SigningHash.
type Digest = canon.Digest

// Verify checks the transaction's detached Ed25519 signature against its
// signing hash. Returns ErrBadSignature on failure.
func (tx *Transaction) Verify() error {
	digest, err := tx.SigningHash()
	if err != nil {
		return err
	}
	if !VerifySignature(tx.SenderPubKey, digest[:], tx.Signature) {
		return ErrBadSignature
	}
	return nil
}
