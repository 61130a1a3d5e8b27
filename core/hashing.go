package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Hash is a 32-byte content digest, displayed as a 64-character hex string
// everywhere it crosses a wire or a log line (spec §3 "hex string").
type Hash [32]byte

// GenesisPreviousHash is the fixed constant used as block 0's previous_hash
// (spec §3: "genesis uses a fixed constant (e.g., 64 zero hex chars)").
var GenesisPreviousHash = Hash{}

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == Hash{} }

// HashFromHex parses a 64-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, Coded(ErrHashMismatch, "invalid hex: "+err.Error())
	}
	if len(b) != len(h) {
		return h, Coded(ErrHashMismatch, "wrong hash length")
	}
	copy(h[:], b)
	return h, nil
}

// signingHasher accumulates bytes for the bit-exact encoding used by
// Transaction.SigningHash, wrapping the sha256.New()/h.Write() calls;
// ComputeBlockHash writes to its own sha256 hash directly.
type signingHasher struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func newSigningHasher() signingHasher { return signingHasher{h: sha256.New()} }

func (s signingHasher) write(b []byte)   { s.h.Write(b) }
func (s signingHasher) writeByte(b byte) { s.h.Write([]byte{b}) }

func (s signingHasher) sum() Hash {
	var out Hash
	copy(out[:], s.h.Sum(nil))
	return out
}

func lenPrefixedUTF8(s string) []byte {
	out := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(out[:4], uint32(len(s)))
	copy(out[4:], s)
	return out
}

// ComputeBlockHash implements the bit-exact canonical encoding of spec §6:
//
//	H( u64_be(index)
//	 || len_prefixed_utf8(timestamp_rfc3339)
//	 || hex32(previous_hash)
//	 || len_prefixed_utf8(graph_iri)
//	 || hex32(graph_hash)
//	 || raw32(authority_pubkey) )
//
// The signature is never part of the hash (ε placeholder in spec §3).
func ComputeBlockHash(index uint64, timestampRFC3339 string, previousHash Hash, graphIRI string, graphHash Hash, authorityPubKey []byte) Hash {
	h := sha256.New()

	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], index)
	h.Write(idxBuf[:])

	h.Write(lenPrefixedUTF8(timestampRFC3339))

	prevHex := previousHash.Hex()
	h.Write([]byte(prevHex))

	h.Write(lenPrefixedUTF8(graphIRI))

	graphHex := graphHash.Hex()
	h.Write([]byte(graphHex))

	var pk [32]byte
	copy(pk[:], authorityPubKey)
	h.Write(pk[:])

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
