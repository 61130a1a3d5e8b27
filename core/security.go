package core

import (
	"crypto/ed25519"
)

// Signing uses the Edwards-curve scheme spec §4.5 calls for: 32-byte public
// keys, 64-byte signatures. Grounded on the teacher's security.go, which
// offers Ed25519 alongside BLS12-381 for validator signing; BLS is a
// Non-goal here (see DESIGN.md) so only the Ed25519 path is kept, backed
// directly by crypto/ed25519 exactly as the teacher does for its wallet
// signing path.
const (
	PublicKeySize  = ed25519.PublicKeySize
	SignatureSize  = ed25519.SignatureSize
	PrivateKeySize = ed25519.PrivateKeySize
)

// Sign produces a detached signature over msg using an ed25519 private key.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// VerifySignature checks sig over msg under pub. It never panics on
// malformed key/signature lengths, returning false instead.
func VerifySignature(pub []byte, msg, sig []byte) bool {
	if len(pub) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
