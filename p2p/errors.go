package p2p

import "errors"

var (
	// ErrIncompatibleVersion is returned when a peer's major protocol
	// version differs from ours; spec §4.7: "major increments are
	// rejected at handshake".
	ErrIncompatibleVersion = errors.New("p2p: incompatible protocol version")
	// ErrHandshakeRequired is returned when a non-Hello message arrives
	// before the session has completed its handshake.
	ErrHandshakeRequired = errors.New("p2p: handshake required before other message kinds")
	// ErrNetworkMismatch is returned when a peer's network_id differs
	// from ours at handshake.
	ErrNetworkMismatch = errors.New("p2p: network_id mismatch")
	// ErrSessionClosed is returned by operations attempted on a session
	// that has already transitioned to Closed.
	ErrSessionClosed = errors.New("p2p: session closed")
	// ErrInvalidTransition is returned when a session state transition is
	// attempted that the state machine does not allow.
	ErrInvalidTransition = errors.New("p2p: invalid session state transition")
)
