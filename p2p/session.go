package p2p

import (
	"sync"
	"time"
)

// SessionState is one position in the per-peer state machine of spec §4.7:
// Dialing -> Handshaking -> Ready -> {Syncing | Idle} -> Closing -> Closed.
type SessionState uint8

const (
	StateDialing SessionState = iota
	StateHandshaking
	StateReady
	StateSyncing
	StateIdle
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDialing:
		return "Dialing"
	case StateHandshaking:
		return "Handshaking"
	case StateReady:
		return "Ready"
	case StateSyncing:
		return "Syncing"
	case StateIdle:
		return "Idle"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// validTransitions enumerates the state machine's edges. Ready fans out to
// both Syncing and Idle; either can return to Ready once its round
// completes; any state can move to Closing, and Closing always ends at
// Closed.
var validTransitions = map[SessionState]map[SessionState]bool{
	StateDialing:     {StateHandshaking: true, StateClosing: true},
	StateHandshaking: {StateReady: true, StateClosing: true},
	StateReady:       {StateSyncing: true, StateIdle: true, StateClosing: true},
	StateSyncing:     {StateReady: true, StateIdle: true, StateClosing: true},
	StateIdle:        {StateReady: true, StateSyncing: true, StateClosing: true},
	StateClosing:     {StateClosed: true},
	StateClosed:      {},
}

// Session tracks one connected peer's handshake identity, liveness, and
// lifecycle state. Grounded on the teacher's core/network.go Peer struct
// (ID, Addr, Latency fields) generalized into an explicit state machine per
// spec §9's guidance to use an arena + lookup-table for peer state rather
// than pointer cycles between sessions.
type Session struct {
	mu sync.Mutex

	PeerID        string
	RemoteAddr    string
	NodeID        string
	NetworkID     string
	HeadHeight    uint64
	HeadHash      string
	state         SessionState
	lastHeartbeat time.Time
	peerTimeout   time.Duration
}

// NewSession constructs a session in the Dialing state for an outbound
// connection attempt to remoteAddr.
func NewSession(peerID, remoteAddr string, peerTimeout time.Duration) *Session {
	return &Session{
		PeerID:        peerID,
		RemoteAddr:    remoteAddr,
		state:         StateDialing,
		lastHeartbeat: time.Now(),
		peerTimeout:   peerTimeout,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to next, if the edge is legal; otherwise
// returns ErrInvalidTransition without mutating state.
func (s *Session) Transition(next SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if !validTransitions[s.state][next] {
		return ErrInvalidTransition
	}
	s.state = next
	return nil
}

// CompleteHandshake records the peer's Hello fields and moves the session
// to Ready. Rejects a network_id mismatch without changing state, so the
// caller can close with "Incompatible" per spec §4.7.
func (s *Session) CompleteHandshake(hello HelloMessage, ourNetworkID string) error {
	if hello.NetworkID != ourNetworkID {
		return ErrNetworkMismatch
	}
	s.mu.Lock()
	s.NodeID = hello.NodeID
	s.NetworkID = hello.NetworkID
	s.HeadHeight = hello.HeadHeight
	s.HeadHash = hello.HeadHash
	s.mu.Unlock()
	return s.Transition(StateReady)
}

// Touch records a heartbeat (Ping or Pong) arrival, resetting the idle
// timeout clock.
func (s *Session) Touch(at time.Time) {
	s.mu.Lock()
	s.lastHeartbeat = at
	s.mu.Unlock()
}

// IdleExpired reports whether peer_timeout has elapsed without a heartbeat,
// per spec §4.7: "idle timeout disconnects after peer_timeout without a
// Ping/Pong".
func (s *Session) IdleExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerTimeout <= 0 {
		return false
	}
	return now.Sub(s.lastHeartbeat) > s.peerTimeout
}

// RecordHead updates the session's last-known peer head, used by the
// gossip de-dup/comparison rules in gossip.go.
func (s *Session) RecordHead(height uint64, hash string) {
	s.mu.Lock()
	s.HeadHeight = height
	s.HeadHash = hash
	s.mu.Unlock()
}

// Snapshot returns a read-only copy of the session's peer identity fields.
func (s *Session) Snapshot() (nodeID, networkID string, height uint64, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NodeID, s.NetworkID, s.HeadHeight, s.HeadHash
}
