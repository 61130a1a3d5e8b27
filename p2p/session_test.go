package p2p

import (
	"testing"
	"time"
)

func TestSessionHandshakeSuccess(t *testing.T) {
	s := NewSession("peer-1", "127.0.0.1:4001", time.Minute)
	if err := s.Transition(StateHandshaking); err != nil {
		t.Fatalf("Dialing->Handshaking: %v", err)
	}
	hello := HelloMessage{NodeID: "node-a", NetworkID: "provchain-dev", HeadHeight: 5, HeadHash: "abc"}
	if err := s.CompleteHandshake(hello, "provchain-dev"); err != nil {
		t.Fatalf("CompleteHandshake: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected Ready, got %v", s.State())
	}
}

func TestSessionHandshakeRejectsNetworkMismatch(t *testing.T) {
	s := NewSession("peer-1", "127.0.0.1:4001", time.Minute)
	_ = s.Transition(StateHandshaking)
	hello := HelloMessage{NodeID: "node-a", NetworkID: "other-network"}
	if err := s.CompleteHandshake(hello, "provchain-dev"); err != ErrNetworkMismatch {
		t.Fatalf("expected ErrNetworkMismatch, got %v", err)
	}
	if s.State() != StateHandshaking {
		t.Fatalf("expected state to remain Handshaking after mismatch, got %v", s.State())
	}
}

func TestSessionInvalidTransitionRejected(t *testing.T) {
	s := NewSession("peer-1", "127.0.0.1:4001", time.Minute)
	if err := s.Transition(StateReady); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition going straight from Dialing to Ready, got %v", err)
	}
}

func TestSessionClosedRejectsFurtherTransitions(t *testing.T) {
	s := NewSession("peer-1", "127.0.0.1:4001", time.Minute)
	_ = s.Transition(StateHandshaking)
	_ = s.Transition(StateReady)
	_ = s.Transition(StateClosing)
	if err := s.Transition(StateClosed); err != nil {
		t.Fatalf("Closing->Closed: %v", err)
	}
	if err := s.Transition(StateReady); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionIdleExpired(t *testing.T) {
	s := NewSession("peer-1", "127.0.0.1:4001", 10*time.Millisecond)
	s.Touch(time.Now().Add(-time.Hour))
	if !s.IdleExpired(time.Now()) {
		t.Fatalf("expected idle timeout to have expired")
	}
	s.Touch(time.Now())
	if s.IdleExpired(time.Now()) {
		t.Fatalf("expected a fresh heartbeat to reset the idle timer")
	}
}

func TestSessionIdleNeverExpiresWhenTimeoutZero(t *testing.T) {
	s := NewSession("peer-1", "127.0.0.1:4001", 0)
	s.Touch(time.Now().Add(-24 * time.Hour))
	if s.IdleExpired(time.Now()) {
		t.Fatalf("expected a zero peer_timeout to disable the idle check")
	}
}
