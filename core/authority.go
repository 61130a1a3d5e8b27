package core

import (
	"bytes"
	"sync"
	"time"
)

// AuthorityRecord tracks one rotation member per spec §3: pubkey, its
// position, and the performance bookkeeping consensus.go updates on every
// slot outcome.
type AuthorityRecord struct {
	PubKey         []byte
	IndexInRotation int
	BlocksProduced uint64
	MissedSlots    uint64
	Reputation     float64
	LastActivity   time.Time
}

// AuthoritySet is the PoA rotation list of spec §4.6 (C6). The rotation
// order equals list order. After genesis the set grows only through
// ProposeAdmission/ApplyAdmission; block admission in this module does not
// call them, so a committed Governance transaction does not change the
// set. Grounded on the teacher's AuthoritySet (core/authority_nodes.go),
// generalized from vote-threshold admission over arbitrary roles to a
// vote of 2/3 of the current authorities (ProposeAdmission).
type AuthoritySet struct {
	mu          sync.RWMutex
	authorities []AuthorityRecord
	blockInterval time.Duration
	graceSlots  uint32

	pendingAdmissions map[string]*pendingAdmission
}

type pendingAdmission struct {
	candidate []byte
	signers   map[string]bool
}

// NewAuthoritySet constructs the genesis rotation. blockInterval is the
// slot duration (spec default 10s); graceSlots is the late-production
// grace window (spec default 1).
func NewAuthoritySet(genesis [][]byte, blockInterval time.Duration, graceSlots uint32) *AuthoritySet {
	as := &AuthoritySet{
		blockInterval:     blockInterval,
		graceSlots:        graceSlots,
		pendingAdmissions: make(map[string]*pendingAdmission),
	}
	for i, pk := range genesis {
		as.authorities = append(as.authorities, AuthorityRecord{PubKey: pk, IndexInRotation: i, Reputation: 1})
	}
	return as
}

// Size returns the current rotation length, n in slot_of(t) = t mod n.
func (as *AuthoritySet) Size() int {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return len(as.authorities)
}

// SlotOf maps a wall-clock time to its slot index, t / block_interval.
func (as *AuthoritySet) SlotOf(t time.Time) uint64 {
	as.mu.RLock()
	interval := as.blockInterval
	as.mu.RUnlock()
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return uint64(t.UnixNano() / interval.Nanoseconds())
}

// OwnerOfSlot returns A[slot mod n].
func (as *AuthoritySet) OwnerOfSlot(slot uint64) ([]byte, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	n := len(as.authorities)
	if n == 0 {
		return nil, false
	}
	return as.authorities[slot%uint64(n)].PubKey, true
}

// IsAuthority reports whether pubkey is a current rotation member.
func (as *AuthoritySet) IsAuthority(pubkey []byte) bool {
	as.mu.RLock()
	defer as.mu.RUnlock()
	for _, a := range as.authorities {
		if bytes.Equal(a.PubKey, pubkey) {
			return true
		}
	}
	return false
}

// CheckSlotEligibility implements the strict half of spec §4.6 rule 3: the
// signer must be the scheduled owner of slot_of(timestamp). The grace
// extension ("a configured grace policy permits late production within
// grace_slots when the scheduled authority missed") needs chain state to
// know whether an earlier slot actually went unfulfilled, so that half
// lives in Consensus.graceEligible, which has access to the chain.
func (as *AuthoritySet) CheckSlotEligibility(pubkey []byte, timestamp time.Time) error {
	slot := as.SlotOf(timestamp)
	owner, ok := as.OwnerOfSlot(slot)
	if !ok {
		return Coded(ErrUnknownAuthority, "no configured authorities")
	}
	if bytes.Equal(owner, pubkey) {
		return nil
	}
	return Coded(ErrBadSlot, "signer is not the scheduled authority for this slot")
}

// GraceSlots returns the configured late-production grace window.
func (as *AuthoritySet) GraceSlots() uint32 {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.graceSlots
}

// RecordProduced updates bookkeeping for a successful commit by pubkey.
func (as *AuthoritySet) RecordProduced(pubkey []byte, at time.Time) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for i := range as.authorities {
		if bytes.Equal(as.authorities[i].PubKey, pubkey) {
			as.authorities[i].BlocksProduced++
			as.authorities[i].LastActivity = at
			as.recomputeReputationLocked(i)
			return
		}
	}
}

// RecordMissed updates bookkeeping for a slot whose scheduled owner did
// not produce a block.
func (as *AuthoritySet) RecordMissed(pubkey []byte) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for i := range as.authorities {
		if bytes.Equal(as.authorities[i].PubKey, pubkey) {
			as.authorities[i].MissedSlots++
			as.recomputeReputationLocked(i)
			return
		}
	}
}

func (as *AuthoritySet) recomputeReputationLocked(i int) {
	a := &as.authorities[i]
	total := a.BlocksProduced + a.MissedSlots
	if total == 0 {
		a.Reputation = 1
		return
	}
	a.Reputation = float64(a.BlocksProduced) / float64(total)
}

// List returns a copy of the current rotation's records.
func (as *AuthoritySet) List() []AuthorityRecord {
	as.mu.RLock()
	defer as.mu.RUnlock()
	out := make([]AuthorityRecord, len(as.authorities))
	copy(out, as.authorities)
	return out
}

// ProposeAdmission registers signer's vote for admitting candidate as a
// new rotation member. Once 2/3 of the current authority set has signed,
// ProposeAdmission returns true; the caller then applies the admission
// with ApplyAdmission. Nothing in this module calls either method from
// block or Governance transaction processing (DESIGN.md Open Question #1).
func (as *AuthoritySet) ProposeAdmission(candidate, signer []byte) (ready bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	key := string(candidate)
	p, ok := as.pendingAdmissions[key]
	if !ok {
		p = &pendingAdmission{candidate: candidate, signers: make(map[string]bool)}
		as.pendingAdmissions[key] = p
	}
	p.signers[string(signer)] = true

	threshold := (len(as.authorities)*2 + 2) / 3 // ceil(2n/3)
	return len(p.signers) >= threshold
}

// ApplyAdmission appends candidate to the rotation and clears its pending
// vote record. Called once ProposeAdmission reports ready.
func (as *AuthoritySet) ApplyAdmission(candidate []byte) {
	as.mu.Lock()
	defer as.mu.Unlock()
	delete(as.pendingAdmissions, string(candidate))
	for _, a := range as.authorities {
		if bytes.Equal(a.PubKey, candidate) {
			return
		}
	}
	as.authorities = append(as.authorities, AuthorityRecord{
		PubKey:          candidate,
		IndexInRotation: len(as.authorities),
		Reputation:      1,
	})
}
