// Package p2p implements the peer network of spec §4.7 (C7): a libp2p
// gossip substrate for head announcements and transactions, plus a framed
// request/response protocol for bulk block sync, session lifecycle
// management, and the gossip/de-dup rules that drive the sync engine.
package p2p

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// ProtocolVersion is this node's wire protocol version. Minor increments
// must stay backward compatible (unknown non-critical kinds are ignored by
// older peers); a peer announcing a different major version is rejected at
// handshake per spec §4.7/§6.
const ProtocolVersion uint16 = 1

// MessageKind discriminates the abstract message set of spec §4.7.
type MessageKind uint16

const (
	KindHello MessageKind = iota + 1
	KindPing
	KindPong
	KindHeadAnnounce
	KindBlockRequest
	KindBlockResponse
	KindTxBroadcast
	KindPeerList
	KindGoodbye
)

func (k MessageKind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindHeadAnnounce:
		return "HeadAnnounce"
	case KindBlockRequest:
		return "BlockRequest"
	case KindBlockResponse:
		return "BlockResponse"
	case KindTxBroadcast:
		return "TxBroadcast"
	case KindPeerList:
		return "PeerList"
	case KindGoodbye:
		return "Goodbye"
	default:
		return "Unknown"
	}
}

// frameHeaderSize is the byte length of {u16 version, u16 kind, u32 payload_len}.
const frameHeaderSize = 2 + 2 + 4

// maxPayloadSize bounds a single frame's payload to guard against a
// malicious or buggy peer claiming an enormous length prefix and stalling
// the reader on an unbounded allocation.
const maxPayloadSize = 64 << 20

// WriteFrame writes one length-delimited message: header then JSON payload,
// matching spec §6's "framed length-prefixed messages" / "big-endian {u16
// version, u16 kind, u32 payload_len}" wire format exactly.
func WriteFrame(w io.Writer, kind MessageKind, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("p2p: marshal %s payload: %w", kind, err)
	}
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint16(header[0:2], ProtocolVersion)
	binary.BigEndian.PutUint16(header[2:4], uint16(kind))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("p2p: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("p2p: write frame payload: %w", err)
	}
	return nil
}

// Frame is a decoded message: its wire header plus the still-undecoded
// payload bytes, which the caller unmarshals into the concrete type its
// Kind implies.
type Frame struct {
	Version uint16
	Kind    MessageKind
	Payload []byte
}

// ReadFrame reads one length-delimited message from r. Returns
// ErrIncompatibleVersion if the peer's major version differs from ours (the
// top byte of the version field is treated as the major component).
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("p2p: read frame header: %w", err)
	}
	version := binary.BigEndian.Uint16(header[0:2])
	kind := MessageKind(binary.BigEndian.Uint16(header[2:4]))
	length := binary.BigEndian.Uint32(header[4:8])
	if length > maxPayloadSize {
		return Frame{}, fmt.Errorf("p2p: frame payload %d bytes exceeds %d byte limit", length, maxPayloadSize)
	}
	if majorVersion(version) != majorVersion(ProtocolVersion) {
		return Frame{}, ErrIncompatibleVersion
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("p2p: read frame payload: %w", err)
	}
	return Frame{Version: version, Kind: kind, Payload: payload}, nil
}

func majorVersion(v uint16) uint16 { return v >> 8 }

// Decode unmarshals a frame's payload into dst.
func (f Frame) Decode(dst any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, dst)
}

// HelloMessage is the handshake payload exchanged immediately after
// dialing, per spec §4.7: "node_id (UUID), protocol_version, network_id,
// head (height, hash), timestamp".
type HelloMessage struct {
	NodeID          string `json:"node_id"`
	ProtocolVersion uint16 `json:"protocol_version"`
	NetworkID       string `json:"network_id"`
	HeadHeight      uint64 `json:"head_height"`
	HeadHash        string `json:"head_hash"`
	TimestampUnix   int64  `json:"timestamp_unix"`
}

// PingMessage/PongMessage carry a heartbeat nonce so the round trip can be
// timed for RTT measurement.
type PingMessage struct {
	Nonce         uint64 `json:"nonce"`
	TimestampUnix int64  `json:"timestamp_unix"`
}

type PongMessage struct {
	Nonce         uint64 `json:"nonce"`
	TimestampUnix int64  `json:"timestamp_unix"`
}

// HeadAnnounceMessage announces a newly committed chain head.
type HeadAnnounceMessage struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

// BlockRequestMessage requests a chunk of blocks starting at FromIndex.
// Count is capped at 100 per spec §4.8.
type BlockRequestMessage struct {
	FromIndex uint64 `json:"from_index"`
	Count     uint32 `json:"count"`
}

// BlockHeaderWire is the wire shape of a block header (no signature bytes
// omitted; the signature travels alongside since admission re-verifies it).
type BlockHeaderWire struct {
	Index            uint64 `json:"index"`
	TimestampRFC3339 string `json:"timestamp"`
	PreviousHash     string `json:"previous_hash"`
	GraphIRI         string `json:"graph_iri"`
	GraphHash        string `json:"graph_hash"`
	Hash             string `json:"hash"`
	Signature        []byte `json:"signature"`
	AuthorityPubKey  []byte `json:"authority_pubkey"`
}

// TripleWire is the wire shape of one RDF triple (N-Triples term strings).
type TripleWire struct {
	Subject   string `json:"s"`
	Predicate string `json:"p"`
	Object    string `json:"o"`
}

// BlockResponseMessage carries one or more headers plus each one's payload
// graph triples, in the same order as Headers.
type BlockResponseMessage struct {
	Headers  []BlockHeaderWire `json:"headers"`
	Payloads [][]TripleWire    `json:"payloads"`
}

// TxBroadcastMessage gossips a pending transaction. PayloadRDF travels as
// N-Triples term strings like BlockResponseMessage's payloads.
type TxBroadcastMessage struct {
	ID               string       `json:"id"`
	Kind             uint8        `json:"kind"`
	SenderPubKey     []byte       `json:"sender_pubkey"`
	PayloadRDF       []TripleWire `json:"payload_rdf"`
	TimestampRFC3339 string       `json:"timestamp"`
	Nonce            uint64       `json:"nonce"`
	Signature        []byte       `json:"signature"`
}

// PeerListMessage shares known peer multiaddrs for discovery fan-out.
type PeerListMessage struct {
	Addrs []string `json:"addrs"`
}

// GoodbyeMessage announces an intentional disconnect with a reason string,
// e.g. "Incompatible", "Shutdown", "IdleTimeout".
type GoodbyeMessage struct {
	Reason string `json:"reason"`
}
