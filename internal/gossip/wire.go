package gossip

import (
	"encoding/binary"
	"fmt"

	"github.com/rawblock/proofmesh/internal/proof"
)

// Wire opcodes. Every message is a single UDP datagram of big-endian 64-bit
// words, the first being the opcode. There is no framing beyond that and no
// acknowledgement or sequencing.
const (
	OpExpand  uint64 = 37 // prefix, h, hL, hR
	OpRequest uint64 = 38 // prefix
	OpKey     uint64 = 39 // k, v, ts, seed
)

// Datagram sizes implied by each opcode.
const (
	ExpandSize  = 40
	RequestSize = 16
	KeySize     = 40

	// MinDatagramSize is the smallest meaningful datagram (opcode + one
	// word). Anything shorter is dropped without reply and counted as a
	// short datagram, separately from length and opcode mismatches.
	MinDatagramSize = 16

	// MaxDatagramSize bounds the receive buffer.
	MaxDatagramSize = 64
)

// Expand claims the subtree at Prefix aggregates to H, split into children
// aggregating to HL and HR (H == HL ^ HR on an honest sender).
type Expand struct {
	Prefix uint64
	H      uint64
	HL     uint64
	HR     uint64
}

// Request asks the receiver to describe its state at Prefix.
type Request struct {
	Prefix uint64
}

// Key carries a full value proof. The content hash is never sent; receivers
// recompute it, so a forged hash cannot travel.
type Key struct {
	K    uint64
	V    uint64
	TS   uint64
	Seed uint64
}

func putWords(words ...uint64) []byte {
	buf := make([]byte, 8*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint64(buf[8*i:], w)
	}
	return buf
}

func word(buf []byte, i int) uint64 {
	return binary.BigEndian.Uint64(buf[8*i:])
}

// EncodeExpand builds a 40-byte EXPAND datagram.
func EncodeExpand(prefix, h, hl, hr uint64) []byte {
	return putWords(OpExpand, prefix, h, hl, hr)
}

// EncodeRequest builds a 16-byte REQUEST datagram.
func EncodeRequest(prefix uint64) []byte {
	return putWords(OpRequest, prefix)
}

// EncodeKey builds a 40-byte KEY datagram from a stored record.
func EncodeKey(vp proof.ValueProof) []byte {
	return putWords(OpKey, vp.K, vp.V, vp.TS, vp.Seed)
}

// Opcode extracts the opcode of a datagram. ok is false for datagrams too
// short to carry one.
func Opcode(buf []byte) (op uint64, ok bool) {
	if len(buf) < MinDatagramSize {
		return 0, false
	}
	return word(buf, 0), true
}

// DecodeExpand parses an EXPAND datagram, rejecting length mismatches.
func DecodeExpand(buf []byte) (Expand, error) {
	if len(buf) != ExpandSize {
		return Expand{}, fmt.Errorf("expand datagram has %d bytes, want %d", len(buf), ExpandSize)
	}
	return Expand{Prefix: word(buf, 1), H: word(buf, 2), HL: word(buf, 3), HR: word(buf, 4)}, nil
}

// DecodeRequest parses a REQUEST datagram, rejecting length mismatches.
func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) != RequestSize {
		return Request{}, fmt.Errorf("request datagram has %d bytes, want %d", len(buf), RequestSize)
	}
	return Request{Prefix: word(buf, 1)}, nil
}

// DecodeKey parses a KEY datagram, rejecting length mismatches.
func DecodeKey(buf []byte) (Key, error) {
	if len(buf) != KeySize {
		return Key{}, fmt.Errorf("key datagram has %d bytes, want %d", len(buf), KeySize)
	}
	return Key{K: word(buf, 1), V: word(buf, 2), TS: word(buf, 3), Seed: word(buf, 4)}, nil
}
