package gossip

import (
	"testing"

	"github.com/rawblock/proofmesh/internal/proof"
)

func TestExpandRoundTrip(t *testing.T) {
	buf := EncodeExpand(6, 0xAA, 0xBB, 0xCC)
	if len(buf) != ExpandSize {
		t.Fatalf("encoded expand is %d bytes, want %d", len(buf), ExpandSize)
	}
	if op, ok := Opcode(buf); !ok || op != OpExpand {
		t.Fatalf("Opcode = %d,%v", op, ok)
	}
	msg, err := DecodeExpand(buf)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Prefix != 6 || msg.H != 0xAA || msg.HL != 0xBB || msg.HR != 0xCC {
		t.Errorf("decoded %+v", msg)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	buf := EncodeRequest(13)
	if len(buf) != RequestSize {
		t.Fatalf("encoded request is %d bytes, want %d", len(buf), RequestSize)
	}
	msg, err := DecodeRequest(buf)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Prefix != 13 {
		t.Errorf("decoded prefix %d, want 13", msg.Prefix)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	vp := proof.ValueProof{K: 1, V: 2, TS: 3, Seed: 4, H: 99}
	buf := EncodeKey(vp)
	if len(buf) != KeySize {
		t.Fatalf("encoded key is %d bytes, want %d", len(buf), KeySize)
	}
	msg, err := DecodeKey(buf)
	if err != nil {
		t.Fatal(err)
	}
	// The content hash never travels; only the four bound fields do.
	if msg.K != 1 || msg.V != 2 || msg.TS != 3 || msg.Seed != 4 {
		t.Errorf("decoded %+v", msg)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	if _, err := DecodeExpand(EncodeRequest(1)); err == nil {
		t.Error("16-byte buffer must not decode as expand")
	}
	if _, err := DecodeRequest(EncodeExpand(1, 2, 3, 4)); err == nil {
		t.Error("40-byte buffer must not decode as request")
	}
	if _, err := DecodeKey(make([]byte, KeySize+8)); err == nil {
		t.Error("oversized buffer must not decode as key")
	}
}

func TestOpcodeShortDatagram(t *testing.T) {
	if _, ok := Opcode(make([]byte, MinDatagramSize-1)); ok {
		t.Error("datagrams under 16 bytes carry no opcode")
	}
	if _, ok := Opcode(nil); ok {
		t.Error("empty datagram carries no opcode")
	}
}
