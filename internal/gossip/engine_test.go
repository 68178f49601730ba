package gossip

import (
	"math/bits"
	"testing"

	"github.com/rawblock/proofmesh/internal/hashtrie"
	"github.com/rawblock/proofmesh/internal/metrics"
	"github.com/rawblock/proofmesh/internal/proof"
)

func newTestEngine() (*Engine, *hashtrie.HashTree, *metrics.Counters) {
	index := hashtrie.New(0)
	stats := &metrics.Counters{}
	return NewEngine(index, stats, nil), index, stats
}

func mustMine(tb testing.TB, k, v uint64) proof.ValueProof {
	tb.Helper()
	return proof.Mine(k, v, proof.DefaultMinLogWork)
}

// childOf returns the depth-1 trie prefix (2 or 3) containing hash h.
func childOf(h uint64) uint64 {
	return h >> (bits.Len64(h) - 2)
}

func TestExpandMatchingDigestIsSilent(t *testing.T) {
	eng, index, _ := newTestEngine()
	index.Insert(mustMine(t, 1, 10))

	h1, h2, h3 := index.Root()
	if replies := eng.HandleDatagram(EncodeExpand(1, h1, h2, h3)); replies != nil {
		t.Errorf("matching expand produced %d replies, want none", len(replies))
	}
}

func TestExpandDivergenceRequestsClaimedChild(t *testing.T) {
	// The sender has a record we lack; its root expand names one non-empty
	// child, which we must request.
	sender := hashtrie.New(0)
	vp := mustMine(t, 1, 10)
	sender.Insert(vp)
	h1, h2, h3 := sender.Root()

	eng, _, stats := newTestEngine()
	replies := eng.HandleDatagram(EncodeExpand(1, h1, h2, h3))

	if len(replies) != 1 {
		t.Fatalf("got %d replies, want exactly 1 request", len(replies))
	}
	req, err := DecodeRequest(replies[0])
	if err != nil {
		t.Fatalf("reply is not a request: %v", err)
	}
	if want := childOf(vp.H); req.Prefix != want {
		t.Errorf("requested prefix %d, want %d", req.Prefix, want)
	}
	if stats.RequestOut.Load() != 1 {
		t.Error("request counter not bumped")
	}
}

func TestExpandSkipsChildrenClaimedEmpty(t *testing.T) {
	// We hold a record; the sender's root expand carries a digest that
	// differs from ours but claims both children empty. Nothing to ask for:
	// an empty claim is no evidence of divergence.
	eng, index, _ := newTestEngine()
	index.Insert(mustMine(t, 1, 10))

	if replies := eng.HandleDatagram(EncodeExpand(1, 12345, 0, 0)); replies != nil {
		t.Errorf("expand with empty children produced %d replies", len(replies))
	}
}

func TestExpandAmplificationBound(t *testing.T) {
	// Even a maximally divergent expand yields at most two requests.
	eng, index, _ := newTestEngine()
	index.Insert(mustMine(t, 1, 10))

	replies := eng.HandleDatagram(EncodeExpand(1, 999, 111, 222))
	if len(replies) > 2 {
		t.Fatalf("expand produced %d replies, protocol bound is 2", len(replies))
	}
	for _, r := range replies {
		if _, err := DecodeRequest(r); err != nil {
			t.Errorf("expand reply is not a request: %v", err)
		}
	}
}

func TestRequestEmptyPrefixIsSilent(t *testing.T) {
	eng, _, _ := newTestEngine()
	if replies := eng.HandleDatagram(EncodeRequest(7)); replies != nil {
		t.Errorf("request into empty index produced %d replies", len(replies))
	}
}

func TestRequestSingleRecordSubtreeSendsKey(t *testing.T) {
	// With one stored record the root aggregate IS the record's hash, so a
	// root request short-circuits straight to the key transfer.
	eng, index, _ := newTestEngine()
	vp := mustMine(t, 42, 7)
	index.Insert(vp)

	replies := eng.HandleDatagram(EncodeRequest(1))
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1 key", len(replies))
	}
	key, err := DecodeKey(replies[0])
	if err != nil {
		t.Fatalf("reply is not a key: %v", err)
	}
	if key.K != 42 || key.V != 7 || key.TS != vp.TS || key.Seed != vp.Seed {
		t.Errorf("key payload %+v does not match stored record", key)
	}
}

func TestRequestInternalPrefixExpands(t *testing.T) {
	eng, index, _ := newTestEngine()
	vp1 := mustMine(t, 1, 10)
	vp2 := mustMine(t, 2, 20)
	index.Insert(vp1)
	index.Insert(vp2)

	if index.HashKey(vp1.H^vp2.H) != 0 {
		// Astronomically unlikely: the XOR of two mined hashes collides
		// with a stored hash. Re-run rather than encode the case.
		t.Skip("xor collision with a stored hash")
	}

	replies := eng.HandleDatagram(EncodeRequest(1))
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1 expand", len(replies))
	}
	msg, err := DecodeExpand(replies[0])
	if err != nil {
		t.Fatalf("reply is not an expand: %v", err)
	}
	if msg.Prefix != 1 || msg.H != vp1.H^vp2.H {
		t.Errorf("expand %+v, want root digest %#x", msg, vp1.H^vp2.H)
	}
	if msg.H != msg.HL^msg.HR {
		t.Errorf("advertised digest %#x != children xor %#x", msg.H, msg.HL^msg.HR)
	}
}

func TestKeyAdmitsValidRecord(t *testing.T) {
	eng, index, stats := newTestEngine()
	vp := mustMine(t, 5, 50)

	if replies := eng.HandleDatagram(EncodeKey(vp)); replies != nil {
		t.Error("key datagrams must never generate replies")
	}
	stored, ok := index.Lookup(5)
	if !ok || stored.V != 50 {
		t.Fatalf("record not admitted: %v,%v", stored, ok)
	}
	if stats.Admitted.Load() != 1 {
		t.Error("admission counter not bumped")
	}
}

func TestKeyRejectsFutureDated(t *testing.T) {
	eng, index, stats := newTestEngine()
	vp := proof.ValueProof{K: 5, V: 50, TS: proof.Now() + proof.Slack + 30}

	eng.HandleDatagram(EncodeKey(vp))
	if index.Len() != 0 {
		t.Error("future-dated record must not be admitted")
	}
	if stats.RejectedInvalid.Load() != 1 {
		t.Error("rejection counter not bumped")
	}
}

func TestMalformedDatagramsDropped(t *testing.T) {
	eng, _, stats := newTestEngine()

	cases := [][]byte{
		nil,                      // empty
		make([]byte, 8),          // under the 16-byte floor
		EncodeRequest(1)[:15],    // truncated request
		append(EncodeRequest(1), 0), // request with a trailing byte
		EncodeExpand(1, 2, 3, 4)[:32], // truncated expand
		putWords(99, 1),          // unknown opcode
	}
	for i, buf := range cases {
		if replies := eng.HandleDatagram(buf); replies != nil {
			t.Errorf("case %d: malformed datagram produced replies", i)
		}
	}
	if stats.DroppedShort.Load() != 3 {
		t.Errorf("DroppedShort = %d, want 3", stats.DroppedShort.Load())
	}
	if stats.DroppedLength.Load() != 2 {
		t.Errorf("DroppedLength = %d, want 2", stats.DroppedLength.Load())
	}
	if stats.DroppedOpcode.Load() != 1 {
		t.Errorf("DroppedOpcode = %d, want 1", stats.DroppedOpcode.Load())
	}
}

// exchange delivers datagrams between two engines until both fall silent,
// modelling a lossless channel. Returns false if traffic never quiesces.
func exchange(a, b *Engine, fromA, fromB [][]byte) bool {
	type envelope struct {
		to  *Engine
		buf []byte
	}
	var queue []envelope
	for _, m := range fromA {
		queue = append(queue, envelope{b, m})
	}
	for _, m := range fromB {
		queue = append(queue, envelope{a, m})
	}

	for steps := 0; len(queue) > 0; steps++ {
		if steps > 10000 {
			return false
		}
		env := queue[0]
		queue = queue[1:]
		for _, reply := range env.to.HandleDatagram(env.buf) {
			// Replies go back to the sender of the packet being handled.
			if env.to == a {
				queue = append(queue, envelope{b, reply})
			} else {
				queue = append(queue, envelope{a, reply})
			}
		}
	}
	return true
}

func heartbeatPacket(index *hashtrie.HashTree) []byte {
	h1, h2, h3 := index.Root()
	if h1 == 0 {
		return nil
	}
	return EncodeExpand(1, h1, h2, h3)
}

func TestTwoNodeConvergence(t *testing.T) {
	// Node A holds R1 only, node B holds R2 only. Heartbeats from both
	// sides over a lossless channel must converge both nodes on {R1, R2}
	// with identical root digests.
	engA, indexA, _ := newTestEngine()
	engB, indexB, _ := newTestEngine()
	indexA.Insert(mustMine(t, 100, 1))
	indexB.Insert(mustMine(t, 200, 2))

	for cycle := 0; cycle < 34; cycle++ {
		if !exchange(engA, engB,
			[][]byte{heartbeatPacket(indexA)},
			[][]byte{heartbeatPacket(indexB)}) {
			t.Fatal("reconciliation traffic did not quiesce")
		}
		a1, _, _ := indexA.Root()
		b1, _, _ := indexB.Root()
		if a1 == b1 && indexA.Len() == 2 && indexB.Len() == 2 {
			break
		}
	}

	a1, _, _ := indexA.Root()
	b1, _, _ := indexB.Root()
	if a1 != b1 {
		t.Fatalf("root digests diverge after convergence: %#x vs %#x", a1, b1)
	}
	for _, k := range []uint64{100, 200} {
		va, okA := indexA.Lookup(k)
		vb, okB := indexB.Lookup(k)
		if !okA || !okB {
			t.Fatalf("key %d missing after convergence (A=%v B=%v)", k, okA, okB)
		}
		if va.H != vb.H {
			t.Errorf("key %d: stored hashes differ: %#x vs %#x", k, va.H, vb.H)
		}
	}
}

func TestManyRecordConvergence(t *testing.T) {
	// A broader sweep: disjoint record sets on both sides, plus a contested
	// key, must still converge to identical stores.
	engA, indexA, _ := newTestEngine()
	engB, indexB, _ := newTestEngine()

	for k := uint64(1); k <= 8; k++ {
		indexA.Insert(mustMine(t, k, k))
	}
	for k := uint64(9); k <= 16; k++ {
		indexB.Insert(mustMine(t, k, k))
	}
	// Contested key: both sides mint a different value; worth decides.
	indexA.Insert(mustMine(t, 999, 1))
	indexB.Insert(mustMine(t, 999, 2))

	for cycle := 0; cycle < 64; cycle++ {
		if !exchange(engA, engB,
			[][]byte{heartbeatPacket(indexA)},
			[][]byte{heartbeatPacket(indexB)}) {
			t.Fatal("reconciliation traffic did not quiesce")
		}
		a1, _, _ := indexA.Root()
		b1, _, _ := indexB.Root()
		if a1 == b1 {
			break
		}
	}

	a1, _, _ := indexA.Root()
	b1, _, _ := indexB.Root()
	if a1 != b1 {
		t.Fatalf("root digests diverge: %#x vs %#x", a1, b1)
	}
	if indexA.Len() != indexB.Len() {
		t.Fatalf("stores differ in size: %d vs %d", indexA.Len(), indexB.Len())
	}
	va, _ := indexA.Lookup(999)
	vb, _ := indexB.Lookup(999)
	if va.H != vb.H {
		t.Errorf("contested key resolved differently: %#x vs %#x", va.H, vb.H)
	}
}
