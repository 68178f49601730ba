package gossip

import (
	"log"

	"github.com/rawblock/proofmesh/internal/hashtrie"
	"github.com/rawblock/proofmesh/internal/metrics"
	"github.com/rawblock/proofmesh/internal/proof"
)

// EventSink receives the outcome of every admission attempt originating from
// the UDP port. Wired to the stream hub and the audit store; may be nil.
type EventSink func(vp proof.ValueProof, outcome hashtrie.Outcome)

// Engine is the stateless handler for the three wire opcodes. One inbound
// datagram maps to at most two outbound datagrams (two REQUESTs for a
// doubly-divergent EXPAND); a KEY never generates a reply. That bound is
// what keeps the protocol amplification-safe.
type Engine struct {
	index *hashtrie.HashTree
	stats *metrics.Counters
	sink  EventSink
}

// NewEngine builds a reconciliation engine over the shared index. stats must
// be non-nil; sink may be nil.
func NewEngine(index *hashtrie.HashTree, stats *metrics.Counters, sink EventSink) *Engine {
	return &Engine{index: index, stats: stats, sink: sink}
}

// HandleDatagram runs one inbound datagram through the protocol and returns
// the reply datagrams to send back to the source. Malformed datagrams are
// dropped without reply.
func (e *Engine) HandleDatagram(buf []byte) [][]byte {
	op, ok := Opcode(buf)
	if !ok {
		e.stats.DroppedShort.Add(1)
		return nil
	}

	switch op {
	case OpExpand:
		msg, err := DecodeExpand(buf)
		if err != nil {
			e.stats.DroppedLength.Add(1)
			return nil
		}
		e.stats.ExpandIn.Add(1)
		return e.handleExpand(msg)

	case OpRequest:
		msg, err := DecodeRequest(buf)
		if err != nil {
			e.stats.DroppedLength.Add(1)
			return nil
		}
		e.stats.RequestIn.Add(1)
		return e.handleRequest(msg)

	case OpKey:
		msg, err := DecodeKey(buf)
		if err != nil {
			e.stats.DroppedLength.Add(1)
			return nil
		}
		e.stats.KeyIn.Add(1)
		e.handleKey(msg)
		return nil

	default:
		e.stats.DroppedOpcode.Add(1)
		return nil
	}
}

// handleExpand compares the sender's claimed digests against ours and asks
// for every child that provably diverges. Children the sender claims empty
// are skipped: emptiness on their side is no evidence we should talk, and
// our surplus there surfaces when our own heartbeat runs the walk the other
// way.
func (e *Engine) handleExpand(msg Expand) [][]byte {
	h, hl, hr := e.index.Children(msg.Prefix)
	if h == msg.H {
		return nil
	}

	var out [][]byte
	for side, claimed := range [2]uint64{msg.HL, msg.HR} {
		local := hl
		if side == 1 {
			local = hr
		}
		if claimed == 0 || local == claimed {
			continue
		}
		out = append(out, EncodeRequest(2*msg.Prefix+uint64(side)))
		e.stats.RequestOut.Add(1)
	}
	return out
}

// handleRequest describes our state at the requested prefix: nothing when
// empty, the full record when the prefix resolves to a single stored hash,
// an EXPAND of the two children otherwise.
func (e *Engine) handleRequest(msg Request) [][]byte {
	view := e.index.Explore(msg.Prefix)
	if view.H == 0 {
		return nil
	}

	if view.Key > 0 {
		e.stats.KeyOut.Add(1)
		return [][]byte{EncodeKey(view.Record)}
	}

	e.stats.ExpandOut.Add(1)
	return [][]byte{EncodeExpand(msg.Prefix, view.H, view.Left, view.Right)}
}

// handleKey reconstructs the record, rebinds its hash locally, and runs the
// admission protocol. A peer cannot force-install an invalid or weaker
// proof; the index enforces that.
func (e *Engine) handleKey(msg Key) {
	vp := proof.ValueProof{K: msg.K, V: msg.V, TS: msg.TS, Seed: msg.Seed}
	vp.ComputeHash()

	outcome := e.index.Insert(vp)
	e.stats.CountOutcome(outcome)
	if outcome.Accepted() {
		log.Printf("[Gossip] %s key=%d value=%d hash=%d", outcome, vp.K, vp.V, vp.H)
	}
	if e.sink != nil {
		e.sink(vp, outcome)
	}
}
