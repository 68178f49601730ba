// Package metrics tracks gossip traffic and admission counters. Counters are
// plain atomics so packet handlers never contend on a lock for bookkeeping.
package metrics

import (
	"sync/atomic"

	"github.com/rawblock/proofmesh/internal/hashtrie"
	"github.com/rawblock/proofmesh/pkg/models"
)

// Counters aggregates per-node gossip statistics.
type Counters struct {
	ExpandIn   atomic.Uint64
	RequestIn  atomic.Uint64
	KeyIn      atomic.Uint64
	ExpandOut  atomic.Uint64
	RequestOut atomic.Uint64
	KeyOut     atomic.Uint64

	DroppedShort  atomic.Uint64 // datagram under 16 bytes
	DroppedLength atomic.Uint64 // length does not match opcode
	DroppedOpcode atomic.Uint64 // unknown opcode

	Admitted          atomic.Uint64
	Replaced          atomic.Uint64
	RejectedInvalid   atomic.Uint64
	RejectedDuplicate atomic.Uint64
	RejectedWeaker    atomic.Uint64
	RejectedFull      atomic.Uint64

	HeartbeatsSent atomic.Uint64
	SendErrors     atomic.Uint64
}

// CountOutcome buckets an admission outcome.
func (c *Counters) CountOutcome(o hashtrie.Outcome) {
	switch o {
	case hashtrie.Admitted:
		c.Admitted.Add(1)
	case hashtrie.Replaced:
		c.Replaced.Add(1)
	case hashtrie.RejectedInvalid:
		c.RejectedInvalid.Add(1)
	case hashtrie.RejectedDuplicate:
		c.RejectedDuplicate.Add(1)
	case hashtrie.RejectedWeaker:
		c.RejectedWeaker.Add(1)
	case hashtrie.RejectedFull:
		c.RejectedFull.Add(1)
	}
}

// Snapshot copies the counters for the stats endpoint.
func (c *Counters) Snapshot() models.StatsSnapshot {
	return models.StatsSnapshot{
		ExpandIn:          c.ExpandIn.Load(),
		RequestIn:         c.RequestIn.Load(),
		KeyIn:             c.KeyIn.Load(),
		ExpandOut:         c.ExpandOut.Load(),
		RequestOut:        c.RequestOut.Load(),
		KeyOut:            c.KeyOut.Load(),
		DroppedShort:      c.DroppedShort.Load(),
		DroppedLength:     c.DroppedLength.Load(),
		DroppedOpcode:     c.DroppedOpcode.Load(),
		Admitted:          c.Admitted.Load(),
		Replaced:          c.Replaced.Load(),
		RejectedInvalid:   c.RejectedInvalid.Load(),
		RejectedDuplicate: c.RejectedDuplicate.Load(),
		RejectedWeaker:    c.RejectedWeaker.Load(),
		RejectedFull:      c.RejectedFull.Load(),
		HeartbeatsSent:    c.HeartbeatsSent.Load(),
		SendErrors:        c.SendErrors.Load(),
	}
}
