package gossip

import (
	"context"
	"log"
	"time"

	"github.com/rawblock/proofmesh/internal/hashtrie"
	"github.com/rawblock/proofmesh/internal/metrics"
	"github.com/rawblock/proofmesh/internal/peers"
)

// DefaultHeartbeatInterval is how often the root digests are re-advertised
// to every peer. Convergence after packet loss rides on this cycle.
const DefaultHeartbeatInterval = 10 * time.Second

// Heartbeat periodically re-seeds reconciliation by sending each peer an
// EXPAND of the trie root and its two children. An empty index stays silent
// for the cycle: there is nothing to advertise and the peer's own heartbeat
// will reach us instead.
type Heartbeat struct {
	index    *hashtrie.HashTree
	server   *Server
	peers    []peers.Peer
	interval time.Duration
	stats    *metrics.Counters
}

// NewHeartbeat builds the driver. interval<=0 selects the default.
func NewHeartbeat(index *hashtrie.HashTree, server *Server, peerSet []peers.Peer, interval time.Duration, stats *metrics.Counters) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{index: index, server: server, peers: peerSet, interval: interval, stats: stats}
}

// Run emits heartbeats until ctx is cancelled.
func (hb *Heartbeat) Run(ctx context.Context) {
	log.Printf("[Heartbeat] Gossiping to %d peers every %s", len(hb.peers), hb.interval)

	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Heartbeat] Stopping")
			return
		case <-ticker.C:
			hb.beat()
		}
	}
}

// beat snapshots the root digests once and fans the same EXPAND out to every
// peer, so a single cycle advertises one consistent view.
func (hb *Heartbeat) beat() {
	h1, h2, h3 := hb.index.Root()
	if h1 == 0 {
		return
	}

	pkt := EncodeExpand(1, h1, h2, h3)
	for _, p := range hb.peers {
		if err := hb.server.Send(pkt, p.Addr); err != nil {
			hb.stats.SendErrors.Add(1)
			log.Printf("[Heartbeat] Send to %s failed: %v", p.HostPort, err)
			continue
		}
		hb.stats.HeartbeatsSent.Add(1)
		hb.stats.ExpandOut.Add(1)
	}
}
