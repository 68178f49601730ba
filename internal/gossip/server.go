package gossip

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/rawblock/proofmesh/internal/metrics"
)

// Server owns the node's single UDP socket. Reader goroutines block on
// receive and feed each datagram through the engine; replies go straight
// back to the source address. The same socket carries heartbeat traffic —
// UDP sockets are safe to share across goroutines.
type Server struct {
	conn   *net.UDPConn
	engine *Engine
	stats  *metrics.Counters
}

// NewServer binds the gossip socket on listen (host:port).
func NewServer(listen string, engine *Engine, stats *metrics.Counters) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("resolve gossip listen address %q: %w", listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind gossip socket %q: %w", listen, err)
	}
	log.Printf("[Gossip] Listening on %s", conn.LocalAddr())
	return &Server{conn: conn, engine: engine, stats: stats}, nil
}

// Run receives datagrams until ctx is cancelled. One packet, one handler
// call, at most the protocol's bounded replies. Send failures are logged and
// forgotten; the next heartbeat re-drives convergence.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Println("[Gossip] Receiver stopping")
				return
			}
			log.Printf("[Gossip] Receive error: %v", err)
			continue
		}

		for _, reply := range s.engine.HandleDatagram(buf[:n]) {
			if _, err := s.conn.WriteToUDP(reply, src); err != nil {
				s.stats.SendErrors.Add(1)
				log.Printf("[Gossip] Send to %s failed: %v", src, err)
			}
		}
	}
}

// Send transmits one datagram to addr over the shared socket.
func (s *Server) Send(b []byte, addr *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(b, addr)
	return err
}

// Close releases the socket.
func (s *Server) Close() error {
	return s.conn.Close()
}
