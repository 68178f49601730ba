package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/proofmesh/pkg/models"
)

const (
	// clientQueueSize bounds the per-subscriber event queue. A subscriber
	// that falls this far behind the admission stream is disconnected
	// rather than allowed to apply backpressure to the gossip path.
	clientQueueSize = 32

	// replayBacklog is how many recent admissions a new subscriber receives
	// on connect, so a dashboard attaching mid-run is not blank. Must stay
	// below clientQueueSize or the replay itself could overflow the queue.
	replayBacklog = 16

	streamWriteWait = 5 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboard
	},
}

// streamClient is one websocket subscriber with its own buffered queue and
// writer goroutine, so one stalled connection never delays the others.
type streamClient struct {
	conn *websocket.Conn
	send chan models.GossipEvent
}

// Hub fans admission events out to stream subscribers. Events stay typed as
// models.GossipEvent end to end; each client's writer serializes them
// independently.
type Hub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	recent  []models.GossipEvent
	events  chan models.GossipEvent
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*streamClient]struct{}),
		events:  make(chan models.GossipEvent, 256),
	}
}

// Publish enqueues one admission event for fan-out.
func (h *Hub) Publish(ev models.GossipEvent) {
	h.events <- ev
}

// Run distributes published events until the event channel is closed. A
// full client queue means the subscriber stopped draining; it is cut loose
// here instead of stalling the fan-out.
func (h *Hub) Run() {
	for ev := range h.events {
		h.mu.Lock()
		h.recent = append(h.recent, ev)
		if len(h.recent) > replayBacklog {
			h.recent = h.recent[len(h.recent)-replayBacklog:]
		}
		for c := range h.clients {
			select {
			case c.send <- ev:
			default:
				log.Println("[Stream] Dropping slow subscriber")
				h.detachLocked(c)
			}
		}
		h.mu.Unlock()
	}
}

// Subscribe upgrades the connection, replays the recent backlog, and starts
// the client's reader/writer pair.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] Failed to upgrade websocket: %v", err)
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan models.GossipEvent, clientQueueSize),
	}

	h.mu.Lock()
	for _, ev := range h.recent {
		client.send <- ev
	}
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("[Stream] Client connected. Total clients: %d", total)

	go client.writeLoop(h)
	go client.readLoop(h)
}

// detach removes a client and closes its queue exactly once.
func (h *Hub) detach(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *streamClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// writeLoop drains the client queue and keeps the connection alive with
// pings. Any write failure ends the subscription.
func (c *streamClient) writeLoop(h *Hub) {
	ticker := time.NewTicker(streamPingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscriber too slow"))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Printf("[Stream] Write failed: %v", err)
				h.detach(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.detach(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames (the stream is one-way) but is what
// notices disconnects and extends the read deadline on pongs.
func (c *streamClient) readLoop(h *Hub) {
	defer func() {
		h.detach(c)
		c.conn.Close()
		h.mu.Lock()
		remaining := len(h.clients)
		h.mu.Unlock()
		log.Printf("[Stream] Client disconnected. Total clients: %d", remaining)
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Stream] Websocket error: %v", err)
			}
			return
		}
	}
}
