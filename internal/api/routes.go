package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/proofmesh/internal/db"
	"github.com/rawblock/proofmesh/internal/hashtrie"
	"github.com/rawblock/proofmesh/internal/metrics"
	"github.com/rawblock/proofmesh/internal/peers"
	"github.com/rawblock/proofmesh/internal/proof"
	"github.com/rawblock/proofmesh/pkg/models"
)

// maxListRecords caps the /records listing to prevent a single request from
// serializing an arbitrarily large index.
const maxListRecords = 1000

// Deps wires the admin surface to the rest of the node.
type Deps struct {
	Index        *hashtrie.HashTree
	Stats        *metrics.Counters
	Store        *db.PostgresStore // may be nil
	Hub          *Hub
	Peers        []peers.Peer
	NodeID       string
	GossipAddr   string
	MinerWorkers int // concurrent mining bound; <=0 selects 8
}

type APIHandler struct {
	index      *hashtrie.HashTree
	stats      *metrics.Counters
	dbStore    *db.PostgresStore
	wsHub      *Hub
	peerSet    []peers.Peer
	nodeID     string
	gossipAddr string
	startedAt  time.Time
	minerSlots chan struct{}
	emit       func(source string, vp proof.ValueProof, outcome hashtrie.Outcome)
}

// NewEventSink builds the emitter shared by the admin handlers and the UDP
// engine: every admission attempt is pushed to stream subscribers and, when
// auditing is configured, appended to Postgres.
func NewEventSink(hub *Hub, store *db.PostgresStore) func(source string, vp proof.ValueProof, outcome hashtrie.Outcome) {
	return func(source string, vp proof.ValueProof, outcome hashtrie.Outcome) {
		ev := models.GossipEvent{
			EventID:    uuid.NewString(),
			Type:       "admission",
			Source:     source,
			Outcome:    outcome.String(),
			Record:     recordView(vp),
			ObservedAt: time.Now().Unix(),
		}

		if hub != nil {
			hub.Publish(ev)
		}

		if store != nil {
			// Off the caller's goroutine: the sink runs on the UDP packet
			// path and must never wait on Postgres.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := store.SaveAdmission(ctx, ev); err != nil {
					log.Printf("[Audit] Failed to persist admission: %v", err)
				}
			}()
		}
	}
}

// SetupRouter builds the Gin engine serving the admin surface.
func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	workers := deps.MinerWorkers
	if workers <= 0 {
		workers = 8
	}

	handler := &APIHandler{
		index:      deps.Index,
		stats:      deps.Stats,
		dbStore:    deps.Store,
		wsHub:      deps.Hub,
		peerSet:    deps.Peers,
		nodeID:     deps.NodeID,
		gossipAddr: deps.GossipAddr,
		startedAt:  time.Now(),
		minerSlots: make(chan struct{}, workers),
		emit:       NewEventSink(deps.Hub, deps.Store),
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", deps.Hub.Subscribe)
		pub.GET("/stats", handler.handleStats)
		pub.GET("/peers", handler.handlePeers)
		pub.GET("/status", handler.handleStatusPage)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(NewAuth(deps.NodeID))
	// Rate-limit protected endpoints to 60 req/min per IP. POST /record
	// mines proof-of-work before touching the index — this is the
	// CPU-expensive path.
	auth.Use(NewRateLimiter(60, time.Minute).Middleware())
	{
		auth.GET("/record/:key", handler.handleGetRecord)
		auth.POST("/record", handler.handleSetRecord)
		auth.GET("/records", handler.handleListRecords)
		auth.GET("/trie/:prefix", handler.handleTrieNode)
		auth.GET("/audit", handler.handleAuditLog)
	}

	return r
}

// recordView projects a stored proof into its JSON shape.
func recordView(vp proof.ValueProof) models.RecordView {
	return models.RecordView{
		Key:       vp.K,
		Value:     vp.V,
		Timestamp: vp.TS,
		Seed:      vp.Seed,
		Hash:      vp.H,
		LogWork:   vp.LogWork(),
	}
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"nodeId":     h.nodeID,
		"gossipAddr": h.gossipAddr,
		"records":    h.index.Len(),
		"peers":      len(h.peerSet),
		"uptimeSec":  int64(time.Since(h.startedAt).Seconds()),
	})
}

// handleGetRecord implements the GET side of the admin contract: the stored
// record's fields, or all zeros when the key is absent.
func (h *APIHandler) handleGetRecord(c *gin.Context) {
	key, err := strconv.ParseUint(c.Param("key"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key must be an unsigned 64-bit integer"})
		return
	}

	vp, ok := h.index.Lookup(key)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"found": false, "record": models.RecordView{Key: key}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": true, "record": recordView(vp)})
}

// handleSetRecord mines a proof for (key, value) and runs it through the
// admission protocol. Mining happens before the index lock is touched and is
// bounded by the miner semaphore so admin traffic cannot starve the gossip
// path of CPU. The response carries whatever the index holds for the key
// afterwards — possibly a pre-existing worthier incumbent.
func (h *APIHandler) handleSetRecord(c *gin.Context) {
	var req models.SetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	minLogWork := proof.DefaultMinLogWork
	if req.MinLogWork != nil {
		minLogWork = *req.MinLogWork
	}

	select {
	case h.minerSlots <- struct{}{}:
	case <-c.Request.Context().Done():
		return
	}
	mined := proof.Mine(req.Key, req.Value, minLogWork)
	<-h.minerSlots

	outcome := h.index.Insert(mined)
	h.stats.CountOutcome(outcome)
	h.emit("admin", mined, outcome)

	stored, ok := h.index.Lookup(req.Key)
	if !ok {
		// Only reachable when a full index rejected a brand-new key.
		c.JSON(http.StatusInsufficientStorage, gin.H{
			"outcome": outcome.String(),
			"record":  models.RecordView{Key: req.Key},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome.String(), "record": recordView(stored)})
}

func (h *APIHandler) handleListRecords(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxListRecords {
		limit = maxListRecords
	}

	records := h.index.Records(limit)
	views := make([]models.RecordView, 0, len(records))
	for _, vp := range records {
		views = append(views, recordView(vp))
	}
	c.JSON(http.StatusOK, gin.H{"total": h.index.Len(), "returned": len(views), "records": views})
}

// handleTrieNode exposes one prefix of the digest trie: the XOR aggregate,
// the record count beneath it, both child digests, and — when the aggregate
// resolves to a single stored hash — the owning key. This is the view an
// operator uses to follow a reconciliation walk by hand.
func (h *APIHandler) handleTrieNode(c *gin.Context) {
	p, err := strconv.ParseUint(c.Param("prefix"), 10, 64)
	if err != nil || p == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prefix must be a positive integer (root is 1)"})
		return
	}

	prehash := h.index.Prehash(p)
	view := models.TrieNodeView{
		Prefix:       p,
		Prehash:      prehash,
		Precount:     h.index.Precount(p),
		LeftPrehash:  h.index.Prehash(2 * p),
		RightPrehash: h.index.Prehash(2*p + 1),
	}
	if prehash != 0 {
		view.TerminalKey = h.index.HashKey(prehash)
	}
	c.JSON(http.StatusOK, view)
}

func (h *APIHandler) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

func (h *APIHandler) handlePeers(c *gin.Context) {
	hostPorts := make([]string, 0, len(h.peerSet))
	for _, p := range h.peerSet {
		hostPorts = append(hostPorts, p.HostPort)
	}
	c.JSON(http.StatusOK, gin.H{"self": h.gossipAddr, "peers": hostPorts})
}

func (h *APIHandler) handleAuditLog(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admission auditing is not configured (set DATABASE_URL)"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := h.dbStore.RecentAdmissions(c.Request.Context(), limit)
	if err != nil {
		log.Printf("[Audit] Query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
