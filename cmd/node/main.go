package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/proofmesh/internal/api"
	"github.com/rawblock/proofmesh/internal/config"
	"github.com/rawblock/proofmesh/internal/db"
	"github.com/rawblock/proofmesh/internal/gossip"
	"github.com/rawblock/proofmesh/internal/hashtrie"
	"github.com/rawblock/proofmesh/internal/metrics"
	"github.com/rawblock/proofmesh/internal/peers"
	"github.com/rawblock/proofmesh/internal/proof"
)

func main() {
	log.Println("Starting RawBlock Proofmesh Node (gossip proof-store)...")

	opts, err := config.Parse()
	if err != nil {
		if config.WroteHelp(err) {
			return
		}
		log.Fatalf("FATAL: %v", err)
	}

	nodeID := uuid.NewString()
	log.Printf("Node ID: %s, gossip address: %s", nodeID, opts.Listen)

	// The peer directory must list our own address; a node absent from its
	// own directory is misconfigured and refuses to start.
	peerSet, err := peers.Load(opts.PeersFile, opts.Listen)
	if err != nil {
		log.Fatalf("FATAL: Peer directory: %v", err)
	}
	log.Printf("Loaded %d peers from %s", len(peerSet), opts.PeersFile)

	// Optional admission audit trail. The node runs fine without Postgres.
	var dbConn *db.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		dbConn, err = db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without admission auditing. Error: %v", err)
			dbConn = nil
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	}

	// Setup WebSocket Hub for the live admission stream
	wsHub := api.NewHub()
	go wsHub.Run()

	index := hashtrie.New(opts.MaxRecords)
	stats := &metrics.Counters{}

	emit := api.NewEventSink(wsHub, dbConn)
	engine := gossip.NewEngine(index, stats, func(vp proof.ValueProof, outcome hashtrie.Outcome) {
		emit("gossip", vp, outcome)
	})

	server, err := gossip.NewServer(opts.Listen, engine, stats)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	heartbeat := gossip.NewHeartbeat(index, server, peerSet,
		time.Duration(opts.HeartbeatSec)*time.Second, stats)
	go heartbeat.Run(ctx)

	// Setup the Gin Router for the admin surface
	r := api.SetupRouter(api.Deps{
		Index:        index,
		Stats:        stats,
		Store:        dbConn,
		Hub:          wsHub,
		Peers:        peerSet,
		NodeID:       nodeID,
		GossipAddr:   opts.Listen,
		MinerWorkers: opts.MinerWorkers,
	})

	log.Printf("Admin API running on :%s (gossip on %s)\n", opts.HTTPPort, opts.Listen)
	if err := r.Run(":" + opts.HTTPPort); err != nil {
		log.Fatalf("Failed to start admin server: %v", err)
	}
}
