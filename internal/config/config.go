// Package config defines the node's command-line and environment options.
package config

import (
	flags "github.com/jessevdk/go-flags"
)

// Options holds every tunable the node accepts. Each flag can also be set
// through its environment variable; flags win when both are present.
// Secret-bearing settings (DATABASE_URL, API_AUTH_TOKEN) are env-only so
// they never show up in process listings.
type Options struct {
	Listen       string `short:"l" long:"listen" env:"GOSSIP_LISTEN" description:"UDP host:port this node binds and advertises in the peer directory" required:"true"`
	PeersFile    string `short:"p" long:"peers" env:"PEERS_FILE" default:"peers.txt" description:"Newline-delimited host:port peer directory; must contain our own entry"`
	HTTPPort     string `long:"http-port" env:"PORT" default:"5339" description:"Admin API listen port"`
	HeartbeatSec int    `long:"heartbeat" env:"HEARTBEAT_SEC" default:"10" description:"Seconds between root digest advertisements"`
	MinerWorkers int    `long:"miners" env:"MINER_WORKERS" default:"8" description:"Max concurrent proof-mining admin requests"`
	MaxRecords   int    `long:"max-records" env:"MAX_RECORDS" default:"0" description:"Local cap on distinct keys; 0 = unbounded"`
}

// Parse reads options from the command line and environment.
func Parse() (*Options, error) {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// WroteHelp reports whether err is go-flags printing usage, which is an
// orderly exit rather than a failure.
func WroteHelp(err error) bool {
	return flags.WroteHelp(err)
}
