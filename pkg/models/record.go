package models

// RecordView is the JSON projection of a stored value proof returned by the
// admin API and carried in stream events.
type RecordView struct {
	Key       uint64  `json:"key"`
	Value     uint64  `json:"value"`
	Timestamp uint64  `json:"ts"`   // mint time, unix seconds
	Seed      uint64  `json:"seed"` // mined nonce
	Hash      uint64  `json:"hash"` // binding content hash
	LogWork   float64 `json:"logWork"`
}

// SetRequest is the admin payload for storing a value. MinLogWork overrides
// the node's default mining threshold when present.
type SetRequest struct {
	Key        uint64   `json:"key"`
	Value      uint64   `json:"value"`
	MinLogWork *float64 `json:"minLogWork,omitempty"`
}

// GossipEvent is pushed to stream subscribers and the audit store whenever a
// record admission is attempted, from either the UDP port or the admin API.
type GossipEvent struct {
	EventID    string     `json:"eventId"` // uuid
	Type       string     `json:"type"`    // "admission"
	Source     string     `json:"source"`  // "gossip" or "admin"
	Outcome    string     `json:"outcome"` // admitted, replaced, rejected_*
	Record     RecordView `json:"record"`
	ObservedAt int64      `json:"observedAt"` // unix seconds
}

// TrieNodeView is the inspection projection of one trie prefix.
type TrieNodeView struct {
	Prefix       uint64 `json:"prefix"`
	Prehash      uint64 `json:"prehash"`
	Precount     uint64 `json:"precount"`
	LeftPrehash  uint64 `json:"leftPrehash"`  // child 2p
	RightPrehash uint64 `json:"rightPrehash"` // child 2p+1
	TerminalKey  uint64 `json:"terminalKey"`  // key owning prehash, 0 if internal/empty
}

// StatsSnapshot is a point-in-time copy of the gossip counters.
type StatsSnapshot struct {
	ExpandIn          uint64 `json:"expandIn"`
	RequestIn         uint64 `json:"requestIn"`
	KeyIn             uint64 `json:"keyIn"`
	ExpandOut         uint64 `json:"expandOut"`
	RequestOut        uint64 `json:"requestOut"`
	KeyOut            uint64 `json:"keyOut"`
	DroppedShort      uint64 `json:"droppedShort"`
	DroppedLength     uint64 `json:"droppedLength"`
	DroppedOpcode     uint64 `json:"droppedOpcode"`
	Admitted          uint64 `json:"admitted"`
	Replaced          uint64 `json:"replaced"`
	RejectedInvalid   uint64 `json:"rejectedInvalid"`
	RejectedDuplicate uint64 `json:"rejectedDuplicate"`
	RejectedWeaker    uint64 `json:"rejectedWeaker"`
	RejectedFull      uint64 `json:"rejectedFull"`
	HeartbeatsSent    uint64 `json:"heartbeatsSent"`
	SendErrors        uint64 `json:"sendErrors"`
}
