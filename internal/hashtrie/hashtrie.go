// Package hashtrie implements the proof-indexed hash trie: the node's sole
// shared state. Records are stored one per key and indexed by their content
// hash; every dyadic prefix of a hash carries an XOR aggregate of all hashes
// beneath it, so any subtree is summarized by a single machine word. Two
// nodes with equal root aggregates hold equal record sets (up to XOR
// collision, which the reconciliation protocol tolerates).
package hashtrie

import (
	"log"
	"sync"

	"github.com/rawblock/proofmesh/internal/proof"
)

// Outcome classifies what Insert did with a candidate record.
type Outcome int

const (
	Admitted Outcome = iota
	Replaced
	RejectedInvalid
	RejectedDuplicate
	RejectedWeaker
	RejectedFull
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Replaced:
		return "replaced"
	case RejectedInvalid:
		return "rejected_invalid"
	case RejectedDuplicate:
		return "rejected_duplicate"
	case RejectedWeaker:
		return "rejected_weaker"
	case RejectedFull:
		return "rejected_full"
	}
	return "unknown"
}

// Accepted reports whether the outcome changed the stored set.
func (o Outcome) Accepted() bool {
	return o == Admitted || o == Replaced
}

// HashTree is the keyed proof store plus its XOR-digested prefix index.
// All access goes through a single reader-writer lock: packet handlers and
// the heartbeat snapshot take it in read mode, admission in write mode.
type HashTree struct {
	mu          sync.RWMutex
	keyProof    map[uint64]proof.ValueProof
	hashKey     map[uint64]uint64
	prefixHash  map[uint64]uint64
	prefixCount map[uint64]uint64
	maxRecords  int
}

// New returns an empty index. maxRecords bounds the number of distinct keys
// as a local policy; 0 means unbounded. Replacements are always allowed once
// a key is present.
func New(maxRecords int) *HashTree {
	return &HashTree{
		keyProof:    make(map[uint64]proof.ValueProof),
		hashKey:     make(map[uint64]uint64),
		prefixHash:  make(map[uint64]uint64),
		prefixCount: make(map[uint64]uint64),
		maxRecords:  maxRecords,
	}
}

// Lookup returns the stored record for key k, if any.
func (t *HashTree) Lookup(k uint64) (proof.ValueProof, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	vp, ok := t.keyProof[k]
	return vp, ok
}

// Prehash returns the XOR aggregate of all stored content hashes in the
// subtree rooted at prefix p, or 0 when the subtree is empty.
func (t *HashTree) Prehash(p uint64) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.prefixHash[p]
}

// Precount returns the number of records in the subtree rooted at prefix p.
func (t *HashTree) Precount(p uint64) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.prefixCount[p]
}

// HashKey returns the key whose stored record has content hash h, or 0 if
// none. Content hashes are never 0, so 0 is an unambiguous sentinel.
func (t *HashTree) HashKey(h uint64) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hashKey[h]
}

// KeyProof returns the stored record for k. It must only be called for keys
// known to be present; calling it for an absent key is a programming error.
func (t *HashTree) KeyProof(k uint64) proof.ValueProof {
	t.mu.RLock()
	defer t.mu.RUnlock()
	vp, ok := t.keyProof[k]
	if !ok {
		panic("hashtrie: KeyProof called for absent key")
	}
	return vp
}

// Len returns the number of stored records.
func (t *HashTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keyProof)
}

// Children returns the aggregate at p together with both child aggregates
// under one read lock, so the three digests always describe a single
// consistent state (h == hl ^ hr up to the single-record case).
func (t *HashTree) Children(p uint64) (h, hl, hr uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.prefixHash[p], t.prefixHash[2*p], t.prefixHash[2*p+1]
}

// Root returns the digests the heartbeat advertises: the root aggregate and
// its two children.
func (t *HashTree) Root() (h1, h2, h3 uint64) {
	return t.Children(1)
}

// NodeView is a consistent snapshot of one prefix, taken for the
// reconciliation handler: the aggregate, the owning key and record when the
// aggregate resolves to a single stored hash, and both child aggregates.
type NodeView struct {
	H      uint64
	Key    uint64
	Record proof.ValueProof
	Left   uint64
	Right  uint64
}

// Explore describes prefix p under one read lock.
func (t *HashTree) Explore(p uint64) NodeView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := NodeView{H: t.prefixHash[p]}
	if v.H == 0 {
		return v
	}
	if v.Key = t.hashKey[v.H]; v.Key != 0 {
		v.Record = t.keyProof[v.Key]
		return v
	}
	v.Left = t.prefixHash[2*p]
	v.Right = t.prefixHash[2*p+1]
	return v
}

// Records returns up to limit stored records in unspecified order. limit<=0
// returns everything. Used by the admin listing endpoint.
func (t *HashTree) Records(limit int) []proof.ValueProof {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.keyProof)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]proof.ValueProof, 0, n)
	for _, vp := range t.keyProof {
		if len(out) == n {
			break
		}
		out = append(out, vp)
	}
	return out
}

// Insert runs the admission protocol on a candidate record:
//
//  1. invalid (malformed or future-dated) records are dropped with a warning
//  2. an absent key installs the record
//  3. a stored record with the same value wins ties (idempotence; prevents
//     oscillation between equally-valued proofs)
//  4. otherwise the candidate must be worth more than the incumbent, which
//     it then replaces
//
// A record is never undone once admitted, only replaced.
func (t *HashTree) Insert(vp proof.ValueProof) Outcome {
	if !vp.IsValid() {
		log.Printf("[Index] Dropping invalid record: key=%d hash=%d ts=%d", vp.K, vp.H, vp.TS)
		return RejectedInvalid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.keyProof[vp.K]
	if !ok {
		if t.maxRecords > 0 && len(t.keyProof) >= t.maxRecords {
			return RejectedFull
		}
		t.install(vp)
		return Admitted
	}
	if cur.V == vp.V {
		return RejectedDuplicate
	}
	if !vp.WorthMore(cur) {
		return RejectedWeaker
	}
	t.remove(vp.K)
	t.install(vp)
	return Replaced
}

// install adds vp to all three mappings plus the prefix counts. Caller holds
// the write lock.
func (t *HashTree) install(vp proof.ValueProof) {
	t.keyProof[vp.K] = vp
	t.hashKey[vp.H] = vp.K
	for b := uint(0); b <= 32; b++ {
		p := vp.H >> b
		if p == 0 {
			break
		}
		t.prefixHash[p] ^= vp.H
		t.prefixCount[p]++
	}
}

// remove is the symmetric XOR retraction. Caller holds the write lock and
// has checked the key is present.
func (t *HashTree) remove(k uint64) {
	vp := t.keyProof[k]
	for b := uint(0); b <= 32; b++ {
		p := vp.H >> b
		if p == 0 {
			break
		}
		t.prefixHash[p] ^= vp.H
		if t.prefixCount[p]--; t.prefixCount[p] == 0 {
			delete(t.prefixHash, p)
			delete(t.prefixCount, p)
		}
	}
	// Under a hash collision the latest collider owns the reverse entry;
	// only strip it if it still points at this key.
	if t.hashKey[vp.H] == k {
		delete(t.hashKey, vp.H)
	}
	delete(t.keyProof, k)
}
