// Package proof implements the proof-of-work value records gossiped between
// nodes. A ValueProof binds a key/value pair to a mint timestamp and a mined
// nonce through a chained hash; its worth decays with age so fresher stamps
// gradually displace older ones.
package proof

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"

	"github.com/rawblock/proofmesh/internal/mixer"
)

const (
	// Slack is the forward clock-skew tolerance in seconds. A record minted
	// less than Slack seconds in the future is still considered past-dated;
	// one stamped exactly Slack seconds ahead is not.
	Slack uint64 = 2

	// Decay is the per-second decay rate applied to a record's log-worth.
	Decay = 1e-4

	// DefaultMinLogWork is the mining threshold used when a set request does
	// not name one.
	DefaultMinLogWork = -8.0
)

// lnTop is ln(2^32), the log-work of a (hypothetical) hash of 1 at age zero.
var lnTop = math.Log(float64(uint64(1) << 32))

// ValueProof is an immutable proof-carrying record. K and V are the 64-bit
// key and payload, TS the mint time in seconds since the Unix epoch, Seed
// the mined nonce, and H the content hash binding the other four fields.
type ValueProof struct {
	K    uint64
	V    uint64
	TS   uint64
	Seed uint64
	H    uint64
}

// Now returns the current time as unsigned seconds since the Unix epoch.
func Now() uint64 {
	return uint64(time.Now().Unix())
}

// ComputeHash sets vp.H from the other four fields:
//
//	h = H(k ^ H(v ^ H(ts ^ H(seed))))
func (vp *ValueProof) ComputeHash() {
	vp.H = mixer.Hash(vp.K ^ mixer.Hash(vp.V^mixer.Hash(vp.TS^mixer.Hash(vp.Seed))))
}

// HashIsValid recomputes the binding hash and reports whether the stored H
// matches. A mismatch means the record was tampered with or corrupted.
func (vp ValueProof) HashIsValid() bool {
	check := vp
	check.ComputeHash()
	return check.H == vp.H
}

// IsPastTime reports whether the record is past-dated: ts strictly before
// now+Slack. Future-dated records are rejected on ingress; the slack absorbs
// small clock skew between peers.
func (vp ValueProof) IsPastTime() bool {
	return vp.TS < Now()+Slack
}

// IsValid reports whether the record is admissible: past-dated AND correctly
// bound.
func (vp ValueProof) IsValid() bool {
	return vp.IsPastTime() && vp.HashIsValid()
}

// Age returns the record's age in signed seconds, measured against now+Slack.
// Briefly negative for records minted within the slack window.
func (vp ValueProof) Age() int64 {
	return int64(Now()+Slack) - int64(vp.TS)
}

// LogWork returns the record's current log-worth:
//
//	ln(2^32) - ln(h) - Decay*age
//
// Lower hashes and younger records score higher.
func (vp ValueProof) LogWork() float64 {
	return lnTop - math.Log(float64(vp.H)) - Decay*float64(vp.Age())
}

// WorthMore reports whether vp outranks other at any common observation
// time. Both decay at the same rate, so the comparison reduces to
//
//	ln(vp.h) + Decay*(other.ts - vp.ts) < ln(other.h)
//
// which is independent of "now". Only meaningful for records sharing a key;
// records with different keys are incomparable.
func (vp ValueProof) WorthMore(other ValueProof) bool {
	return math.Log(float64(vp.H))+Decay*(float64(other.TS)-float64(vp.TS)) < math.Log(float64(other.H))
}

// Mine builds a record for (k, v) stamped at the current time and redraws
// the seed from a uniform random source until the record's log-work reaches
// minLogWork. Callers run this before taking any index lock; it is the only
// CPU-heavy operation in the system.
func Mine(k, v uint64, minLogWork float64) ValueProof {
	vp := ValueProof{K: k, V: v, TS: Now()}
	vp.ComputeHash()
	for vp.LogWork() < minLogWork {
		vp.Seed = randomSeed()
		vp.ComputeHash()
	}
	return vp
}

// randomSeed draws a uniform 64-bit nonce from crypto/rand.
func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Extremely unlikely — fall back to a time-derived nonce so mining
		// still makes progress.
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(b[:])
}
