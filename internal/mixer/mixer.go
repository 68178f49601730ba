// Package mixer provides the deterministic 64-bit integer hash used for
// record fingerprinting and proof-of-work stamping.
package mixer

// Mod is the largest prime below 2^32. Squaring modulo a prime reaches only
// the quadratic residues, so Hash takes about half of the values in [1, Mod].
const Mod uint64 = 4294967291

// Hash maps any 64-bit input to [1, Mod] by modular squaring. The +1 keeps
// zero free as an "empty" sentinel for the trie and the wire protocol.
//
// (Mod-1)^2 = (2^32-6)^2 < 2^64, so the intermediate square never overflows
// a uint64 after the first reduction.
func Hash(x uint64) uint64 {
	r := x % Mod
	return (r*r)%Mod + 1
}
