// Package shard implements the deterministic info-hash-to-request-
// worker mapping dispatch relies on (spec §4.3). Infohashes are
// uniformly distributed random 160-bit values, so a single byte gives
// adequate balance at zero per-request hashing cost — no need for a
// real hash function here.
package shard

import "github.com/swarmtrack/swarmtrack/internal/protocol"

// Index returns the request-worker shard for h, given r request
// workers. r must be positive; callers own that invariant (it comes
// from validated configuration).
func Index(h protocol.InfoHash, r int) int {
	return int(h[0]) % r
}

// Group partitions hashes by their shard index, preserving the
// per-shard relative order of the input. Used by Scrape dispatch to
// build one mesh message per non-empty shard group (spec §4.3).
func Group(hashes []protocol.InfoHash, r int) map[int][]protocol.InfoHash {
	groups := make(map[int][]protocol.InfoHash)
	for _, h := range hashes {
		idx := Index(h, r)
		groups[idx] = append(groups[idx], h)
	}
	return groups
}
