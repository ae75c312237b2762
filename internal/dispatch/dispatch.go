// Package dispatch defines the payload shapes carried across
// internal/mesh between socket workers and request workers (spec §3,
// §4.3). A RequestMessage is what a socket worker sends after sharding
// a decoded protocol.Request; a ResponseMessage is what a request
// worker sends back — for Scrape, one ResponseMessage per shard the
// original request touched, to be reassembled by the socket worker's
// PendingScrape state (spec §4.5).
package dispatch

import "github.com/swarmtrack/swarmtrack/internal/protocol"

// RequestMessage is one unit of work handed to a request worker. For
// an Announce it is the whole request; for a Scrape it carries only
// the info-hashes that landed on this worker's shard (spec §4.3's
// "produce one message per non-empty group").
type RequestMessage struct {
	Announce    *protocol.AnnounceRequest
	ScrapeHashes []protocol.InfoHash
}

// ResponseMessage is one shard's contribution to a connection's
// answer. For Announce there is exactly one, mirroring the single
// request worker addressed. For Scrape there is one per shard
// touched. ScrapeGroups has room for the original request's
// shard-group count, but internal/swarm does not set it and the
// socket worker does not read it: the socket worker's pendingScrape
// slot records that count itself at dispatch time.
type ResponseMessage struct {
	Announce        *protocol.AnnounceResponse
	Scrape          *protocol.ScrapeResponse
	Failure         *protocol.FailureResponse
	ScrapeGroups    int // shard-group count of the original Scrape; not set by internal/swarm
}
