// Package protocol defines the transport-agnostic BitTorrent tracker
// request/response types shared by the HTTP and WebSocket wire codecs
// (internal/protocol/httpwire, internal/protocol/wswire). It treats the
// on-wire grammar as a pure codec concern: this file only carries the
// decoded shapes and the error kinds a parser can report.
package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// InfoHash is the opaque 20-byte identifier of a swarm. Only its first
// byte is consulted for sharding (see internal/shard).
type InfoHash [20]byte

// String renders the info-hash as lowercase hex, for logging.
func (h InfoHash) String() string {
	return hex.EncodeToString(h[:])
}

// InfoHashFromBytes copies a 20-byte slice into an InfoHash.
func InfoHashFromBytes(b []byte) (InfoHash, error) {
	var h InfoHash
	if len(b) != len(h) {
		return h, fmt.Errorf("info_hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// PeerID is the opaque 20-byte client-chosen peer identifier.
type PeerID [20]byte

// Event is the BitTorrent announce event.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventStopped
	EventCompleted
)

// Errors a parser can report. NeedMoreData is not an error condition —
// the caller keeps reading. Invalid wraps the underlying parse failure
// and triggers a FailureResponse per the HTTP variant's disposition.
var (
	ErrNeedMoreData = errors.New("protocol: need more data")
	ErrInvalid      = errors.New("protocol: invalid request")
)

// AnnounceRequest is "I am in swarm InfoHash, here I am".
type AnnounceRequest struct {
	InfoHash   InfoHash
	PeerID     PeerID
	Port       uint16
	Uploaded   uint64
	Downloaded uint64
	Left       uint64
	Event      Event
	NumWant    int // <0 means "not specified", caller applies a default
	Compact    bool
}

// ScrapeRequest asks for swarm statistics over a set of info-hashes.
type ScrapeRequest struct {
	InfoHashes []InfoHash
}

// Request is the decoded union of the two request kinds a socket
// worker dispatches.
type Request struct {
	Announce *AnnounceRequest
	Scrape   *ScrapeRequest
}

// ResponsePeer is one swarm member handed back to an announcing peer.
type ResponsePeer struct {
	IP   [4]byte // IPv4 only; compact peer encoding is v4-only by convention
	Port uint16
}

// AnnounceResponse answers an AnnounceRequest.
type AnnounceResponse struct {
	Interval   int
	Complete   int // seeders
	Incomplete int // leechers
	Peers      []ResponsePeer
}

// ScrapeStatistics is one swarm's aggregate counters.
type ScrapeStatistics struct {
	Complete   int
	Incomplete int
	Downloaded int
}

// ScrapeResponse answers a ScrapeRequest. Files is keyed by InfoHash;
// wire codecs are responsible for producing a deterministic (sorted)
// serialization regardless of map iteration order.
type ScrapeResponse struct {
	Files map[InfoHash]ScrapeStatistics
}

// FailureResponse is returned for a malformed or rejected request. It
// is the only user-visible fault response; every other disposition is
// a silent close (spec §7). Action/InfoHash are populated only by the
// WS variant, which echoes them back per original_source's
// ErrorResponse so the client can correlate the failure.
type FailureResponse struct {
	FailureReason string
	Action        string
	InfoHash      *InfoHash
}

// Response is the decoded union of the three response kinds a
// connection can serialize back to its peer.
type Response struct {
	Announce *AnnounceResponse
	Scrape   *ScrapeResponse
	Failure  *FailureResponse
}
