package socketworker

import (
	"fmt"
	"time"

	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

// errResponseTimeout is returned by awaitResponse when no request
// worker answers within the configured deadline. spec §9 leaves this
// timeout as an open question for implementers to resolve; this repo
// adds a configurable one (HTTPConfig.ResponseTimeout /
// WSConfig.ResponseTimeout) rather than parking the connection
// indefinitely.
var errResponseTimeout = fmt.Errorf("socketworker: timed out awaiting request-worker response")

// awaitResponse blocks on conn's local inbox until a complete Response
// is assembled (spec §4.2's "response gathering"): exactly one message
// for Announce, or the merge of every shard's partial ScrapeResponse
// for Scrape. Scrape merging is last-write-wins on overlapping keys
// (spec §9, second open question), implemented by pendingScrape.merge
// via plain map assignment.
func awaitResponse(conn *Connection, timeout time.Duration) (*protocol.Response, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case msg := <-conn.inbox:
			resp, done := foldResponse(conn, msg)
			if done {
				return resp, nil
			}
			// Partial scrape merge: keep waiting for the remaining shards.
		case <-deadline.C:
			return nil, errResponseTimeout
		}
	}
}

// foldResponse applies one shard's contribution to conn's pending
// state and reports whether the connection now has a complete
// Response to serialize.
func foldResponse(conn *Connection, msg dispatch.ResponseMessage) (*protocol.Response, bool) {
	switch {
	case msg.Failure != nil:
		return &protocol.Response{Failure: msg.Failure}, true

	case msg.Announce != nil:
		return &protocol.Response{Announce: msg.Announce}, true

	case msg.Scrape != nil:
		if conn.pending == nil {
			// A stray scrape fragment with no matching dispatch; nothing
			// to merge it into. Treat it as complete on its own so the
			// connection does not hang.
			return &protocol.Response{Scrape: msg.Scrape}, true
		}
		conn.pending.merge(msg.Scrape)
		if !conn.pending.done() {
			return nil, false
		}
		resp := &protocol.Response{Scrape: &protocol.ScrapeResponse{Files: conn.pending.stats}}
		conn.pending = nil
		return resp, true

	default:
		return nil, false
	}
}
