package socketworker

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/mesh"
)

// ErrPeerAddrMismatch is the fatal connection error spec §7's error
// table and §4.2's response-peer consistency check both name: a
// response envelope whose peer_addr disagrees with the live
// connection it was routed to. Unlike Backpressured/InboxFull (drop
// and log, connection stays open), this disposition tears the
// connection down.
var ErrPeerAddrMismatch = errors.New("socketworker: response peer_addr mismatch")

// runDemultiplexer drains every lane addressed to this socket worker
// (one per request worker) until stop is closed (spec §4.6). For each
// envelope it looks up the destination connection, checks the
// peer-address sanity invariant (spec §4.2), and forwards via a
// non-blocking send to that connection's local inbox. It never blocks
// on a slow connection — a full inbox or a missing connection is
// dropped and logged, exactly like the teacher's control-channel ACK
// path never lets one stream's backlog stall the others.
func runDemultiplexer(stop <-chan struct{}, lanes []<-chan mesh.Envelope[dispatch.ResponseMessage], table *connTable, logger *slog.Logger) {
	var wg sync.WaitGroup
	for _, lane := range lanes {
		wg.Add(1)
		go func(lane <-chan mesh.Envelope[dispatch.ResponseMessage]) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				case env, ok := <-lane:
					if !ok {
						return
					}
					deliver(env, table, logger)
				}
			}
		}(lane)
	}
	wg.Wait()
}

func deliver(env mesh.Envelope[dispatch.ResponseMessage], table *connTable, logger *slog.Logger) {
	conn, ok := table.get(env.ConnectionID)
	if !ok {
		logger.Debug("dropping response for evicted connection", "connection_id", env.ConnectionID)
		return
	}

	// Defense-in-depth: a response whose peer_addr disagrees with the
	// live connection it was routed to indicates a recycled
	// connection_id or a routing bug (spec §4.2). Dispatch keys on
	// connection_id; this check never substitutes for it. This is a
	// fatal connection error (spec §7), not a plain drop: the stray
	// envelope is discarded and the connection is torn down, the same
	// way the WS sweep drives eviction through Connection.closer.
	if conn.peerAddr != env.PeerAddr {
		logger.Warn("response peer_addr mismatch, closing connection",
			"connection_id", env.ConnectionID, "expected", conn.peerAddr, "got", env.PeerAddr,
			"error", ErrPeerAddrMismatch)
		table.remove(env.ConnectionID)
		if conn.closer != nil {
			conn.closer.Close()
		}
		return
	}

	select {
	case conn.inbox <- env.Payload:
	default:
		logger.Warn("connection inbox full, dropping response", "connection_id", env.ConnectionID)
	}
}
