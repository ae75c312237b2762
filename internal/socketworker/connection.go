package socketworker

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/swarmtrack/swarmtrack/internal/dispatch"
)

// Connection is the per-peer record a socket worker's connection
// table holds (spec §3). Every field here is either immutable after
// construction (id, consumerID, peerAddr, inbox) or touched by at
// most one of: the connection's own goroutine, and — for validUntil
// only — the sweep goroutine, which is why validUntil is the one
// field kept atomic rather than goroutine-exclusive.
type Connection struct {
	id         uint64
	consumerID int
	peerAddr   string

	// inbox is this connection's single-consumer local response
	// channel (spec §3). The demultiplexer is the sole producer; the
	// connection's own goroutine is the sole consumer.
	inbox chan dispatch.ResponseMessage

	// pending is the in-flight multi-shard Scrape reassembly slot, nil
	// except between dispatch and the final merged response. Touched
	// only by the owning goroutine.
	pending *pendingScrape

	// closeAfterWriting is monotonic: once true it is never cleared
	// (spec §3 invariant 2). Touched only by the owning goroutine.
	closeAfterWriting bool

	// validUntil is the WS-variant inactivity deadline (spec §4.5),
	// refreshed by the owning goroutine on every read and consulted by
	// the socket worker's sweep goroutine — the one piece of
	// connection state genuinely shared across goroutines.
	validUntil atomic.Int64 // unix nanoseconds

	// closer is the underlying transport (net.Conn or *websocket.Conn).
	// It is closed by a goroutine other than the connection's own in
	// two fatal cases: the WS sweep evicting an inactive connection
	// (spec §4.5) and the response demultiplexer tearing down a
	// connection on ErrPeerAddrMismatch (spec §7). Either way, closing
	// it unblocks the owning goroutine's blocked read so the
	// connection actually tears down rather than lingering as an
	// orphaned goroutine.
	closer io.Closer
}

func newConnection(consumerID int, peerAddr string, inboxCapacity int) *Connection {
	c := &Connection{
		consumerID: consumerID,
		peerAddr:   peerAddr,
		inbox:      make(chan dispatch.ResponseMessage, inboxCapacity),
	}
	c.touch(time.Hour) // generous default until the read loop sets a real deadline
	return c
}

// touch refreshes the inactivity deadline ttl from now.
func (c *Connection) touch(ttl time.Duration) {
	c.validUntil.Store(time.Now().Add(ttl).UnixNano())
}

// expired reports whether the connection's deadline has passed.
func (c *Connection) expired() bool {
	return time.Now().UnixNano() > c.validUntil.Load()
}

// ID returns the connection's table key.
func (c *Connection) ID() uint64 { return c.id }

// PeerAddr returns the connection's remote address string, used for
// the response-envelope sanity check (spec §4.2).
func (c *Connection) PeerAddr() string { return c.peerAddr }
