package socketworker

import (
	"sync"

	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

// connTable is the connection table a single socket worker owns (spec
// §3's "connection table"). Every live connection has exactly one
// entry keyed by its connectionID, reserved before the per-connection
// goroutine starts so the goroutine can observe its own id
// immediately (spec §3 Lifecycle).
//
// The original implementation's per-socket-worker state is single-threaded by
// construction (a cooperative scheduler pinned to one OS thread); Go
// has no equivalent primitive, so this table is guarded by a mutex
// instead — the same "single-threaded interior mutability" invariant
// reimplemented with a lock rather than a scheduler guarantee.
type connTable struct {
	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]*Connection
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[uint64]*Connection)}
}

// reserve allocates a fresh connectionID and inserts conn before its
// owning goroutine starts.
func (t *connTable) reserve(conn *Connection) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	conn.id = id
	t.conns[id] = conn
	return id
}

// get looks up a connection by id. Returns (nil, false) if the
// connection has already been destroyed — the caller (demultiplexer
// or sweep) must treat this as "discard silently", never as an error.
func (t *connTable) get(id uint64) (*Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[id]
	return c, ok
}

// remove destroys the table entry for id. Any response routed to id
// after this point is silently discarded by the demultiplexer.
func (t *connTable) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

// len reports the number of live connections, for tests and metrics.
func (t *connTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// snapshot returns the current live connections, used by the
// inactive-connection sweep (spec §4.5) so it need not hold the table
// lock while evaluating each connection's deadline.
func (t *connTable) snapshot() []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}

// pendingScrape is the per-connection multi-shard Scrape reassembly
// slot (spec §3's PendingScrape). It is owned exclusively by the
// connection's own goroutine — never shared across connections — so
// it needs no lock of its own. stats is a plain Go map; iteration
// order is a non-issue here because the wire codecs (httpwire,
// wswire) are responsible for producing a deterministic serialization
// regardless of map order.
type pendingScrape struct {
	remaining int
	stats     map[protocol.InfoHash]protocol.ScrapeStatistics
}

// merge folds one shard's partial ScrapeResponse into the slot.
// Overlapping keys across shards use last-write-wins semantics via
// plain map assignment (spec §9's stated, deliberately unresolved,
// open question).
func (p *pendingScrape) merge(resp *protocol.ScrapeResponse) {
	for h, stats := range resp.Files {
		p.stats[h] = stats
	}
	p.remaining--
}

// done reports whether every shard group has reported in.
func (p *pendingScrape) done() bool {
	return p.remaining <= 0
}
