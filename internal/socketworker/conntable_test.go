package socketworker

import (
	"testing"
	"time"

	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

func TestConnTable_ReserveAssignsDenseIDs(t *testing.T) {
	table := newConnTable()

	c1 := newConnection(0, "203.0.113.1:6881", 4)
	c2 := newConnection(0, "203.0.113.2:6881", 4)

	id1 := table.reserve(c1)
	id2 := table.reserve(c2)

	if id1 == id2 {
		t.Fatal("expected distinct connection ids")
	}
	if id2 != id1+1 {
		t.Errorf("expected consecutive connection ids, got %d then %d", id1, id2)
	}
	if c1.ID() != id1 || c2.ID() != id2 {
		t.Error("connection must observe its own id after reserve")
	}
	if table.len() != 2 {
		t.Errorf("expected 2 live connections, got %d", table.len())
	}
}

func TestConnTable_GetMissingAfterRemove(t *testing.T) {
	table := newConnTable()
	c := newConnection(0, "203.0.113.1:6881", 4)
	id := table.reserve(c)

	if _, ok := table.get(id); !ok {
		t.Fatal("expected connection to be present")
	}

	table.remove(id)

	if _, ok := table.get(id); ok {
		t.Error("expected connection to be gone after remove")
	}
}

func TestConnection_ExpiredAfterTTL(t *testing.T) {
	c := newConnection(0, "203.0.113.1:6881", 4)
	c.touch(10 * time.Millisecond)

	if c.expired() {
		t.Fatal("connection should not be expired immediately after touch")
	}

	time.Sleep(30 * time.Millisecond)

	if !c.expired() {
		t.Error("connection should be expired after its deadline passes")
	}
}

func TestPendingScrape_MergeLastWriteWins(t *testing.T) {
	var h protocol.InfoHash
	h[0] = 7

	p := &pendingScrape{remaining: 2, stats: make(map[protocol.InfoHash]protocol.ScrapeStatistics)}

	p.merge(&protocol.ScrapeResponse{Files: map[protocol.InfoHash]protocol.ScrapeStatistics{
		h: {Complete: 1},
	}})
	if p.done() {
		t.Fatal("expected pending scrape with remaining=1 to not be done")
	}

	p.merge(&protocol.ScrapeResponse{Files: map[protocol.InfoHash]protocol.ScrapeStatistics{
		h: {Complete: 5}, // overlapping key, later write wins
	}})
	if !p.done() {
		t.Fatal("expected pending scrape to be done after both shards report")
	}
	if p.stats[h].Complete != 5 {
		t.Errorf("expected last-write-wins value 5, got %d", p.stats[h].Complete)
	}
}
