package socketworker

import (
	"io"
	"log/slog"
	"testing"

	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/mesh"
	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchRequest_AnnounceSingleShard(t *testing.T) {
	reqMesh := mesh.New[dispatch.RequestMessage](1, 4, 4)
	conn := newConnection(0, "203.0.113.1:6881", 4)
	conn.id = 1

	var h protocol.InfoHash
	h[0] = 0x09 // 9 mod 4 = 1

	immediate, err := dispatchRequest(conn, &protocol.Request{Announce: &protocol.AnnounceRequest{InfoHash: h}}, reqMesh, 4, discardLogger())
	if err != nil {
		t.Fatalf("dispatchRequest: %v", err)
	}
	if immediate != nil {
		t.Fatal("announce should not produce an immediate response")
	}

	consumers := reqMesh.Consumer(1)
	select {
	case env := <-consumers[0]:
		if env.Payload.Announce == nil || env.Payload.Announce.InfoHash != h {
			t.Errorf("unexpected envelope payload: %+v", env)
		}
	default:
		t.Fatal("expected exactly one message on shard 1")
	}

	for shard, ch := range consumers {
		if shard == 1 {
			continue
		}
		select {
		case env := <-ch:
			t.Fatalf("unexpected message on shard %d: %+v", shard, env)
		default:
		}
	}
}

func TestDispatchRequest_ScrapeGroupsByShard(t *testing.T) {
	reqMesh := mesh.New[dispatch.RequestMessage](1, 3, 4)
	conn := newConnection(0, "203.0.113.1:6881", 4)
	conn.id = 1

	mk := func(b byte) protocol.InfoHash {
		var h protocol.InfoHash
		h[0] = b
		return h
	}
	hashes := []protocol.InfoHash{mk(0x00), mk(0x03), mk(0x06), mk(0x07)}

	immediate, err := dispatchRequest(conn, &protocol.Request{Scrape: &protocol.ScrapeRequest{InfoHashes: hashes}}, reqMesh, 3, discardLogger())
	if err != nil {
		t.Fatalf("dispatchRequest: %v", err)
	}
	if immediate != nil {
		t.Fatal("non-empty scrape should not produce an immediate response")
	}
	if conn.pending == nil {
		t.Fatal("expected a pending scrape slot")
	}
	if conn.pending.remaining != 2 {
		t.Errorf("expected 2 shard groups (0 and 1), got %d", conn.pending.remaining)
	}
}

func TestDispatchRequest_EmptyScrapeIsImmediate(t *testing.T) {
	reqMesh := mesh.New[dispatch.RequestMessage](1, 4, 4)
	conn := newConnection(0, "203.0.113.1:6881", 4)
	conn.id = 1

	immediate, err := dispatchRequest(conn, &protocol.Request{Scrape: &protocol.ScrapeRequest{}}, reqMesh, 4, discardLogger())
	if err != nil {
		t.Fatalf("dispatchRequest: %v", err)
	}
	if immediate == nil || immediate.Scrape == nil {
		t.Fatal("expected an immediate empty scrape response")
	}
	if len(immediate.Scrape.Files) != 0 {
		t.Errorf("expected empty files map, got %d entries", len(immediate.Scrape.Files))
	}
	if conn.pending != nil {
		t.Error("empty scrape must not create a pending slot")
	}
}

func TestDispatchRequest_Backpressure(t *testing.T) {
	reqMesh := mesh.New[dispatch.RequestMessage](1, 1, 1)
	conn := newConnection(0, "203.0.113.1:6881", 4)
	conn.id = 1

	var h protocol.InfoHash // byte0=0, shard 0 regardless of R
	_, err := dispatchRequest(conn, &protocol.Request{Announce: &protocol.AnnounceRequest{InfoHash: h}}, reqMesh, 1, discardLogger())
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	// Second dispatch hits a full channel; dispatchRequest must not error,
	// just log and drop (spec §4.3).
	_, err = dispatchRequest(conn, &protocol.Request{Announce: &protocol.AnnounceRequest{InfoHash: h}}, reqMesh, 1, discardLogger())
	if err != nil {
		t.Fatalf("backpressured dispatch should not return an error: %v", err)
	}
}
