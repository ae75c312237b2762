// Package swarm provides a minimal, real request-worker implementation
// — the per-shard swarm table spec.md explicitly treats as an external
// collaborator ("out of scope", spec §1). It exists so the tracker
// binaries are runnable end to end; it is not a tracker policy engine
// (no peer eviction strategy beyond a stop/timeout sweep, no IPv6, no
// partial-seed accounting). Grounded on original_source/aquatic_http
// and aquatic_ws's TorrentMaps for the shape of the state each shard
// owns — one map of InfoHash to a peer set — generalized here into
// idiomatic Go (sync.Mutex-guarded maps rather than a lock-free
// sharded structure).
package swarm

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/logging"
	"github.com/swarmtrack/swarmtrack/internal/mesh"
	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

// peerIPv4 extracts the 4-byte IPv4 address from a "host:port" remote
// address string. Compact peer encoding (spec §4.4) is IPv4-only by
// convention; an IPv6 or unparseable address yields the zero address
// rather than failing the announce.
func peerIPv4(addr string) [4]byte {
	var out [4]byte
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return out
	}
	v4 := ip.To4()
	if v4 == nil {
		return out
	}
	copy(out[:], v4)
	return out
}

// defaultInterval is the reannounce interval (seconds) handed back to
// clients on every Announce response.
const defaultInterval = 900

// defaultNumWant caps how many peers are returned when a client does
// not specify numwant.
const defaultNumWant = 50

// maxNumWant is the hard ceiling regardless of what the client asks for.
const maxNumWant = 200

// peerState is one swarm member as tracked by a shard.
type peerState struct {
	ip         [4]byte
	port       uint16
	complete   bool // true once the peer has announced "completed" or left=0
	lastSeenAt time.Time
}

// torrent is one info-hash's swarm: its peer set plus scrape counters.
type torrent struct {
	peers      map[protocol.PeerID]peerState
	downloaded int
}

// Worker owns one shard of the info-hash space: every InfoHash routed
// to it by internal/shard.Index. It consumes dispatch.RequestMessage
// envelopes from every socket worker and produces dispatch.ResponseMessage
// envelopes addressed back to the originating connection.
type Worker struct {
	index    int
	logger   *slog.Logger
	mu       sync.Mutex
	torrents map[protocol.InfoHash]*torrent

	announces int64 // atomic
	scrapes   int64 // atomic
}

// New builds a Worker for shard index idx.
func New(idx int, logger *slog.Logger) *Worker {
	return &Worker{
		index:    idx,
		logger:   logging.ForComponent(logger, "request_worker", "shard", idx),
		torrents: make(map[protocol.InfoHash]*torrent),
	}
}

// Run drains every inbound lane in lanes (one per socket worker,
// addressed to this worker's shard) until stop is closed, dispatching
// each RequestMessage to handleAnnounce/handleScrape and forwarding the
// resulting ResponseMessage back through respMesh to the originating
// connection. It never blocks socket workers: TrySendTo may report
// backpressure, which is logged and dropped (spec's stated disposition
// for a full mesh lane). Lane counts are small and fixed at
// construction (one per socket worker), so a goroutine per lane keeps
// the hot path free of a reflect-based fan-in.
func (w *Worker) Run(stop <-chan struct{}, lanes []<-chan mesh.Envelope[dispatch.RequestMessage], respMesh *mesh.Mesh[dispatch.ResponseMessage]) {
	var wg sync.WaitGroup
	for _, lane := range lanes {
		wg.Add(1)
		go func(lane <-chan mesh.Envelope[dispatch.RequestMessage]) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				case env, ok := <-lane:
					if !ok {
						return
					}
					w.handle(env, respMesh)
				}
			}
		}(lane)
	}
	wg.Wait()
}

func (w *Worker) handle(env mesh.Envelope[dispatch.RequestMessage], respMesh *mesh.Mesh[dispatch.ResponseMessage]) {
	var out dispatch.ResponseMessage

	switch {
	case env.Payload.Announce != nil:
		atomic.AddInt64(&w.announces, 1)
		out.Announce = w.handleAnnounce(env.Payload.Announce, env.PeerAddr)
	case len(env.Payload.ScrapeHashes) > 0:
		atomic.AddInt64(&w.scrapes, 1)
		out.Scrape = w.handleScrape(env.Payload.ScrapeHashes)
	default:
		return
	}

	if err := respMesh.TrySendTo(w.index, env.ConsumerID, mesh.Envelope[dispatch.ResponseMessage]{
		ConsumerID:   env.ConsumerID,
		ConnectionID: env.ConnectionID,
		PeerAddr:     env.PeerAddr,
		Payload:      out,
	}); err != nil {
		w.logger.Warn("dropping response, consumer backpressured",
			"consumer_id", env.ConsumerID, "connection_id", env.ConnectionID, "error", err)
	}
}

func (w *Worker) handleAnnounce(req *protocol.AnnounceRequest, peerAddr string) *protocol.AnnounceResponse {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.torrents[req.InfoHash]
	if !ok {
		t = &torrent{peers: make(map[protocol.PeerID]peerState)}
		w.torrents[req.InfoHash] = t
	}

	switch req.Event {
	case protocol.EventStopped:
		delete(t.peers, req.PeerID)
	default:
		if req.Event == protocol.EventCompleted {
			t.downloaded++
		}
		t.peers[req.PeerID] = peerState{
			ip:         peerIPv4(peerAddr),
			port:       req.Port,
			complete:   req.Left == 0,
			lastSeenAt: time.Now(),
		}
	}

	numWant := req.NumWant
	if numWant < 0 {
		numWant = defaultNumWant
	}
	if numWant > maxNumWant {
		numWant = maxNumWant
	}

	complete, incomplete := 0, 0
	peers := make([]protocol.ResponsePeer, 0, numWant)
	for id, p := range t.peers {
		if p.complete {
			complete++
		} else {
			incomplete++
		}
		if id == req.PeerID {
			continue // never hand a peer its own entry back
		}
		if len(peers) < numWant {
			peers = append(peers, protocol.ResponsePeer{IP: p.ip, Port: p.port})
		}
	}

	return &protocol.AnnounceResponse{
		Interval:   defaultInterval,
		Complete:   complete,
		Incomplete: incomplete,
		Peers:      peers,
	}
}

func (w *Worker) handleScrape(hashes []protocol.InfoHash) *protocol.ScrapeResponse {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make(map[protocol.InfoHash]protocol.ScrapeStatistics, len(hashes))
	for _, h := range hashes {
		t, ok := w.torrents[h]
		if !ok {
			files[h] = protocol.ScrapeStatistics{}
			continue
		}
		complete, incomplete := 0, 0
		for _, p := range t.peers {
			if p.complete {
				complete++
			} else {
				incomplete++
			}
		}
		files[h] = protocol.ScrapeStatistics{
			Complete:   complete,
			Incomplete: incomplete,
			Downloaded: t.downloaded,
		}
	}

	return &protocol.ScrapeResponse{Files: files}
}

// Sweep removes peers that have not announced within maxAge, called
// periodically by the owning binary's maintenance loop.
func (w *Worker) Sweep(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	w.mu.Lock()
	defer w.mu.Unlock()

	for h, t := range w.torrents {
		for id, p := range t.peers {
			if p.lastSeenAt.Before(cutoff) {
				delete(t.peers, id)
			}
		}
		if len(t.peers) == 0 {
			delete(w.torrents, h)
		}
	}
}

// Stats reports this shard's lifetime request counts.
func (w *Worker) Stats() (announces, scrapes int64) {
	return atomic.LoadInt64(&w.announces), atomic.LoadInt64(&w.scrapes)
}
