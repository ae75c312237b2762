package socketworker

import (
	"log/slog"

	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/mesh"
	"github.com/swarmtrack/swarmtrack/internal/protocol"
	"github.com/swarmtrack/swarmtrack/internal/shard"
)

// dispatchRequest fans a decoded Request out to the request-worker
// mesh (spec §4.3). For Announce it sends exactly one message; for
// Scrape it groups info-hashes by shard and sends one message per
// non-empty group, recording the group count on conn.pending.
//
// An empty Scrape (no info-hashes) is a boundary case spec §8 calls
// out explicitly: no mesh messages are sent and immediate is non-nil,
// carrying the (trivially empty) response the caller should write
// back without waiting on the inbox.
func dispatchRequest(conn *Connection, req *protocol.Request, reqMesh *mesh.Mesh[dispatch.RequestMessage], requestWorkers int, logger *slog.Logger) (immediate *protocol.Response, err error) {
	switch {
	case req.Announce != nil:
		idx := shard.Index(req.Announce.InfoHash, requestWorkers)
		env := mesh.Envelope[dispatch.RequestMessage]{
			ConsumerID:   conn.consumerID,
			ConnectionID: conn.id,
			PeerAddr:     conn.peerAddr,
			Payload:      dispatch.RequestMessage{Announce: req.Announce},
		}
		if sendErr := reqMesh.TrySendTo(conn.consumerID, idx, env); sendErr != nil {
			logger.Warn("dispatch backpressured, dropping announce",
				"connection_id", conn.id, "shard", idx, "error", sendErr)
		}
		return nil, nil

	case req.Scrape != nil:
		if len(req.Scrape.InfoHashes) == 0 {
			return &protocol.Response{Scrape: &protocol.ScrapeResponse{
				Files: make(map[protocol.InfoHash]protocol.ScrapeStatistics),
			}}, nil
		}

		groups := shard.Group(req.Scrape.InfoHashes, requestWorkers)
		conn.pending = &pendingScrape{
			remaining: len(groups),
			stats:     make(map[protocol.InfoHash]protocol.ScrapeStatistics, len(req.Scrape.InfoHashes)),
		}

		for idx, hashes := range groups {
			env := mesh.Envelope[dispatch.RequestMessage]{
				ConsumerID:   conn.consumerID,
				ConnectionID: conn.id,
				PeerAddr:     conn.peerAddr,
				Payload:      dispatch.RequestMessage{ScrapeHashes: hashes},
			}
			if sendErr := reqMesh.TrySendTo(conn.consumerID, idx, env); sendErr != nil {
				logger.Warn("dispatch backpressured, dropping scrape group",
					"connection_id", conn.id, "shard", idx, "error", sendErr)
			}
		}
		return nil, nil

	default:
		return nil, protocol.ErrInvalid
	}
}
