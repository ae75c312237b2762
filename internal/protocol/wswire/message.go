// Package wswire implements the WebSocket variant's JSON message
// codec, grounded on original_source/aquatic_ws's InMessage/OutMessage
// shapes (simplified to the generic Announce/Scrape model spec.md
// describes — this repo does not implement WebTorrent's WebRTC offer/
// answer signaling extension, which is outside spec.md's scope).
package wswire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

type envelope struct {
	Action string `json:"action"`
}

type wireAnnounceIn struct {
	Action     string `json:"action"`
	InfoHash   string `json:"info_hash"` // hex-encoded 20 bytes
	PeerID     string `json:"peer_id"`   // hex-encoded 20 bytes
	Port       uint16 `json:"port"`
	Uploaded   uint64 `json:"uploaded"`
	Downloaded uint64 `json:"downloaded"`
	Left       uint64 `json:"left"`
	Event      string `json:"event,omitempty"`
	NumWant    int    `json:"numwant,omitempty"`
}

type wireScrapeIn struct {
	Action     string   `json:"action"`
	InfoHashes []string `json:"info_hashes"`
}

// DecodeMessage decodes one JSON tracker message. Each complete
// WebSocket text frame is one message (spec §4.2: WS variant reads one
// frame at a time, no buffering across frames).
func DecodeMessage(data []byte) (*protocol.Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalid, err)
	}

	switch env.Action {
	case "announce":
		var m wireAnnounceIn
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrInvalid, err)
		}
		infoHash, err := decodeHexHash(m.InfoHash)
		if err != nil {
			return nil, err
		}
		var peerID protocol.PeerID
		peerIDBytes, err := hex.DecodeString(m.PeerID)
		if err != nil || len(peerIDBytes) != len(peerID) {
			return nil, protocol.ErrInvalid
		}
		copy(peerID[:], peerIDBytes)

		numWant := -1
		if m.NumWant > 0 {
			numWant = m.NumWant
		}

		return &protocol.Request{Announce: &protocol.AnnounceRequest{
			InfoHash:   infoHash,
			PeerID:     peerID,
			Port:       m.Port,
			Uploaded:   m.Uploaded,
			Downloaded: m.Downloaded,
			Left:       m.Left,
			Event:      decodeEvent(m.Event),
			NumWant:    numWant,
		}}, nil
	case "scrape":
		var m wireScrapeIn
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrInvalid, err)
		}
		hashes := make([]protocol.InfoHash, 0, len(m.InfoHashes))
		for _, raw := range m.InfoHashes {
			h, err := decodeHexHash(raw)
			if err != nil {
				return nil, err
			}
			hashes = append(hashes, h)
		}
		return &protocol.Request{Scrape: &protocol.ScrapeRequest{InfoHashes: hashes}}, nil
	default:
		return nil, protocol.ErrInvalid
	}
}

func decodeHexHash(s string) (protocol.InfoHash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return protocol.InfoHash{}, protocol.ErrInvalid
	}
	h, err := protocol.InfoHashFromBytes(b)
	if err != nil {
		return protocol.InfoHash{}, protocol.ErrInvalid
	}
	return h, nil
}

func decodeEvent(s string) protocol.Event {
	switch s {
	case "started":
		return protocol.EventStarted
	case "stopped":
		return protocol.EventStopped
	case "completed":
		return protocol.EventCompleted
	default:
		return protocol.EventNone
	}
}

type wirePeer struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

type wireAnnounceOut struct {
	Action     string     `json:"action"`
	Interval   int        `json:"interval"`
	Complete   int        `json:"complete"`
	Incomplete int        `json:"incomplete"`
	Peers      []wirePeer `json:"peers"`
}

type wireScrapeStats struct {
	Complete   int `json:"complete"`
	Downloaded int `json:"downloaded"`
	Incomplete int `json:"incomplete"`
}

type wireScrapeOut struct {
	Action string                     `json:"action"`
	Files  map[string]wireScrapeStats `json:"files"`
}

type wireErrorOut struct {
	Action        string  `json:"action,omitempty"`
	FailureReason string  `json:"failure reason"`
	InfoHash      *string `json:"info_hash,omitempty"`
}

// EncodeMessage serializes a Response to the JSON text frame the
// WebSocket connection writes back to the peer.
func EncodeMessage(resp protocol.Response) ([]byte, error) {
	switch {
	case resp.Failure != nil:
		out := wireErrorOut{FailureReason: resp.Failure.FailureReason}
		if resp.Failure.Action != "" {
			out.Action = resp.Failure.Action
		}
		if resp.Failure.InfoHash != nil {
			hexHash := resp.Failure.InfoHash.String()
			out.InfoHash = &hexHash
		}
		return json.Marshal(out)
	case resp.Announce != nil:
		peers := make([]wirePeer, 0, len(resp.Announce.Peers))
		for _, p := range resp.Announce.Peers {
			peers = append(peers, wirePeer{
				IP:   fmt.Sprintf("%d.%d.%d.%d", p.IP[0], p.IP[1], p.IP[2], p.IP[3]),
				Port: p.Port,
			})
		}
		return json.Marshal(wireAnnounceOut{
			Action:     "announce",
			Interval:   resp.Announce.Interval,
			Complete:   resp.Announce.Complete,
			Incomplete: resp.Announce.Incomplete,
			Peers:      peers,
		})
	case resp.Scrape != nil:
		files := make(map[string]wireScrapeStats, len(resp.Scrape.Files))
		for h, stats := range resp.Scrape.Files {
			files[h.String()] = wireScrapeStats{
				Complete:   stats.Complete,
				Downloaded: stats.Downloaded,
				Incomplete: stats.Incomplete,
			}
		}
		return json.Marshal(wireScrapeOut{Action: "scrape", Files: files})
	default:
		return nil, fmt.Errorf("wswire: empty response")
	}
}
