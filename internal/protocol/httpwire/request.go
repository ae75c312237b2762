// Package httpwire implements the HTTP/1.1 variant's request parsing
// and response serialization: a pure codec over the types in
// internal/protocol, grounded on the wire shapes 3541309e_modasi-mika's
// http-announce handler and original_source's aquatic_http
// Request::from_bytes parse outcomes (Parsed/NeedMoreData/Invalid).
package httpwire

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

const headerTerminator = "\r\n\r\n"

// ParseRequest looks for one complete HTTP request line + header block
// at the front of buf. It returns the decoded request and the number
// of bytes consumed, so the caller can re-slice buf and keep parsing a
// pipelined second request. Three outcomes, matching spec §4.2:
//   - (req, n, nil): a complete request was parsed, n bytes consumed
//   - (nil, 0, protocol.ErrNeedMoreData): the buffer holds a partial request
//   - (nil, 0, protocol.ErrInvalid): the buffer cannot be a valid request
func ParseRequest(buf []byte) (*protocol.Request, int, error) {
	idx := strings.Index(string(buf), headerTerminator)
	if idx < 0 {
		if len(buf) > 8192 {
			return nil, 0, protocol.ErrInvalid
		}
		return nil, 0, protocol.ErrNeedMoreData
	}

	consumed := idx + len(headerTerminator)
	requestLine := buf[:idx]
	if nl := strings.IndexByte(string(requestLine), '\n'); nl >= 0 {
		requestLine = requestLine[:nl]
	}
	line := strings.TrimRight(string(requestLine), "\r")

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, 0, protocol.ErrInvalid
	}
	if fields[0] != "GET" {
		return nil, 0, protocol.ErrInvalid
	}

	target := fields[1]
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, 0, protocol.ErrInvalid
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, 0, protocol.ErrInvalid
	}

	switch strings.TrimRight(u.Path, "/") {
	case "/announce":
		req, err := parseAnnounce(query)
		if err != nil {
			return nil, 0, err
		}
		return &protocol.Request{Announce: req}, consumed, nil
	case "/scrape":
		req, err := parseScrape(query)
		if err != nil {
			return nil, 0, err
		}
		return &protocol.Request{Scrape: req}, consumed, nil
	default:
		return nil, 0, protocol.ErrInvalid
	}
}

func parseAnnounce(q url.Values) (*protocol.AnnounceRequest, error) {
	infoHashRaw := q.Get("info_hash")
	peerIDRaw := q.Get("peer_id")
	if infoHashRaw == "" || peerIDRaw == "" {
		return nil, protocol.ErrInvalid
	}

	infoHash, err := protocol.InfoHashFromBytes([]byte(infoHashRaw))
	if err != nil {
		return nil, protocol.ErrInvalid
	}

	var peerID protocol.PeerID
	if len(peerIDRaw) != len(peerID) {
		return nil, protocol.ErrInvalid
	}
	copy(peerID[:], peerIDRaw)

	port, err := parseUint16(q.Get("port"))
	if err != nil {
		return nil, protocol.ErrInvalid
	}

	uploaded, err := parseUint64Default(q.Get("uploaded"), 0)
	if err != nil {
		return nil, protocol.ErrInvalid
	}
	downloaded, err := parseUint64Default(q.Get("downloaded"), 0)
	if err != nil {
		return nil, protocol.ErrInvalid
	}
	left, err := parseUint64Default(q.Get("left"), 0)
	if err != nil {
		return nil, protocol.ErrInvalid
	}

	numWant := -1
	if raw := q.Get("numwant"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, protocol.ErrInvalid
		}
		numWant = n
	}

	return &protocol.AnnounceRequest{
		InfoHash:   infoHash,
		PeerID:     peerID,
		Port:       port,
		Uploaded:   uploaded,
		Downloaded: downloaded,
		Left:       left,
		Event:      parseEvent(q.Get("event")),
		NumWant:    numWant,
		Compact:    q.Get("compact") != "0",
	}, nil
}

func parseScrape(q url.Values) (*protocol.ScrapeRequest, error) {
	raws := q["info_hash"]
	hashes := make([]protocol.InfoHash, 0, len(raws))
	for _, raw := range raws {
		h, err := protocol.InfoHashFromBytes([]byte(raw))
		if err != nil {
			return nil, protocol.ErrInvalid
		}
		hashes = append(hashes, h)
	}
	return &protocol.ScrapeRequest{InfoHashes: hashes}, nil
}

func parseEvent(s string) protocol.Event {
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

func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func parseUint64Default(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
