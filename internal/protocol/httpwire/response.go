package httpwire

import (
	"bytes"
	"sort"
	"strconv"

	bencode "github.com/jackpal/bencode-go"

	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

type wireAnnounceResponse struct {
	Interval   int    `bencode:"interval"`
	Complete   int    `bencode:"complete"`
	Incomplete int    `bencode:"incomplete"`
	Peers      string `bencode:"peers"`
}

type wireScrapeStats struct {
	Complete   int `bencode:"complete"`
	Downloaded int `bencode:"downloaded"`
	Incomplete int `bencode:"incomplete"`
}

type wireScrapeResponse struct {
	Files map[string]wireScrapeStats `bencode:"files"`
}

type wireFailureResponse struct {
	FailureReason string `bencode:"failure reason"`
}

// EncodeResponse serializes a Response into the fixed HTTP/1.1 wire
// frame spec §4.4 mandates: a status line, an exact Content-Length
// (body length + 2, for the trailing CRLF that is itself counted
// content), a blank line, the bencoded body, then the trailing CRLF.
// The buffer is allocated exactly once, sized for the final frame.
func EncodeResponse(resp protocol.Response) ([]byte, error) {
	body, err := encodeBody(resp)
	if err != nil {
		return nil, err
	}

	contentLen := len(body) + 2
	digits := strconv.Itoa(contentLen)

	const head = "HTTP/1.1 200 OK\r\nContent-Length: "
	const tail = "\r\n\r\n"

	out := make([]byte, 0, len(head)+len(digits)+len(tail)+len(body)+2)
	out = append(out, head...)
	out = append(out, digits...)
	out = append(out, tail...)
	out = append(out, body...)
	out = append(out, '\r', '\n')
	return out, nil
}

func encodeBody(resp protocol.Response) ([]byte, error) {
	var buf bytes.Buffer

	switch {
	case resp.Failure != nil:
		if err := bencode.Marshal(&buf, wireFailureResponse{FailureReason: resp.Failure.FailureReason}); err != nil {
			return nil, err
		}
	case resp.Announce != nil:
		if err := bencode.Marshal(&buf, wireAnnounceResponse{
			Interval:   resp.Announce.Interval,
			Complete:   resp.Announce.Complete,
			Incomplete: resp.Announce.Incomplete,
			Peers:      encodeCompactPeers(resp.Announce.Peers),
		}); err != nil {
			return nil, err
		}
	case resp.Scrape != nil:
		files := make(map[string]wireScrapeStats, len(resp.Scrape.Files))
		for h, stats := range resp.Scrape.Files {
			files[string(h[:])] = wireScrapeStats{
				Complete:   stats.Complete,
				Downloaded: stats.Downloaded,
				Incomplete: stats.Incomplete,
			}
		}
		if err := bencode.Marshal(&buf, wireScrapeResponse{Files: files}); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// encodeCompactPeers packs peers into the BitTorrent compact format
// (4-byte IPv4 + 2-byte big-endian port per peer), sorted so repeated
// announces over the same peer set produce a stable byte string.
func encodeCompactPeers(peers []protocol.ResponsePeer) string {
	sorted := make([]protocol.ResponsePeer, len(peers))
	copy(sorted, peers)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].IP != sorted[j].IP {
			return bytes.Compare(sorted[i].IP[:], sorted[j].IP[:]) < 0
		}
		return sorted[i].Port < sorted[j].Port
	})

	out := make([]byte, 0, len(sorted)*6)
	for _, p := range sorted {
		out = append(out, p.IP[:]...)
		out = append(out, byte(p.Port>>8), byte(p.Port))
	}
	return string(out)
}
