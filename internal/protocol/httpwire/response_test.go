package httpwire

import (
	"strconv"
	"strings"
	"testing"

	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

func TestEncodeResponse_AnnounceHasExactContentLength(t *testing.T) {
	wire, err := EncodeResponse(protocol.Response{Announce: &protocol.AnnounceResponse{
		Interval:   900,
		Complete:   1,
		Incomplete: 2,
		Peers: []protocol.ResponsePeer{
			{IP: [4]byte{192, 0, 2, 1}, Port: 6881},
		},
	}})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}

	s := string(wire)
	headerEnd := strings.Index(s, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("missing header terminator")
	}
	headers := s[:headerEnd]

	var contentLength int
	for _, line := range strings.Split(headers, "\r\n") {
		if strings.HasPrefix(line, "Content-Length:") {
			contentLength, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:")))
		}
	}
	body := s[headerEnd+4:]
	if contentLength != len(body) {
		t.Errorf("Content-Length = %d, actual remaining bytes = %d", contentLength, len(body))
	}
	if !strings.Contains(body, "interval") {
		t.Errorf("expected bencoded body to mention interval, got %q", body)
	}
}

func TestEncodeResponse_Failure(t *testing.T) {
	wire, err := EncodeResponse(protocol.Response{Failure: &protocol.FailureResponse{FailureReason: "nope"}})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if !strings.Contains(string(wire), "failure reason") {
		t.Errorf("expected bencoded failure reason key, got %q", wire)
	}
}

func TestEncodeCompactPeers_SortedAndPacked(t *testing.T) {
	peers := []protocol.ResponsePeer{
		{IP: [4]byte{10, 0, 0, 2}, Port: 2},
		{IP: [4]byte{10, 0, 0, 1}, Port: 1},
	}
	packed := encodeCompactPeers(peers)
	if len(packed) != 12 {
		t.Fatalf("expected 12 bytes (2 peers * 6), got %d", len(packed))
	}
	// Lower IP must sort first.
	if packed[3] != 1 {
		t.Errorf("expected 10.0.0.1 first, got last octet %d", packed[3])
	}
}
