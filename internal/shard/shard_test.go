package shard

import (
	"testing"

	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

func TestIndex(t *testing.T) {
	var h protocol.InfoHash
	h[0] = 0x09

	if got := Index(h, 4); got != 1 {
		t.Errorf("Index(byte0=0x09, r=4) = %d, want 1", got)
	}
}

func TestIndex_Deterministic(t *testing.T) {
	var h protocol.InfoHash
	h[0] = 200
	h[5] = 77 // irrelevant bytes must not affect the result

	want := Index(h, 7)
	for i := 0; i < 10; i++ {
		if got := Index(h, 7); got != want {
			t.Fatalf("Index not pure: got %d, want %d", got, want)
		}
	}
}

func TestGroup(t *testing.T) {
	mk := func(b byte) protocol.InfoHash {
		var h protocol.InfoHash
		h[0] = b
		return h
	}

	hashes := []protocol.InfoHash{mk(0), mk(4), mk(1), mk(8)}
	groups := Group(hashes, 4)

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if got := groups[0]; len(got) != 3 {
		t.Errorf("shard 0 expected 3 members (0,4,8 mod 4), got %d", len(got))
	}
	if got := groups[1]; len(got) != 1 {
		t.Errorf("shard 1 expected 1 member, got %d", len(got))
	}
}
