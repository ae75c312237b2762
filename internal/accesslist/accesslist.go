// Package accesslist implements the info-hash allow/deny predicate the
// WS variant consults on every Announce (spec §4.2, EXP-4), grounded
// on original_source/aquatic_ws's State.access_list.allows check: a
// request whose info-hash is rejected never reaches a request worker
// at all — it short-circuits to a FailureResponse on the connection
// that read it.
package accesslist

import (
	"encoding/hex"
	"fmt"

	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

// Mode selects how the hash list is interpreted.
type Mode int

const (
	// ModeOff allows every info-hash; the list is not consulted.
	ModeOff Mode = iota
	// ModeAllow permits only info-hashes present in the list.
	ModeAllow
	// ModeDeny permits every info-hash except those in the list.
	ModeDeny
)

// ParseMode converts the configuration string ("off"|"allow"|"deny")
// into a Mode. Config validation already rejects anything else, so
// this only needs to handle the three known values.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "allow":
		return ModeAllow, nil
	case "deny":
		return ModeDeny, nil
	default:
		return ModeOff, fmt.Errorf("accesslist: unknown mode %q", s)
	}
}

// List is the set of info-hashes an Allow or Deny mode is evaluated
// against. The zero value is an empty list.
type List struct {
	mode    Mode
	hashes  map[protocol.InfoHash]struct{}
}

// New builds a List from a Mode and a set of hex-encoded info-hashes
// (the shape the YAML `access_list.hash_list` field carries).
func New(mode Mode, hexHashes []string) (*List, error) {
	hashes := make(map[protocol.InfoHash]struct{}, len(hexHashes))
	for _, raw := range hexHashes {
		b, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("accesslist: invalid hex info_hash %q: %w", raw, err)
		}
		h, err := protocol.InfoHashFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("accesslist: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return &List{mode: mode, hashes: hashes}, nil
}

// Allows reports whether h may be announced under the list's
// configured mode. Scrapes are not checked against the list.
func (l *List) Allows(h protocol.InfoHash) bool {
	if l == nil || l.mode == ModeOff {
		return true
	}
	_, present := l.hashes[h]
	if l.mode == ModeAllow {
		return present
	}
	return !present // ModeDeny
}

// Mode reports the list's configured mode.
func (l *List) Mode() Mode {
	if l == nil {
		return ModeOff
	}
	return l.mode
}
