// Package wire builds and parses ICMP echo request/reply frames (§4.1)
// and the payload marker that lets a multiplexer's probes be told apart
// from anyone else's traffic on a shared raw socket (§3 "wire identity",
// §4.4 "replies for another process's probes").
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/dchest/siphash"
	"github.com/rs/xid"
)

// MarkerLen is the fixed size of the payload marker: 8-byte magic,
// 8-byte send timestamp, 4-byte session id (§6 "Wire formats").
const MarkerLen = 8 + 8 + 4

// MinTotalSize is the floor below which a packet can't admit the marker
// (§4.1: "Fail with ConfigError if total_size is less than the minimum
// that admits the marker (floor: 64 bytes)").
const MinTotalSize = 64

// icmpHeaderLen is the 8-byte ICMP header (type, code, checksum, id, seq).
const icmpHeaderLen = 8

// IPHeaderLen returns the IP header length subtracted from total_size to
// get the ICMP payload budget (§4.1: 20 for v4, 40 for v6).
func IPHeaderLen(isV6 bool) int {
	if isV6 {
		return 40
	}
	return 20
}

// Magic is a per-multiplexer constant mixed into every marker so replies
// belonging to another process (or another multiplexer in this one,
// sharing a raw socket) are discarded rather than cross-wired (§4.4 tie-
// break "replies for another process's probes").
type Magic uint64

// sipKey1, sipKey2 seed the siphash instance used to derive each
// multiplexer's magic constant from fresh entropy, in the idiom of
// tredeske-u/usync/hash.go's fixed siphash keys.
const (
	sipKey1 = 0x9E3779B97F4A7C15
	sipKey2 = 0xBF58476D1CE4E5B9
)

// NewMagic mints a fresh per-multiplexer magic constant. It combines an
// xid (time-sortable, globally unique, grounded on the rs/xid dependency
// carried by runZeroInc-sockstats) with a siphash reduction down to 64
// bits, so collisions across multiplexers in the same process are as
// unlikely as the hash's avalanche properties allow.
func NewMagic() Magic {
	id := xid.New()
	b := id.Bytes() // 12 bytes
	return Magic(siphash.Hash(sipKey1, sipKey2, b))
}

// Marker is the decoded payload marker embedded in every echo request
// and expected back in every echo reply (§6 "Wire formats").
type Marker struct {
	Magic     Magic
	SendNS    uint64
	SessionID uint32
}

// Encode writes the marker into the start of buf, which must be at least
// MarkerLen bytes; remaining capacity is left untouched (callers zero-fill
// or otherwise pad it per §4.1 "remaining bytes arbitrary").
func (m Marker) Encode(buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(m.Magic))
	binary.BigEndian.PutUint64(buf[8:16], m.SendNS)
	binary.BigEndian.PutUint32(buf[16:20], m.SessionID)
}

// DecodeMarker reads a Marker out of the front of buf.
func DecodeMarker(buf []byte) (Marker, error) {
	if len(buf) < MarkerLen {
		return Marker{}, fmt.Errorf("wire: marker short read: %d bytes", len(buf))
	}
	return Marker{
		Magic:     Magic(binary.BigEndian.Uint64(buf[0:8])),
		SendNS:    binary.BigEndian.Uint64(buf[8:16]),
		SessionID: binary.BigEndian.Uint32(buf[16:20]),
	}, nil
}

// PayloadBudget returns how many ICMP payload bytes totalSize admits, and
// whether totalSize is at least MinTotalSize and leaves room for the marker.
func PayloadBudget(totalSize int, isV6 bool) (budget int, ok bool) {
	budget = totalSize - IPHeaderLen(isV6) - icmpHeaderLen
	return budget, totalSize >= MinTotalSize && budget >= MarkerLen
}
