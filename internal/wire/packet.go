package wire

import (
	"fmt"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/ravvdevv/stormping/internal/addr"
)

// Protocol numbers for icmp.ParseMessage (§4.1, RFC 792 / RFC 4443).
const (
	ProtocolICMP   = 1
	ProtocolICMPv6 = 58
)

// ChecksumStrategy records how a family's checksum is produced, per
// §4.1's requirement to "record which strategy is used; tests must
// cover both".
type ChecksumStrategy int

const (
	// ChecksumComputedHere means the codec computed the one's-complement
	// checksum itself, over the ICMP message (v4's path: golang.org/x/net
	// marshals the whole ICMP-only checksum internally in Message.Marshal
	// when psh is nil).
	ChecksumComputedHere ChecksumStrategy = iota
	// ChecksumKernelOffload means the kernel computes the checksum at
	// send time using the ICMP6_CHECKSUM socket option's offset, over the
	// IPv6 pseudo-header plus body; the codec must not also fold one in.
	ChecksumKernelOffload
)

// StrategyFor returns the checksum strategy this codec uses for family.
func StrategyFor(family addr.Family) ChecksumStrategy {
	if family == addr.V6 {
		return ChecksumKernelOffload
	}
	return ChecksumComputedHere
}

// Request is a built echo-request frame ready to hand to the transport,
// plus the fields the multiplexer needs to record a pending entry.
type Request struct {
	Bytes     []byte
	Marker    Marker
	ID        int
	Seq       int
	SessionID uint32
}

// BuildEchoRequest constructs the ICMP echo-request payload for family,
// embedding id/seq in the ICMP header and the marker (magic, sendNS,
// sessionID) as the payload (§4.1, §6 "Wire formats"). totalSize is the
// full on-wire packet size including the IP header; the marker consumes
// the first MarkerLen bytes of the ICMP payload and the rest is
// zero-filled.
func BuildEchoRequest(family addr.Family, id, seq int, sessionID uint32, magic Magic, sendNS uint64, totalSize int) (Request, error) {
	budget, ok := PayloadBudget(totalSize, family == addr.V6)
	if !ok {
		need := IPHeaderLen(family == addr.V6) + icmpHeaderLen + MarkerLen
		if need < MinTotalSize {
			need = MinTotalSize
		}
		return Request{}, fmt.Errorf("wire: total size %d too small for marker (need >= %d)", totalSize, need)
	}

	payload := make([]byte, budget)
	marker := Marker{Magic: magic, SendNS: sendNS, SessionID: sessionID}
	marker.Encode(payload)

	msgType := icmp.Type(ipv4.ICMPTypeEcho)
	if family == addr.V6 {
		msgType = ipv6.ICMPTypeEchoRequest
	}

	msg := icmp.Message{
		Type: msgType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: payload,
		},
	}

	// For ICMPv4 golang.org/x/net/icmp computes the message checksum
	// during Marshal when psh is nil (ChecksumComputedHere). For ICMPv6
	// the kernel computes it via the ICMP6_CHECKSUM socket option
	// (ChecksumKernelOffload, configured by the transport), so psh stays
	// nil here too and the marshaled checksum field is left at zero for
	// the kernel to fill in.
	b, err := msg.Marshal(nil)
	if err != nil {
		return Request{}, fmt.Errorf("wire: marshal: %w", err)
	}

	return Request{Bytes: b, Marker: marker, ID: id, Seq: seq, SessionID: sessionID}, nil
}

// Reply is a decoded, matched echo-reply frame (§4.1 "Parsing").
type Reply struct {
	ID     int
	Seq    int
	Marker Marker
}

// ParseEchoReply validates that raw is an echo reply for family and
// extracts (identifier, sequence, marker). It returns ok=false (never an
// error) for anything that isn't a well-formed echo reply addressed to
// this codec — malformed bytes, echo requests looped back by the kernel,
// or replies too short to carry a marker are all silently rejected per
// §4.1/§7 ("Parse failures and unmatched replies are silently dropped").
func ParseEchoReply(family addr.Family, raw []byte) (Reply, bool) {
	proto := ProtocolICMP
	wantType := icmp.Type(ipv4.ICMPTypeEchoReply)
	if family == addr.V6 {
		proto = ProtocolICMPv6
		wantType = ipv6.ICMPTypeEchoReply
	}

	msg, err := icmp.ParseMessage(proto, raw)
	if err != nil {
		return Reply{}, false
	}
	if msg.Type != wantType {
		// Includes the echo-request loop-mirror case (§4.1): silently
		// discarded, not an error.
		return Reply{}, false
	}

	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return Reply{}, false
	}
	marker, err := DecodeMarker(echo.Data)
	if err != nil {
		return Reply{}, false
	}

	return Reply{ID: echo.ID, Seq: echo.Seq, Marker: marker}, true
}

// Checksum computes the standard Internet one's-complement checksum over
// b, the algorithm golang.org/x/net/icmp applies internally for ICMPv4.
// The send path does not call it: ICMPv4 checksums come from Marshal and
// ICMPv6 checksums from kernel offload. Exposed so tests can assert the
// round-trip law of §8 invariant 3 independently of the marshal/parse path.
func Checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 != 0 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
