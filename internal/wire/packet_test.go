package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravvdevv/stormping/internal/addr"
	"github.com/ravvdevv/stormping/internal/wire"
)

func TestBuildEchoRequest_RoundTripsThroughParse(t *testing.T) {
	magic := wire.NewMagic()
	req, err := wire.BuildEchoRequest(addr.V4, 0x1234, 7, 99, magic, 1000, 64)
	require.NoError(t, err)
	require.NotEmpty(t, req.Bytes)

	// The kernel normally fills the echo reply's type; flip the request
	// type byte to simulate a reply with the same body for parsing.
	reply := append([]byte(nil), req.Bytes...)
	reply[0] = 0 // ICMPv4 echo reply type

	parsed, ok := wire.ParseEchoReply(addr.V4, reply)
	require.True(t, ok)
	require.Equal(t, req.ID, parsed.ID)
	require.Equal(t, req.Seq, parsed.Seq)
	require.Equal(t, magic, parsed.Marker.Magic)
	require.Equal(t, uint32(99), parsed.Marker.SessionID)
	require.Equal(t, uint64(1000), parsed.Marker.SendNS)
}

func TestBuildEchoRequest_ChecksumRevalidates(t *testing.T) {
	req, err := wire.BuildEchoRequest(addr.V4, 1, 1, 1, wire.NewMagic(), 1, 64)
	require.NoError(t, err)

	sum := wire.Checksum(req.Bytes)
	require.Equal(t, uint16(0), sum, "one's-complement sum of a valid checksummed message must fold to 0")
}

func TestBuildEchoRequest_TooSmallFailsWithError(t *testing.T) {
	_, err := wire.BuildEchoRequest(addr.V4, 1, 1, 1, wire.NewMagic(), 1, 32)
	require.Error(t, err)
}

func TestBuildEchoRequest_FamilyDefaultsChecksumStrategy(t *testing.T) {
	require.Equal(t, wire.ChecksumComputedHere, wire.StrategyFor(addr.V4))
	require.Equal(t, wire.ChecksumKernelOffload, wire.StrategyFor(addr.V6))
}

func TestParseEchoReply_RejectsEchoRequestLoopMirror(t *testing.T) {
	req, err := wire.BuildEchoRequest(addr.V4, 1, 1, 1, wire.NewMagic(), 1, 64)
	require.NoError(t, err)

	// req.Bytes is still type 8 (echo request); the kernel-loop-mirror
	// case must be silently discarded, not mistaken for a reply.
	_, ok := wire.ParseEchoReply(addr.V4, req.Bytes)
	require.False(t, ok)
}

// ParseEchoReply does not filter on magic itself; it returns the marker's
// magic so the multiplexer can drop replies carrying another one.
func TestParseEchoReply_ReturnsMagicForCallerFiltering(t *testing.T) {
	req, err := wire.BuildEchoRequest(addr.V4, 1, 1, 1, wire.NewMagic(), 1, 64)
	require.NoError(t, err)
	reply := append([]byte(nil), req.Bytes...)
	reply[0] = 0

	parsed, ok := wire.ParseEchoReply(addr.V4, reply)
	require.True(t, ok)

	other := wire.NewMagic()
	require.NotEqual(t, other, parsed.Marker.Magic, "two calls to NewMagic should not collide in this test run")
}

func TestMarker_EncodeDecodeRoundTrips(t *testing.T) {
	m := wire.Marker{Magic: wire.Magic(0xdeadbeefcafef00d), SendNS: 123456789, SessionID: 42}
	buf := make([]byte, wire.MarkerLen)
	m.Encode(buf)

	decoded, err := wire.DecodeMarker(buf)
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestDecodeMarker_ShortBufferFails(t *testing.T) {
	_, err := wire.DecodeMarker(make([]byte, wire.MarkerLen-1))
	require.Error(t, err)
}

func TestPayloadBudget_FloorIsSixtyFourBytes(t *testing.T) {
	_, ok := wire.PayloadBudget(wire.MinTotalSize, false)
	require.True(t, ok)
	_, ok = wire.PayloadBudget(wire.MinTotalSize-1, false)
	require.False(t, ok)
}

// FuzzParseEchoReply ensures the parser never panics on attacker-controlled
// bytes received off a shared raw socket (§4.1, §7 "Parse failures... are
// silently dropped").
func FuzzParseEchoReply(f *testing.F) {
	req, _ := wire.BuildEchoRequest(addr.V4, 1, 1, 1, wire.NewMagic(), 1, 64)
	f.Add(req.Bytes, false)
	f.Add([]byte{}, false)
	f.Add(make([]byte, 7), false)
	f.Add([]byte{0x00, 0x00, 0x00, 0x00}, true)

	f.Fuzz(func(t *testing.T, pkt []byte, isV6 bool) {
		family := addr.V4
		if isV6 {
			family = addr.V6
		}
		wire.ParseEchoReply(family, pkt)
	})
}
