package addr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravvdevv/stormping/internal/addr"
)

func TestNormalize_CanonicalizesCompactIPv6(t *testing.T) {
	family, canonical, ok := addr.Normalize("0::1")
	require.True(t, ok)
	require.Equal(t, addr.V6, family)
	require.Equal(t, "::1", canonical)
}

func TestNormalize_RejectsLeadingZeroOctet(t *testing.T) {
	_, _, ok := addr.Normalize("127.0.0.01")
	require.False(t, ok)
}

func TestNormalize_RejectsAbbreviatedIPv4(t *testing.T) {
	_, _, ok := addr.Normalize("127.0.1")
	require.False(t, ok)
}

func TestNormalize_AcceptsLoopback(t *testing.T) {
	family, canonical, ok := addr.Normalize("127.0.0.1")
	require.True(t, ok)
	require.Equal(t, addr.V4, family)
	require.Equal(t, "127.0.0.1", canonical)
}

func TestOf_SelectsFamilyByColon(t *testing.T) {
	require.Equal(t, addr.V6, addr.Of("::1"))
	require.Equal(t, addr.V4, addr.Of("192.0.2.1"))
}
