package perrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravvdevv/stormping/internal/perrors"
)

func TestPermissionDenied_UnwrapsLastError(t *testing.T) {
	last := errors.New("no route")
	err := &perrors.PermissionDenied{Policy: "raw,dgram", Last: last}
	require.ErrorIs(t, err, last)
}

func TestTransportError_UnwrapsErr(t *testing.T) {
	inner := errors.New("econnrefused")
	err := &perrors.TransportError{Op: "send", Err: inner}
	require.ErrorIs(t, err, inner)
}

func TestConfigError_MessageNamesField(t *testing.T) {
	err := &perrors.ConfigError{Field: "ttl", Reason: "must be in [1,255]"}
	require.Contains(t, err.Error(), "ttl")
}
