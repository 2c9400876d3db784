package stormping_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravvdevv/stormping"
)

func TestConfig_Validate_RejectsUndersizedPacket(t *testing.T) {
	cfg := stormping.DefaultConfig()
	cfg.Size = 32
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsTTLOutOfRange(t *testing.T) {
	cfg := stormping.DefaultConfig()
	cfg.TTL = 0
	require.Error(t, cfg.Validate())

	cfg = stormping.DefaultConfig()
	cfg.TTL = 256
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsTOSOutOfRange(t *testing.T) {
	cfg := stormping.DefaultConfig()
	cfg.TOS = -1
	require.Error(t, cfg.Validate())

	cfg = stormping.DefaultConfig()
	cfg.TOS = 256
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_AcceptsDefaults(t *testing.T) {
	require.NoError(t, stormping.DefaultConfig().Validate())
}

func TestNew_RejectsInvalidConfigBeforeOpeningAnySocket(t *testing.T) {
	cfg := stormping.DefaultConfig()
	cfg.Size = 1
	_, err := stormping.New(cfg)
	require.Error(t, err)
}
