package stormping

import "github.com/ravvdevv/stormping/internal/perrors"

// Error kinds (§7). Defined in internal/perrors so transport and mux can
// construct them without importing this root package; aliased here so
// callers match the same underlying type with
// var ce *stormping.ConfigError; errors.As(err, &ce).
type (
	ConfigError      = perrors.ConfigError
	PermissionDenied = perrors.PermissionDenied
	InvalidAddress   = perrors.InvalidAddress
	TransportError   = perrors.TransportError
)
