// Package perrors defines the typed error kinds of §7, in a location
// internal packages (transport, mux) and the root facade can both depend
// on without an import cycle. The root package re-exports these as
// type aliases.
package perrors

import "fmt"

// ConfigError reports an invalid configuration discovered at construction
// time: a size below the marker floor, a TTL/TOS out of range, or a
// non-positive timeout. An address that fails normalization is reported
// as InvalidAddress instead.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("stormping: config: %s: %s", e.Field, e.Reason)
}

// PermissionDenied reports that every socket kind named by the selection
// policy was refused by the OS (§4.5).
type PermissionDenied struct {
	Policy string
	Last   error
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("stormping: permission denied opening %s socket: %v", e.Policy, e.Last)
}

func (e *PermissionDenied) Unwrap() error { return e.Last }

// InvalidAddress reports that an address string was not parseable in
// the strict form clean_ip requires (§8: clean_ip("127.0.0.01") fails).
type InvalidAddress struct {
	Address string
}

func (e *InvalidAddress) Error() string {
	return fmt.Sprintf("stormping: invalid address %q", e.Address)
}

// TransportError wraps an unexpected OS error from send or receive, other
// than a would-block read or an unreachable-route send (§4.3, §7).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stormping: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
