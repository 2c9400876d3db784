// Package addr normalizes and classifies probe destinations (§3, §4.4
// step 1, §8 invariant 6).
package addr

import (
	"net"
	"strings"
)

// Family is the address-family tag derived from a destination string.
type Family int

const (
	V4 Family = iota
	V6
)

func (f Family) String() string {
	if f == V6 {
		return "v6"
	}
	return "v4"
}

// Of reports the address family of addr by the presence of ':', per §3:
// "An enumerated tag {v4, v6} derived from the textual address (presence
// of ':' selects v6)".
func Of(addr string) Family {
	if strings.Contains(addr, ":") {
		return V6
	}
	return V4
}

// Normalize reduces addr to strict canonical form, matching §8's
// clean_ip law: clean_ip("0::1") == "::1", clean_ip("127.0.0.01") fails.
//
// net.ParseIP already rejects IPv4 octets with leading zeros and
// abbreviated dotted-decimal forms (Go has refused octal-ambiguous
// leading zeros since Go 1.17), so strictness falls out of the stdlib
// parser; this function only adds the family tag and picks the
// canonical string form.
func Normalize(address string) (Family, string, bool) {
	family := Of(address)
	ip := net.ParseIP(address)
	if ip == nil {
		return family, "", false
	}
	if family == V4 {
		ip4 := ip.To4()
		if ip4 == nil {
			return family, "", false
		}
		return family, ip4.String(), true
	}
	return family, ip.String(), true
}
