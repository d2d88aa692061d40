package transport

import "strings"

// Interest is a bitmask of readiness kinds a channel is polled for.
type Interest uint32

const (
	// InterestNone polls for nothing. The channel is registered but idle.
	InterestNone Interest = 0

	// InterestRead polls for inbound data.
	InterestRead Interest = 1 << 0

	// InterestWrite polls for outbound buffer space.
	InterestWrite Interest = 1 << 1

	// InterestConnect polls for completion of a pending connect.
	InterestConnect Interest = 1 << 2
)

// Has reports whether every bit of flag is set.
func (i Interest) Has(flag Interest) bool {
	return flag != 0 && i&flag == flag
}

// String returns a readable form such as "READ|CONNECT".
func (i Interest) String() string {
	if i == InterestNone {
		return "NONE"
	}
	var parts []string
	if i.Has(InterestRead) {
		parts = append(parts, "READ")
	}
	if i.Has(InterestWrite) {
		parts = append(parts, "WRITE")
	}
	if i.Has(InterestConnect) {
		parts = append(parts, "CONNECT")
	}
	if rest := i &^ (InterestRead | InterestWrite | InterestConnect); rest != 0 {
		parts = append(parts, "UNKNOWN")
	}
	return strings.Join(parts, "|")
}
