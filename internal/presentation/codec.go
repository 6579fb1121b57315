package presentation

import (
	"fmt"
	"time"
)

// NanosPerSecond bounds the nanoseconds field of a canonical Timestamp.
const NanosPerSecond = 1_000_000_000

// Reconstruct64 joins two 32-bit halves into one unsigned 64-bit value.
func Reconstruct64(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

// Split64 is the inverse of Reconstruct64.
func Split64(v uint64) (hi, lo uint32) {
	return uint32(v >> 32), uint32(v)
}

// Timestamp is a presentation time as reported by the server's clock.
type Timestamp struct {
	Sec  uint64
	Nsec uint32
}

// TimestampFromProto assembles a Timestamp from the wire fields.
// Nsec is stored as received; see Canonical.
func TimestampFromProto(secHi, secLo, nsec uint32) Timestamp {
	return Timestamp{
		Sec:  Reconstruct64(secHi, secLo),
		Nsec: nsec,
	}
}

// Canonical reports whether Nsec lies in [0, 1e9).
// Servers are expected to send canonical values but decoding does not
// enforce it.
func (t Timestamp) Canonical() bool {
	return t.Nsec < NanosPerSecond
}

// IsZero reports whether t is the zero timestamp.
func (t Timestamp) IsZero() bool {
	return t.Sec == 0 && t.Nsec == 0
}

// String formats t as seconds.nanoseconds with nine fractional digits.
func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Sec, t.Nsec)
}

// Time converts t to a time.Time, treating Sec as seconds since the Unix
// epoch. Monotonic clock domains convert fine but the resulting wall time
// is meaningless.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t.Sec), int64(t.Nsec))
}

// Sub returns the duration t-u.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	sec := int64(t.Sec) - int64(u.Sec)
	nsec := int64(t.Nsec) - int64(u.Nsec)
	return time.Duration(sec)*time.Second + time.Duration(nsec)
}
