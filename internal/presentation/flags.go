package presentation

import (
	"fmt"
	"strings"
)

// Kind is the bitmask of presentation delivery mechanisms reported with the
// presented event.
type Kind uint32

const (
	// KindVsync means presentation was synchronized to the vertical retrace.
	KindVsync Kind = 0x1
	// KindHWClock means the timestamp comes from a hardware clock.
	KindHWClock Kind = 0x2
	// KindHWCompletion means the display hardware signalled completion.
	KindHWCompletion Kind = 0x4
	// KindZeroCopy means the client buffer was scanned out directly.
	KindZeroCopy Kind = 0x8
)

// kindTable is positional: symbol i renders bit kindTable[i].kind.
var kindTable = [...]struct {
	kind Kind
	sym  byte
	name string
}{
	{KindVsync, 's', "vsync"},
	{KindHWClock, 'c', "hw_clock"},
	{KindHWCompletion, 'e', "hw_completion"},
	{KindZeroCopy, 'z', "zero_copy"},
}

// SymbolsLen is the length of a rendered flags string.
const SymbolsLen = len(kindTable)

// SymbolsBufferLen is the smallest buffer PutSymbols accepts: one byte per
// table entry plus a NUL terminator.
const SymbolsBufferLen = SymbolsLen + 1

// PutSymbols renders k into dst followed by a NUL byte and returns the
// number of symbol bytes written. A dst shorter than SymbolsBufferLen yields
// the empty result: 0 is returned and dst[0], if present, is set to NUL.
func PutSymbols(dst []byte, k Kind) int {
	if len(dst) > 0 {
		dst[0] = 0
	}
	if len(dst) < SymbolsBufferLen {
		return 0
	}
	for i, d := range kindTable {
		if k&d.kind != 0 {
			dst[i] = d.sym
		} else {
			dst[i] = '_'
		}
	}
	dst[SymbolsLen] = 0
	return SymbolsLen
}

// Symbols renders k as a fixed-width symbol string, e.g. "sc__".
func (k Kind) Symbols() string {
	var buf [SymbolsBufferLen]byte
	n := PutSymbols(buf[:], k)
	return string(buf[:n])
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return k.Symbols()
}

// Names returns the protocol names of the set bits in table order.
func (k Kind) Names() []string {
	names := make([]string, 0, SymbolsLen)
	for _, d := range kindTable {
		if k&d.kind != 0 {
			names = append(names, d.name)
		}
	}
	return names
}

// Has reports whether every bit of flag is set in k.
func (k Kind) Has(flag Kind) bool {
	return k&flag == flag
}

// ParseKind builds a Kind from protocol names such as "vsync" or
// "zero_copy". Names are case-insensitive.
func ParseKind(names []string) (Kind, error) {
	var k Kind
	for _, n := range names {
		found := false
		for _, d := range kindTable {
			if strings.EqualFold(n, d.name) {
				k |= d.kind
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown presentation kind %q", n)
		}
	}
	return k, nil
}

// ParseSymbols is the inverse of Kind.Symbols.
func ParseSymbols(s string) (Kind, error) {
	if len(s) != SymbolsLen {
		return 0, fmt.Errorf("flags %q: want %d symbols, got %d", s, SymbolsLen, len(s))
	}
	var k Kind
	for i, d := range kindTable {
		switch s[i] {
		case d.sym:
			k |= d.kind
		case '_':
		default:
			return 0, fmt.Errorf("flags %q: position %d must be %q or '_'", s, i, d.sym)
		}
	}
	return k, nil
}
