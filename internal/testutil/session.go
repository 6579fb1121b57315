package testutil

import "fmt"

// FixedSessionGenerator returns the same session ID every time.
//
// Recording one scenario with a FixedSessionGenerator produces the same
// store rows and trace digests on every run.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator for id.
// An empty id becomes "session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session ID.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}

// SequenceGenerator returns numbered session IDs: prefix-0001, prefix-0002,
// and so on. Use it when several sessions share one store.
type SequenceGenerator struct {
	prefix string
	clock  *DeterministicClock
}

// NewSequenceGenerator creates a numbered generator. An empty prefix
// becomes "session".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "session"
	}
	return &SequenceGenerator{prefix: prefix, clock: NewDeterministicClock()}
}

// Generate returns the next numbered ID.
func (g *SequenceGenerator) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.clock.Next())
}

// Reset restarts numbering at 1.
func (g *SequenceGenerator) Reset() {
	g.clock.Reset()
}
