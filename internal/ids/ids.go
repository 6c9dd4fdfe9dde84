// Package ids hands out beacon identifiers.
//
// Every beacon gets a random UUID that is unique for the life of the process
// and a stable sequence number used to correlate log lines. The sequence
// starts at 1 each time a Generator is created, so it resets on every
// process start and must never be persisted.
package ids

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator is safe for concurrent use.
type Generator struct {
	seq atomic.Uint64
	rnd func() uuid.UUID
}

// New returns a generator backed by random (version 4) UUIDs.
func New() *Generator {
	return &Generator{rnd: uuid.New}
}

// NewWithSource returns a generator drawing UUIDs from fn. Tests use it for
// deterministic IDs.
func NewWithSource(fn func() uuid.UUID) *Generator {
	return &Generator{rnd: fn}
}

// Next returns a fresh UUID and the next sequence number.
func (g *Generator) Next() (uuid.UUID, uint64) {
	return g.rnd(), g.seq.Add(1)
}

// Issued returns how many identifiers have been handed out.
func (g *Generator) Issued() uint64 {
	return g.seq.Load()
}
