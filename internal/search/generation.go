package search

import "sync/atomic"

// Generation orders queries. A result batch is only accepted while the
// generation it was produced under is still the newest one issued.
type Generation uint64

// GenCounter issues generations. Bump happens on the UI loop; Current may
// race with it from producer goroutines, so reads are atomic.
type GenCounter struct {
	n atomic.Uint64
}

// Bump starts a new generation and returns it. Every generation in flight
// before the call is stale afterwards.
func (g *GenCounter) Bump() Generation {
	return Generation(g.n.Add(1))
}

// Current returns the newest generation.
func (g *GenCounter) Current() Generation {
	return Generation(g.n.Load())
}
