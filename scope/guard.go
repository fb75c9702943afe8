package scope

import (
	"sync/atomic"
)

// noCopy makes go vet's copylocks check reject copies of the embedding
// struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Guard runs a deferred action at most once.
type Guard struct {
	noCopy noCopy

	fn   func()
	done atomic.Bool
}

// New returns a guard armed with fn. A nil fn yields a guard that never
// runs anything.
func New(fn func()) *Guard {
	return &Guard{fn: fn}
}

// Run executes the action if the guard is still armed. Only the first
// call does anything, also when several goroutines call Run together.
func (g *Guard) Run() {
	if g == nil || !g.done.CompareAndSwap(false, true) {
		return
	}
	if g.fn != nil {
		g.fn()
	}
}

// Dismiss disarms the guard so Run does nothing.
func (g *Guard) Dismiss() {
	g.done.Store(true)
}

// Armed reports whether Run would still execute the action.
func (g *Guard) Armed() bool {
	return g.fn != nil && !g.done.Load()
}
