package scope

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Group is a stack of cleanups run in reverse order of registration.
// The zero value is ready to use.
type Group struct {
	noCopy noCopy

	mu     sync.Mutex
	fns    []*cleanup
	closed bool
}

type cleanup struct {
	fn func() error
}

// Add pushes a cleanup. If the group has already been closed fn runs
// immediately and a failure is logged.
func (g *Group) Add(fn func() error) {
	g.Push(fn)
}

// Push is Add for cleanups that may become unnecessary before the group
// closes, such as a resource the caller closed itself. remove drops the
// cleanup without running it; it does nothing once the group has closed.
func (g *Group) Push(fn func() error) (remove func()) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		if err := fn(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Group.Add",
				"error":    err.Error(),
			}).Warn("Cleanup added after close failed")
		}
		return func() {}
	}
	c := &cleanup{fn: fn}
	g.fns = append(g.fns, c)
	g.mu.Unlock()

	return func() { g.remove(c) }
}

func (g *Group) remove(c *cleanup) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, fn := range g.fns {
		if fn == c {
			g.fns = append(g.fns[:i], g.fns[i+1:]...)
			return
		}
	}
}

// AddFunc pushes a cleanup that cannot fail.
func (g *Group) AddFunc(fn func()) {
	g.Add(func() error {
		fn()
		return nil
	})
}

// Release disarms every registered cleanup, typically once setup has
// succeeded and ownership passes to the caller.
func (g *Group) Release() {
	g.mu.Lock()
	g.fns = nil
	g.mu.Unlock()
}

// Len returns the number of armed cleanups.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fns)
}

// Close runs the armed cleanups last-in first-out. Every cleanup runs even
// if an earlier one fails; the failures are returned together. Close is
// idempotent.
func (g *Group) Close() error {
	g.mu.Lock()
	fns := g.fns
	g.fns = nil
	g.closed = true
	g.mu.Unlock()

	var result *multierror.Error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i].fn(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
