package lifetime

import (
	"sync"
)

// Observable is implemented by objects whose methods may be bound to
// callbacks. Token must return the same token for the object's whole life.
type Observable interface {
	Token() *Token
}

// Token tracks whether its owner is alive and how many calls currently
// hold it alive. The zero value is a live token.
type Token struct {
	mu         sync.Mutex
	ended      bool
	released   bool
	leases     int
	finalizers []func()
	done       chan struct{}
}

// NewToken returns a live token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Token returns t, so a bare token can be passed wherever an Observable
// is expected.
func (t *Token) Token() *Token {
	return t
}

// Acquire takes a temporary strong reference to the owner. It returns
// ok == false once End has been called. On success the caller must call
// release exactly once when done; extra calls are ignored.
func (t *Token) Acquire() (release func(), ok bool) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return nil, false
	}
	t.leases++
	t.mu.Unlock()

	var once sync.Once
	return func() { once.Do(t.releaseLease) }, true
}

func (t *Token) releaseLease() {
	t.mu.Lock()
	t.leases--
	t.finalizeLocked()
}

// Alive reports whether End has not been called yet.
func (t *Token) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.ended
}

// End marks the owner as gone. Subsequent Acquire calls fail. Finalizers
// run now if no call holds a lease, otherwise when the last lease is
// released. End is idempotent and safe to call from inside a bound call.
func (t *Token) End() {
	t.mu.Lock()
	t.ended = true
	t.finalizeLocked()
}

// finalizeLocked runs the finalizers once the token has ended and is no
// longer leased. Called with t.mu held; returns with it released.
func (t *Token) finalizeLocked() {
	if !t.ended || t.leases > 0 || t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	finalizers := t.finalizers
	t.finalizers = nil
	done := t.doneLocked()
	t.mu.Unlock()

	for i := len(finalizers) - 1; i >= 0; i-- {
		finalizers[i]()
	}
	close(done)
}

func (t *Token) doneLocked() chan struct{} {
	if t.done == nil {
		t.done = make(chan struct{})
	}
	return t.done
}

// OnRelease registers fn to run after End, once every lease has been
// released. Finalizers run in reverse registration order. If the token is
// already released fn runs immediately.
func (t *Token) OnRelease(fn func()) {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		fn()
		return
	}
	t.finalizers = append(t.finalizers, fn)
	t.mu.Unlock()
}

// Done returns a channel closed after the finalizers have run.
func (t *Token) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneLocked()
}

// Do runs fn while holding a lease and reports whether it ran.
func (t *Token) Do(fn func()) bool {
	release, ok := t.Acquire()
	if !ok {
		return false
	}
	defer release()
	fn()
	return true
}
