package callback

// Slot is a synchronized holder for at most one event handler. The zero
// value is an empty slot ready for use. A Slot must not be copied after
// first use; use CopyFrom or MoveFrom instead.
type Slot[T any] struct {
	st state[T]
}

// NewSlot returns a slot with fn installed.
func NewSlot[T any](fn func(T)) *Slot[T] {
	s := &Slot[T]{}
	s.st.fn = fn
	return s
}

// Set installs fn as the handler, replacing any previous one. A nil fn
// clears the slot. Set never invokes the handler.
func (s *Slot[T]) Set(fn func(T)) {
	s.st.set(fn, false)
}

// Invoke calls the installed handler with v on the calling goroutine and
// reports whether a handler ran. A panic raised by the handler propagates
// to the caller.
//
// The handler is read under the slot lock and called after the lock is
// released, so an Invoke that read the handler just before a concurrent
// Set may still run the old handler once.
func (s *Slot[T]) Invoke(v T) bool {
	return s.st.invoke(v, false)
}

// Installed reports whether a handler is currently set.
func (s *Slot[T]) Installed() bool {
	return s.st.installed()
}

// MoveFrom transfers src's handler into s, leaving src empty.
func (s *Slot[T]) MoveFrom(src *Slot[T]) {
	s.st.moveFrom(&src.st, false)
}

// CopyFrom installs src's handler in s as well. Both slots then share the
// same handler.
func (s *Slot[T]) CopyFrom(src *Slot[T]) {
	s.st.copyFrom(&src.st, false)
}

// Reset drops the handler without calling it.
func (s *Slot[T]) Reset() {
	s.st.reset()
}
