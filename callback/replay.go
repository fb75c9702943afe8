package callback

// ReplayingSlot is a Slot that keeps the most recent invocation which
// found no handler installed and replays it when a handler is set.
//
// At most one event is buffered; a newer miss overwrites an older one.
// The zero value is ready for use. A ReplayingSlot must not be copied
// after first use.
type ReplayingSlot[T any] struct {
	st state[T]
}

// NewReplayingSlot returns a replaying slot with fn installed.
func NewReplayingSlot[T any](fn func(T)) *ReplayingSlot[T] {
	s := &ReplayingSlot[T]{}
	s.st.fn = fn
	return s
}

// Set installs fn. If an event is buffered, fn receives it exactly once
// before Set returns and the buffer is cleared. Events invoked by other
// goroutines while the replay runs are buffered and handed to fn after
// it, in order. A nil fn clears the handler and keeps the buffer.
func (s *ReplayingSlot[T]) Set(fn func(T)) {
	s.st.set(fn, true)
}

// Invoke calls the installed handler with v. With no handler installed v
// is buffered for replay, replacing any earlier buffered event. Invoke
// always reports true: the event is either delivered or kept.
func (s *ReplayingSlot[T]) Invoke(v T) bool {
	return s.st.invoke(v, true)
}

// Installed reports whether a handler is currently set.
func (s *ReplayingSlot[T]) Installed() bool {
	return s.st.installed()
}

// Pending reports whether an event is buffered awaiting a handler.
func (s *ReplayingSlot[T]) Pending() bool {
	return s.st.pendingEvent()
}

// Discard drops the buffered event, if any, without delivering it.
func (s *ReplayingSlot[T]) Discard() {
	s.st.discard()
}

// MoveFrom transfers src's handler into s, leaving src without a handler.
// An event buffered in s is replayed into the moved handler; an event
// buffered in src stays with src.
func (s *ReplayingSlot[T]) MoveFrom(src *ReplayingSlot[T]) {
	s.st.moveFrom(&src.st, true)
}

// CopyFrom installs src's handler in s as well, replaying any event
// buffered in s into it.
func (s *ReplayingSlot[T]) CopyFrom(src *ReplayingSlot[T]) {
	s.st.copyFrom(&src.st, true)
}

// Reset drops both the handler and any buffered event without calling
// anything.
func (s *ReplayingSlot[T]) Reset() {
	s.st.reset()
}
