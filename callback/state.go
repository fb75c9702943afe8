package callback

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// slotIDs hands out the lock ordering key for cross-slot assignment.
var slotIDs atomic.Uint64

// state is the storage shared by Slot and ReplayingSlot. The replay
// behaviour is selected per call so that the zero value of either slot
// type is ready to use.
type state[T any] struct {
	mu sync.Mutex
	id atomic.Uint64

	fn func(T)

	// pending is the handler held back while buffered events drain into
	// it. It is reported as installed but not invoked directly.
	pending func(T)
	// gen counts installations; a replay loop stops installing when a
	// newer Set has happened.
	gen uint64

	stored    T
	hasStored bool
}

func (st *state[T]) order() uint64 {
	if id := st.id.Load(); id != 0 {
		return id
	}
	st.id.CompareAndSwap(0, slotIDs.Add(1))
	return st.id.Load()
}

// lockPair locks both states, lowest id first.
func lockPair[T any](a, b *state[T]) {
	if a.order() < b.order() {
		a.mu.Lock()
		b.mu.Lock()
		return
	}
	b.mu.Lock()
	a.mu.Lock()
}

func (st *state[T]) installed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.fn != nil || st.pending != nil
}

func (st *state[T]) set(fn func(T), replay bool) {
	st.mu.Lock()
	st.installLocked(fn, replay)
}

// installLocked installs fn. It must be called with st.mu held and
// returns with it released. When replay is enabled and an event is
// buffered, the event is delivered to fn before fn becomes visible to
// Invoke, so the replayed event is always seen first.
func (st *state[T]) installLocked(fn func(T), replay bool) {
	st.gen++
	gen := st.gen

	if !replay || fn == nil || !st.hasStored {
		st.fn = fn
		st.pending = nil
		st.mu.Unlock()
		return
	}

	st.fn = nil
	st.pending = fn

	finished := false
	defer func() {
		if finished {
			return
		}
		// fn panicked during replay; install it anyway so the slot
		// keeps working once the panic has been handled upstream. An
		// event buffered meanwhile is delivered by the next Invoke.
		st.mu.Lock()
		if st.gen == gen {
			st.fn = fn
			st.pending = nil
		}
		st.mu.Unlock()
	}()

	for {
		v := st.takeStoredLocked()
		st.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "ReplayingSlot.Set",
			"slot":     st.order(),
		}).Debug("Replaying buffered event to new callback")
		fn(v)

		st.mu.Lock()
		if st.gen != gen {
			// A newer Set (possibly from fn itself) took over.
			finished = true
			st.mu.Unlock()
			return
		}
		if !st.hasStored {
			st.fn = fn
			st.pending = nil
			finished = true
			st.mu.Unlock()
			return
		}
	}
}

func (st *state[T]) takeStoredLocked() T {
	var zero T
	v := st.stored
	st.stored = zero
	st.hasStored = false
	return v
}

func (st *state[T]) invoke(v T, replay bool) bool {
	st.mu.Lock()
	fn := st.fn
	if fn == nil {
		if replay {
			st.stored = v
			st.hasStored = true
			st.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "ReplayingSlot.Invoke",
				"slot":     st.order(),
			}).Debug("No callback installed, buffering event for replay")
			return true
		}
		st.mu.Unlock()
		return false
	}
	if replay && st.hasStored {
		// Buffered while a replay was running when the handler panicked.
		// It predates v, so it goes first.
		stored := st.takeStoredLocked()
		st.mu.Unlock()
		fn(stored)
		fn(v)
		return true
	}
	st.mu.Unlock()

	fn(v)
	return true
}

// moveFrom transfers src's handler into st. src keeps its buffered event,
// st replays its own buffered event into the moved handler.
func (st *state[T]) moveFrom(src *state[T], replay bool) {
	if st == src {
		return
	}
	lockPair(st, src)
	fn := src.current()
	src.fn = nil
	src.pending = nil
	src.gen++
	src.mu.Unlock()
	st.installLocked(fn, replay)
}

func (st *state[T]) copyFrom(src *state[T], replay bool) {
	if st == src {
		return
	}
	lockPair(st, src)
	fn := src.current()
	src.mu.Unlock()
	st.installLocked(fn, replay)
}

// current returns the handler that Installed reports on. Caller holds mu.
func (st *state[T]) current() func(T) {
	if st.fn != nil {
		return st.fn
	}
	return st.pending
}

func (st *state[T]) pendingEvent() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.hasStored
}

func (st *state[T]) discard() {
	st.mu.Lock()
	st.takeStoredLocked()
	st.mu.Unlock()
}

func (st *state[T]) reset() {
	st.mu.Lock()
	st.gen++
	st.fn = nil
	st.pending = nil
	st.takeStoredLocked()
	st.mu.Unlock()
}
