package handle

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ErrEmpty is returned (or panicked with, from Access) when a handle has
// been moved from or released.
var ErrEmpty = errors.New("handle is empty")

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// shared is the reference-counted record every holder points at.
type shared[T any] struct {
	impl      *T
	refs      atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

// retain adds a reference unless the record has already dropped to zero.
func (s *shared[T]) retain() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *shared[T]) release() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}
	s.closeOnce.Do(func() {
		closer, ok := any(s.impl).(io.Closer)
		if !ok {
			return
		}
		if err := closer.Close(); err != nil {
			s.closeErr = fmt.Errorf("closing %T: %w", s.impl, err)
			logrus.WithFields(logrus.Fields{
				"function": "Handle.Release",
				"type":     fmt.Sprintf("%T", s.impl),
				"error":    err.Error(),
			}).Warn("Closing released state failed")
		}
	})
	return s.closeErr
}

// Handle is one holder of a shared *T. The zero value is an empty handle.
type Handle[T any] struct {
	noCopy noCopy

	ref atomic.Pointer[shared[T]]
}

// New returns a handle that owns impl.
func New[T any](impl *T) *Handle[T] {
	h := &Handle[T]{}
	h.Init(impl)
	return h
}

// Make builds the state with ctor and returns a handle owning it.
func Make[T any](ctor func() (*T, error)) (*Handle[T], error) {
	impl, err := ctor()
	if err != nil {
		return nil, err
	}
	return New(impl), nil
}

// Init makes h the sole holder of impl, releasing whatever h held before.
// It is the in-place form of New for handles embedded in a public type.
// The error is the close error of displaced state, as from Release.
func (h *Handle[T]) Init(impl *T) error {
	s := &shared[T]{impl: impl}
	s.refs.Store(1)
	return releaseOld(h.ref.Swap(s))
}

func releaseOld[T any](old *shared[T]) error {
	if old == nil {
		return nil
	}
	return old.release()
}

// Access returns the state. It panics with ErrEmpty when h is empty; use
// Get where that can legitimately happen.
func (h *Handle[T]) Access() *T {
	impl, err := h.Get()
	if err != nil {
		panic(err)
	}
	return impl
}

// Get returns the state or ErrEmpty.
func (h *Handle[T]) Get() (*T, error) {
	s := h.ref.Load()
	if s == nil {
		return nil, ErrEmpty
	}
	return s.impl, nil
}

// Valid reports whether h currently holds state.
func (h *Handle[T]) Valid() bool {
	return h.ref.Load() != nil
}

// MoveTo transfers h's reference to dst and leaves h empty. Any state dst
// held before is released and its close error returned. Moving a handle
// onto itself does nothing.
func (h *Handle[T]) MoveTo(dst *Handle[T]) error {
	if h == dst {
		return nil
	}
	s := h.ref.Swap(nil)
	return releaseOld(dst.ref.Swap(s))
}

// ShareTo makes dst an additional holder of h's state. Any state dst held
// before is released and its close error returned.
func (h *Handle[T]) ShareTo(dst *Handle[T]) error {
	if h == dst {
		return nil
	}
	s := h.ref.Load()
	if s == nil || !s.retain() {
		return ErrEmpty
	}
	return releaseOld(dst.ref.Swap(s))
}

// Release drops h's reference and leaves h empty. When it was the last
// reference and T implements io.Closer, the state is closed and the
// close error returned. Releasing an empty handle returns nil.
func (h *Handle[T]) Release() error {
	s := h.ref.Swap(nil)
	if s == nil {
		return nil
	}
	return s.release()
}

// Refs returns the number of holders sharing h's state, or 0 when h is
// empty.
func (h *Handle[T]) Refs() int64 {
	s := h.ref.Load()
	if s == nil {
		return 0
	}
	return s.refs.Load()
}
