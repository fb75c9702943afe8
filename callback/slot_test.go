package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotInvokeWithoutHandler(t *testing.T) {
	var s Slot[int]

	assert.False(t, s.Installed())
	assert.False(t, s.Invoke(1), "empty slot must report no delivery")
}

func TestSlotInvokeCallsHandlerOnce(t *testing.T) {
	var s Slot[string]
	var got []string

	s.Set(func(v string) { got = append(got, v) })
	require.True(t, s.Installed())

	assert.True(t, s.Invoke("hello"))
	assert.Equal(t, []string{"hello"}, got)
}

func TestSlotSetNilClears(t *testing.T) {
	s := NewSlot(func(int) { t.Fatal("cleared handler must not run") })
	require.True(t, s.Installed())

	s.Set(nil)

	assert.False(t, s.Installed())
	assert.False(t, s.Invoke(7))
}

func TestSlotSetReplacesHandler(t *testing.T) {
	var s Slot[int]
	var first, second int

	s.Set(func(v int) { first += v })
	s.Set(func(v int) { second += v })
	s.Invoke(5)

	assert.Equal(t, 0, first)
	assert.Equal(t, 5, second)
}

func TestSlotSetDoesNotInvoke(t *testing.T) {
	var s Slot[int]
	s.Invoke(1)

	called := false
	s.Set(func(int) { called = true })

	assert.False(t, called, "plain slot must not replay missed events")
}

func TestSlotReentrantSet(t *testing.T) {
	var s Slot[int]
	var calls []string

	s.Set(func(v int) {
		calls = append(calls, "first")
		s.Set(func(int) { calls = append(calls, "second") })
	})

	require.True(t, s.Invoke(1))
	require.True(t, s.Invoke(2))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestSlotReentrantInvoke(t *testing.T) {
	var s Slot[int]
	var seen []int

	s.Set(func(v int) {
		seen = append(seen, v)
		if v > 0 {
			s.Invoke(v - 1)
		}
	})

	s.Invoke(3)
	assert.Equal(t, []int{3, 2, 1, 0}, seen)
}

func TestSlotReentrantSiblingSlot(t *testing.T) {
	var open, closed Slot[struct{}]
	closedRan := false

	open.Set(func(struct{}) {
		closed.Set(func(struct{}) { closedRan = true })
		assert.True(t, open.Installed())
	})

	open.Invoke(struct{}{})
	closed.Invoke(struct{}{})
	assert.True(t, closedRan)
}

func TestSlotHandlerPanicPropagates(t *testing.T) {
	var s Slot[int]
	s.Set(func(int) { panic("handler failure") })

	assert.PanicsWithValue(t, "handler failure", func() { s.Invoke(1) })

	// The lock must not be left held.
	s.Set(nil)
	assert.False(t, s.Installed())
}

func TestSlotMoveFrom(t *testing.T) {
	var src, dst Slot[int]
	got := 0
	src.Set(func(v int) { got = v })

	dst.MoveFrom(&src)

	assert.False(t, src.Installed(), "moved-from slot must be empty")
	assert.True(t, dst.Installed())
	dst.Invoke(9)
	assert.Equal(t, 9, got)
}

func TestSlotCopyFrom(t *testing.T) {
	var src, dst Slot[int]
	total := 0
	src.Set(func(v int) { total += v })

	dst.CopyFrom(&src)

	assert.True(t, src.Installed())
	assert.True(t, dst.Installed())
	src.Invoke(1)
	dst.Invoke(2)
	assert.Equal(t, 3, total)
}

func TestSlotSelfAssignment(t *testing.T) {
	var s Slot[int]
	s.Set(func(int) {})

	s.MoveFrom(&s)
	s.CopyFrom(&s)

	assert.True(t, s.Installed())
}

func TestSlotMoveFromEmpty(t *testing.T) {
	var src, dst Slot[int]
	dst.Set(func(int) {})

	dst.MoveFrom(&src)

	assert.False(t, dst.Installed(), "moving an empty slot clears the destination")
}

func TestSlotReset(t *testing.T) {
	s := NewSlot(func(int) { t.Fatal("reset must not invoke") })
	s.Reset()
	assert.False(t, s.Installed())
}
