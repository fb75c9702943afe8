package scope

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWithGuard(counter *int, fail bool) (err error) {
	g := New(func() { *counter++ })
	defer g.Run()

	if fail {
		return errors.New("early return")
	}
	return nil
}

func TestGuardRunsOnEveryExitPath(t *testing.T) {
	tests := []struct {
		name string
		fail bool
	}{
		{"normal return", false},
		{"early error return", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := 0
			_ = runWithGuard(&count, tt.fail)
			assert.Equal(t, 1, count)
		})
	}
}

func TestGuardRunsOnPanic(t *testing.T) {
	count := 0
	assert.Panics(t, func() {
		g := New(func() { count++ })
		defer g.Run()
		panic("unwinding")
	})
	assert.Equal(t, 1, count)
}

func TestGuardRunsOnce(t *testing.T) {
	count := 0
	g := New(func() { count++ })

	g.Run()
	g.Run()

	assert.Equal(t, 1, count)
	assert.False(t, g.Armed())
}

func TestGuardConcurrentRunOnce(t *testing.T) {
	var count atomic.Int32
	g := New(func() { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Run()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), count.Load())
}

func TestGuardNilAction(t *testing.T) {
	g := New(nil)
	assert.False(t, g.Armed())
	assert.NotPanics(t, g.Run)

	var nilGuard *Guard
	assert.NotPanics(t, nilGuard.Run)
}

func TestGuardDismiss(t *testing.T) {
	ran := false
	g := New(func() { ran = true })
	require.True(t, g.Armed())

	g.Dismiss()
	g.Run()

	assert.False(t, ran)
}

func TestGroupRunsInReverseOrder(t *testing.T) {
	var g Group
	var order []string
	g.AddFunc(func() { order = append(order, "socket") })
	g.AddFunc(func() { order = append(order, "channel") })
	g.AddFunc(func() { order = append(order, "handler") })

	require.NoError(t, g.Close())
	assert.Equal(t, []string{"handler", "channel", "socket"}, order)
}

func TestGroupAggregatesErrors(t *testing.T) {
	var g Group
	errA := errors.New("close socket")
	errB := errors.New("deregister")
	ran := false

	g.Add(func() error { return errA })
	g.AddFunc(func() { ran = true })
	g.Add(func() error { return errB })

	err := g.Close()
	require.Error(t, err)
	assert.True(t, ran, "a failing cleanup must not stop the others")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
}

func TestGroupCloseIdempotent(t *testing.T) {
	var g Group
	count := 0
	g.AddFunc(func() { count++ })

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.Equal(t, 1, count)
}

func TestGroupRelease(t *testing.T) {
	var g Group
	ran := false
	g.AddFunc(func() { ran = true })
	require.Equal(t, 1, g.Len())

	g.Release()

	assert.Equal(t, 0, g.Len())
	assert.NoError(t, g.Close())
	assert.False(t, ran)
}

func TestGroupAddAfterClose(t *testing.T) {
	var g Group
	require.NoError(t, g.Close())

	ran := false
	g.AddFunc(func() { ran = true })

	assert.True(t, ran, "cleanup added after close runs immediately")
}

func TestGroupPushRemove(t *testing.T) {
	var g Group
	var order []string
	g.AddFunc(func() { order = append(order, "first") })
	remove := g.Push(func() error {
		order = append(order, "removed")
		return nil
	})
	g.AddFunc(func() { order = append(order, "last") })
	require.Equal(t, 3, g.Len())

	remove()
	remove()
	assert.Equal(t, 2, g.Len())

	require.NoError(t, g.Close())
	assert.Equal(t, []string{"last", "first"}, order)

	assert.NotPanics(t, remove, "removing after close is harmless")
}
