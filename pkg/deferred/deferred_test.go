package deferred

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredSettlesOnce(t *testing.T) {
	d := New[int]()
	d.Resolve(1)
	d.Resolve(2)
	d.Reject(errors.New("late"))

	v, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestDeferredWaitHonoursContext(t *testing.T) {
	d := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := d.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, _, ok := d.Peek()
	assert.False(t, ok, "abandoning a wait must not settle the deferred")
}

func TestThenPropagatesRejection(t *testing.T) {
	boom := errors.New("boom")
	out := Then(Rejected[int](boom), func(v int) (string, error) {
		t.Fatal("continuation must not run")
		return "", nil
	})

	_, err := out.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestThenTransformsValue(t *testing.T) {
	out := Then(Resolved(21), func(v int) (int, error) { return v * 2, nil })
	v, err := out.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestMemoSharesPendingResult(t *testing.T) {
	var m Memo[int]
	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func() (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	first := m.Get(fetch)
	second := m.Get(fetch)
	assert.Same(t, first, second)

	close(release)
	v, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoClearOnError(t *testing.T) {
	m := Memo[int]{ClearOnError: true}
	var calls atomic.Int32

	failing := func() (int, error) {
		calls.Add(1)
		return 0, errors.New("nope")
	}

	_, err := m.Get(failing).Wait(context.Background())
	require.Error(t, err)
	assert.False(t, m.Cached())

	_, err = m.Get(failing).Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoKeepsRejectionWithoutClearOnError(t *testing.T) {
	var m Memo[int]
	var calls atomic.Int32
	failing := func() (int, error) {
		calls.Add(1)
		return 0, errors.New("nope")
	}

	_, _ = m.Get(failing).Wait(context.Background())
	_, _ = m.Get(failing).Wait(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	m.Clear()
	_, _ = m.Get(failing).Wait(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}
