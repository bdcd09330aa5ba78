package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, l *Loop) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(context.Background()) }()
	t.Cleanup(l.Close)
	return errCh
}

func TestLoop_DoRunsInOrder(t *testing.T) {
	l := New(8)
	start(t, l)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, l.Submit(func() { order = append(order, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() { order = append(order, 5) }))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
}

func TestLoop_PanicIsReported(t *testing.T) {
	l := New(1)
	start(t, l)

	err := l.Do(context.Background(), func() { panic("subscriber failed") })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTaskPanicked))
	assert.Contains(t, err.Error(), "subscriber failed")

	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_CloseDrainsQueue(t *testing.T) {
	l := New(16)

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Submit(func() { count.Add(1) }))
	}
	l.Close()

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, int32(10), count.Load())

	assert.ErrorIs(t, l.Submit(func() {}), ErrLoopClosed)
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrLoopClosed)

	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestLoop_ContextCancel(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoop_RunTwice(t *testing.T) {
	l := New(1)
	errCh := start(t, l)

	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Error(t, l.Run(context.Background()))

	l.Close()
	assert.NoError(t, <-errCh)
}
