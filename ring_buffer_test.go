package syncevent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferWraparound(t *testing.T) {
	rb := NewRingBuffer[int](3)
	ctx := context.Background()

	next := 0
	for i := 0; i < 200; i++ {
		require.NoError(t, rb.Write(ctx, i))
		if i%2 == 1 {
			v, err := rb.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, next, v, "FIFO order across wraparound")
			next++
		}
		for rb.IsFull() {
			v, ok := rb.TryRead()
			require.True(t, ok)
			assert.Equal(t, next, v)
			next++
		}
		assert.LessOrEqual(t, rb.writeIdx, rb.normalizeAt+1, "indices stay bounded")
		assert.Equal(t, int(rb.writeIdx-rb.readIdx), rb.Len())
	}
}

func TestRingBufferTryOps(t *testing.T) {
	rb := NewRingBuffer[string](2)

	assert.True(t, rb.IsEmpty())
	_, ok := rb.TryRead()
	assert.False(t, ok)

	assert.True(t, rb.TryWrite("a"))
	assert.True(t, rb.TryWrite("b"))
	assert.True(t, rb.IsFull())
	assert.False(t, rb.TryWrite("c"), "full buffer rejects TryWrite")
	assert.Equal(t, 2, rb.Len())
	assert.Equal(t, 2, rb.Cap())

	v, ok := rb.TryRead()
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestRingBufferOverwrite(t *testing.T) {
	rb := NewRingBuffer[int](2)

	_, replaced := rb.Overwrite(1)
	assert.False(t, replaced)
	rb.Overwrite(2)
	evicted, replaced := rb.Overwrite(3)
	assert.True(t, replaced)
	assert.Equal(t, 1, evicted)

	all, err := rb.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, all)
}

func TestRingBufferWriteBlocksWhileFull(t *testing.T) {
	rb := NewRingBuffer[int](1)
	ctx := context.Background()
	require.NoError(t, rb.Write(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- rb.Write(ctx, 2) }()

	select {
	case <-done:
		t.Fatal("Write must block on a full buffer")
	case <-time.After(30 * time.Millisecond):
	}

	v, err := rb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Write did not resume after Read")
	}
	v, err = rb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestRingBufferWriteAllBlocksWhileFull(t *testing.T) {
	rb := NewRingBuffer[int](2)
	ctx := context.Background()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := rb.WriteAll(ctx, 1, 2, 3, 4)
		done <- result{n, err}
	}()

	require.Eventually(t, rb.IsFull, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("WriteAll must block while the buffer is full")
	case <-time.After(30 * time.Millisecond):
	}

	var got []int
	for len(got) < 4 {
		v, err := rb.Read(ctx)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, got)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, 4, r.n)
	case <-time.After(time.Second):
		t.Fatal("WriteAll did not finish")
	}
}

func TestRingBufferWriteAllPartialOnCancel(t *testing.T) {
	rb := NewRingBuffer[int](2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := rb.WriteAll(ctx, 1, 2, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, n, "items written before the buffer filled are counted")

	v, ok := rb.TryRead()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, rb.Len())
	assert.Equal(t, 0, rb.signals.TotalListenerCount())
}

func TestRingBufferReadBlocksWhileEmpty(t *testing.T) {
	rb := NewRingBuffer[int](4)

	got := make(chan []int, 1)
	go func() {
		vs, err := rb.ReadAll(context.Background())
		if err == nil {
			got <- vs
		}
	}()

	require.Eventually(t, func() bool { return rb.signals.ListenerCount(ringWrite) == 1 }, time.Second, time.Millisecond)
	n, err := rb.WriteAll(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case vs := <-got:
		assert.Equal(t, []int{7}, vs)
	case <-time.After(time.Second):
		t.Fatal("ReadAll did not resume after Write")
	}
}

func TestRingBufferContextCancel(t *testing.T) {
	rb := NewRingBuffer[int](1)
	rb.TryWrite(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rb.Write(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	n, err := rb.WriteAll(ctx, 2, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, n)

	_, _ = rb.TryRead()
	_, err = rb.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 0, rb.signals.TotalListenerCount(), "abandoned waits release their listeners")
}

func TestNewRingBufferPanics(t *testing.T) {
	mustPanic(t, "capacity > 0", func() { NewRingBuffer[int](0) })
}
