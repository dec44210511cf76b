package syncevent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitResolves(t *testing.T) {
	hub := New[string, int]()

	f, err := hub.Await(WaitSpec[string, int]{Event: "ready"})
	require.NoError(t, err)
	assert.False(t, f.Settled())
	_, err = f.Result()
	assert.ErrorIs(t, err, ErrPending)
	assert.Equal(t, 1, hub.ListenerCount("ready"))

	hub.Emit("ready", 42)

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, f.Settled())
	assert.Equal(t, 0, hub.TotalListenerCount(), "listener is removed on settlement")
}

func TestAwaitWhere(t *testing.T) {
	hub := New[string, int]()

	f, err := hub.Await(WaitSpec[string, int]{
		Event: "n",
		Where: func(n int) (bool, error) { return n > 10, nil },
	})
	require.NoError(t, err)

	hub.Emit("n", 3)
	assert.False(t, f.Settled(), "non-matching dispatch keeps waiting")

	hub.Emit("n", 11)
	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 11, v)
}

func TestAwaitWhereError(t *testing.T) {
	hub := New[string, int]()
	bad := errors.New("bad payload")

	f, err := hub.Await(WaitSpec[string, int]{
		Event: "n",
		Where: func(int) (bool, error) { return false, bad },
	})
	require.NoError(t, err)

	hub.Emit("n", 1)
	_, err = f.Result()
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 0, hub.TotalListenerCount())
}

func TestAwaitWherePanic(t *testing.T) {
	hub := New[string, int]()

	f, err := hub.Await(WaitSpec[string, int]{
		Event: "n",
		Where: func(int) (bool, error) { panic("where exploded") },
	})
	require.NoError(t, err)

	hub.Emit("n", 1)
	_, err = f.Result()

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "where exploded", pe.Value)
	assert.Equal(t, 0, hub.TotalListenerCount())
}

func TestAwaitMapToError(t *testing.T) {
	hub := New[string, int]()
	failed := errors.New("remote failure")

	f, err := hub.Await(WaitSpec[string, int]{
		Event: "status",
		MapToError: func(code int) error {
			if code != 0 {
				return failed
			}
			return nil
		},
	})
	require.NoError(t, err)

	hub.Emit("status", 500)
	_, err = f.Result()
	assert.ErrorIs(t, err, failed)
}

func TestAwaitTimeout(t *testing.T) {
	clk := clock.NewMock()
	hub := New[string, int](WithClock(clk))

	f, err := hub.Await(WaitSpec[string, int]{Event: "ready", Timeout: time.Second})
	require.NoError(t, err)

	clk.Add(999 * time.Millisecond)
	assert.False(t, f.Settled())

	clk.Add(time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = f.Get(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	require.Eventually(t, func() bool { return hub.TotalListenerCount() == 0 }, time.Second, 5*time.Millisecond)

	hub.Emit("ready", 1)
	_, err = f.Result()
	assert.ErrorIs(t, err, ErrTimeout, "a settled future never changes")
}

func TestAwaitCancel(t *testing.T) {
	hub := New[string, int]()

	f, err := hub.Await(WaitSpec[string, int]{Event: "ready"})
	require.NoError(t, err)

	assert.True(t, f.Cancel())
	assert.False(t, f.Cancel(), "second cancel is a no-op")
	_, err = f.Result()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, 0, hub.TotalListenerCount())
}

func TestAwaitValidation(t *testing.T) {
	hub := New[string, int]()

	_, err := hub.Await(WaitSpec[string, int]{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = hub.Await(WaitSpec[string, int]{Event: "x", Timeout: -time.Second})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = hub.AwaitAll()
	assert.ErrorIs(t, err, ErrValidation)
	_, err = hub.AwaitRace()
	assert.ErrorIs(t, err, ErrValidation)
	_, err = hub.AwaitAny()
	assert.ErrorIs(t, err, ErrValidation)

	_, err = hub.AwaitAll(WaitSpec[string, int]{Event: "a"}, WaitSpec[string, int]{})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, hub.TotalListenerCount(), "members registered before the bad spec are released")
}

func TestWaitUntilContextCancel(t *testing.T) {
	hub := New[string, int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := hub.WaitUntil(ctx, WaitSpec[string, int]{Event: "never"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, hub.TotalListenerCount())
}

func TestWaitEvent(t *testing.T) {
	hub := New[string, int]()

	done := make(chan int, 1)
	go func() {
		v, err := hub.WaitEvent(context.Background(), "ready")
		if err == nil {
			done <- v
		}
	}()

	require.Eventually(t, func() bool { return hub.ListenerCount("ready") == 1 }, time.Second, time.Millisecond)
	hub.Emit("ready", 5)

	select {
	case v := <-done:
		assert.Equal(t, 5, v)
	case <-time.After(time.Second):
		t.Fatal("WaitEvent did not return")
	}
}

func TestAwaitAllKeepsArgumentOrder(t *testing.T) {
	hub := New[string, int]()

	f, err := hub.AwaitAll(
		WaitSpec[string, int]{Event: "a"},
		WaitSpec[string, int]{Event: "b"},
		WaitSpec[string, int]{Event: "c"},
	)
	require.NoError(t, err)

	hub.Emit("c", 3)
	hub.Emit("a", 1)
	assert.False(t, f.Settled())
	hub.Emit("b", 2)

	vals, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, vals)
	assert.Equal(t, 0, hub.TotalListenerCount())
}

func TestAwaitAllFirstFailureCancelsRest(t *testing.T) {
	hub := New[string, int]()
	failed := errors.New("a failed")

	f, err := hub.AwaitAll(
		WaitSpec[string, int]{Event: "a", MapToError: func(int) error { return failed }},
		WaitSpec[string, int]{Event: "b"},
	)
	require.NoError(t, err)

	hub.Emit("a", 1)
	_, err = f.Result()
	assert.ErrorIs(t, err, failed)
	assert.Equal(t, 0, hub.TotalListenerCount(), "pending members are cancelled")
}

func TestWaitAllBlocking(t *testing.T) {
	hub := New[string, int]()

	go func() {
		assert.Eventually(t, func() bool { return hub.TotalListenerCount() == 2 }, time.Second, time.Millisecond)
		hub.Emit("b", 2)
		hub.Emit("a", 1)
	}()

	vals, err := hub.WaitAll(context.Background(),
		WaitSpec[string, int]{Event: "a"},
		WaitSpec[string, int]{Event: "b"},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, vals)
}

func TestAwaitRaceSettlesOnce(t *testing.T) {
	hub := New[string, int]()

	f, err := hub.AwaitRace(
		WaitSpec[string, int]{Event: "a"},
		WaitSpec[string, int]{Event: "b"},
	)
	require.NoError(t, err)

	hub.Emit("b", 2)
	got, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, Fired[string, int]{Event: "b", Value: 2}, got)
	assert.Equal(t, 0, hub.ListenerCount("a"), "losing member is deregistered")

	hub.Emit("a", 1)
	got, err = f.Result()
	require.NoError(t, err)
	assert.Equal(t, "b", got.Event)
}

func TestAwaitRaceFailureWins(t *testing.T) {
	clk := clock.NewMock()
	hub := New[string, int](WithClock(clk))

	f, err := hub.AwaitRace(
		WaitSpec[string, int]{Event: "a", Timeout: 10 * time.Millisecond},
		WaitSpec[string, int]{Event: "b"},
	)
	require.NoError(t, err)

	clk.Add(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := f.Get(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "a", got.Event)
	require.Eventually(t, func() bool { return hub.TotalListenerCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestAwaitRaceCancelReleasesMembers(t *testing.T) {
	hub := New[string, int]()

	f, err := hub.AwaitRace(
		WaitSpec[string, int]{Event: "a"},
		WaitSpec[string, int]{Event: "b"},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.TotalListenerCount())

	f.Cancel()
	assert.Equal(t, 0, hub.TotalListenerCount())
}

func TestAwaitAnyFirstSuccess(t *testing.T) {
	hub := New[string, int]()
	failed := errors.New("a failed")

	f, err := hub.AwaitAny(
		WaitSpec[string, int]{Event: "a", MapToError: func(int) error { return failed }},
		WaitSpec[string, int]{Event: "b"},
	)
	require.NoError(t, err)

	hub.Emit("a", 1)
	assert.False(t, f.Settled(), "one failure is not enough")

	hub.Emit("b", 2)
	got, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, Fired[string, int]{Event: "b", Value: 2}, got)
}

func TestWaitAnyAllFail(t *testing.T) {
	hub := New[string, int]()
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	go func() {
		assert.Eventually(t, func() bool { return hub.TotalListenerCount() == 2 }, time.Second, time.Millisecond)
		hub.Emit("b", 0)
		hub.Emit("a", 0)
	}()

	_, err := hub.WaitAny(context.Background(),
		WaitSpec[string, int]{Event: "a", MapToError: func(int) error { return errA }},
		WaitSpec[string, int]{Event: "b", MapToError: func(int) error { return errB }},
	)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []error{errA, errB}, agg.Errors(), "member errors follow argument order")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "a failed")
}

func TestWaitRaceContextCancel(t *testing.T) {
	hub := New[string, int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := hub.WaitRace(ctx,
		WaitSpec[string, int]{Event: "a"},
		WaitSpec[string, int]{Event: "b"},
	)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, hub.TotalListenerCount())
}
