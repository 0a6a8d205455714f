package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(v any) Func {
	return func(ctx context.Context) (any, error) { return v, nil }
}

func TestRunnerSuccessAndFailure(t *testing.T) {
	r := NewRunner(0)
	ctx := context.Background()

	h := r.Submit("fetch-sports-data", time.Second, ok(map[string]int{"saved": 3}))
	require.NoError(t, h.Wait(ctx))
	assert.Equal(t, StatusSucceeded, h.Status())
	res, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"saved": 3}, res)

	boom := errors.New("boom")
	h = r.Submit("cleanup-old-data", time.Second, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, h.Wait(ctx), boom)
	assert.Equal(t, StatusFailed, h.Status())
	info := h.Info()
	assert.Equal(t, "boom", info.Error)
	assert.NotNil(t, info.FinishedAt)

	got, found := r.Get(h.ID)
	require.True(t, found)
	assert.Same(t, h, got)
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner(0)
	h := r.Submit("generate-weekly-newsletter", 20*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond) // ignores cancellation for a while
		return nil, ctx.Err()
	})
	err := h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StatusTimedOut, h.Status())
}

func TestRunnerRecoversPanics(t *testing.T) {
	r := NewRunner(0)
	h := r.Submit("health-check", time.Second, func(context.Context) (any, error) { panic("nil map") })
	err := h.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")
	assert.Equal(t, StatusFailed, h.Status())
}

func TestRunnerKeepsRecentHandles(t *testing.T) {
	r := NewRunner(2)
	var ids []string
	for i := 0; i < 3; i++ {
		h := r.Submit("job", 0, ok(i))
		require.NoError(t, h.Wait(context.Background()))
		ids = append(ids, h.ID)
	}
	h := r.Submit("job", 0, ok(3))
	require.NoError(t, h.Wait(context.Background()))

	_, found := r.Get(ids[0])
	assert.False(t, found)
	recent := r.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, h.ID, recent[0].ID)
}

func TestRunnerShutdownCancelsJobs(t *testing.T) {
	r := NewRunner(0)
	started := make(chan struct{})
	h := r.Submit("fetch-trending-news", 0, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, StatusFailed, h.Status())
	_, err := h.Result()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunnerShutdownWaitsForTimedOutBody(t *testing.T) {
	r := NewRunner(0)
	var returned atomic.Bool
	h := r.Submit("send-weekly-newsletter", 10*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond) // still finishing sends after the deadline
		returned.Store(true)
		return nil, ctx.Err()
	})
	require.ErrorIs(t, h.Wait(context.Background()), ErrTimeout)
	assert.False(t, returned.Load(), "handle is reported before the body returns")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	assert.True(t, returned.Load())
}

func TestSchedulerRegistration(t *testing.T) {
	s := NewScheduler(NewRunner(0))
	require.NoError(t, s.Add(Job{Name: "a", Schedule: "@every 6h", Timeout: time.Minute, Fn: ok(1)}))
	require.NoError(t, s.Add(Job{Name: "b", Schedule: "0 6 * * 1", Fn: ok(2)}))

	assert.Error(t, s.Add(Job{Name: "a", Schedule: "@every 1h", Fn: ok(1)}), "duplicate name")
	assert.Error(t, s.Add(Job{Name: "c", Schedule: "every tuesday", Fn: ok(1)}), "bad schedule")
	assert.Error(t, s.Add(Job{Name: "d", Schedule: "@daily"}), "missing fn")

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)

	next := s.Next()
	assert.Equal(t, time.Monday, next["b"].Weekday())
	assert.Equal(t, 6, next["b"].Hour())
}

func TestSchedulerRun(t *testing.T) {
	s := NewScheduler(NewRunner(0))
	var calls atomic.Int32
	count := func(context.Context) (any, error) { return calls.Add(1), nil }
	require.NoError(t, s.Add(Job{Name: "a", Schedule: "@hourly", Fn: count}))
	require.NoError(t, s.Add(Job{Name: "b", Schedule: "@daily", Fn: count}))

	h, err := s.Run("a")
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	_, err = s.Run("nope")
	assert.Error(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSchedulerStartStops(t *testing.T) {
	s := NewScheduler(NewRunner(0))
	require.NoError(t, s.Add(Job{Name: "a", Schedule: "@every 1h", Fn: ok(nil)}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
