package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, opts ...Option) *Pool {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	p := New(append([]Option{WithLogger(logger)}, opts...)...)
	p.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestSubmitAndWait(t *testing.T) {
	p := newPool(t)

	id, err := p.Submit("sum", func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job, err := p.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, job.Status)
	assert.Equal(t, 42, job.Result)
	assert.True(t, job.Finished())
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)

	got, ok := p.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusDone, got.Status)
}

func TestFailedAndPanickingJobs(t *testing.T) {
	p := newPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	failID, err := p.Submit("fail", func(context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	panicID, err := p.Submit("panic", func(context.Context) (interface{}, error) {
		panic("oops")
	})
	require.NoError(t, err)
	okID, err := p.Submit("after", func(context.Context) (interface{}, error) {
		return "still running", nil
	})
	require.NoError(t, err)

	job, err := p.Wait(ctx, failID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)

	job, err = p.Wait(ctx, panicID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Error, "oops")

	job, err = p.Wait(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, job.Status)
}

func TestSingleWorkerSerializesJobs(t *testing.T) {
	p := newPool(t)
	var running, maxRunning atomic.Int32
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := p.Submit("serial", func(context.Context) (interface{}, error) {
			n := running.Add(1)
			if n > maxRunning.Load() {
				maxRunning.Store(n)
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, id := range ids {
		_, err := p.Wait(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestQueueFull(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	// 不启动消费者，队列只进不出
	p := New(WithLogger(logger), WithQueueSize(1))

	_, err := p.Submit("a", func(context.Context) (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	_, err = p.Submit("b", func(context.Context) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrQueueFull)

	require.NoError(t, p.Shutdown(context.Background()))
	_, err = p.Submit("c", func(context.Context) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHistoryEviction(t *testing.T) {
	p := newPool(t, WithHistory(2))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := p.Submit("n", func(context.Context) (interface{}, error) { return nil, nil })
		require.NoError(t, err)
		_, err = p.Wait(ctx, id)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, ok := p.Get(ids[0])
	assert.False(t, ok)
	_, ok = p.Get(ids[2])
	assert.True(t, ok)

	_, err := p.Wait(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestShutdownDrainsQueue(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	p := New(WithLogger(logger))
	p.Start()

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		_, err := p.Submit("drain", func(context.Context) (interface{}, error) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, int32(3), ran.Load())
}

func TestShutdownTimeoutCancelsRunningJob(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	p := New(WithLogger(logger))
	p.Start()

	started := make(chan struct{})
	id, err := p.Submit("slow", func(ctx context.Context) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Shutdown(ctx))

	job, ok := p.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, job.Status)
}
