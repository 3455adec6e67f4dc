package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "j"}))
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 5 }, time.Second, 5*time.Millisecond)
}

func TestQueueRetriesUntilLimit(t *testing.T) {
	var attempts int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "j"}), ErrQueueStopped)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{ID: "j"}), ErrQueueStopped)
}
