package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, *TranslationJob, ProgressFunc) error { return nil }

func waitStatus(t *testing.T, q *Queue, id string, status Status) *TranslationJob {
	t.Helper()
	var got *TranslationJob
	require.Eventually(t, func() bool {
		j, ok := q.Get(id)
		got = j
		return ok && j.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return got
}

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(2, nil)

	jobA, createdA := q.Enqueue(EnqueueRequest{
		Source:    SourceManual,
		DedupeKey: "/out/movie.zh.srt",
	})
	jobB, createdB := q.Enqueue(EnqueueRequest{
		Source:    SourceWatch,
		DedupeKey: "/out/movie.zh.srt",
	})

	require.True(t, createdA)
	require.False(t, createdB)
	require.NotNil(t, jobA)
	require.NotNil(t, jobB)
	assert.Equal(t, jobA.ID, jobB.ID)
	assert.Len(t, q.List(), 1)
}

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *TranslationJob, report ProgressFunc) error {
		report(1, 2)
		report(2, 2)
		return nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: SourceManual, DedupeKey: "k1"})

	got := waitStatus(t, q, job.ID, StatusSuccess)
	assert.Equal(t, Progress{Completed: 2, Total: 2}, got.Progress)
}

func TestQueue_Enqueue_AllowsRetryAfterFailure(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts int
	q.Start(func(context.Context, *TranslationJob, ProgressFunc) error {
		attempts++
		if attempts == 1 {
			return assert.AnError
		}
		return nil
	})
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{Source: SourceManual, DedupeKey: "retry-key"})
	require.True(t, created)

	failed := waitStatus(t, q, first.ID, StatusFailed)
	assert.Equal(t, assert.AnError.Error(), failed.Error)

	second, created := q.Enqueue(EnqueueRequest{Source: SourceManual, DedupeKey: "retry-key"})
	require.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)

	waitStatus(t, q, second.ID, StatusSuccess)
}

func TestQueue_FailedExecutorIsNotReportedAsCancelled(t *testing.T) {
	q := NewQueue(2, nil)
	q.Start(func(context.Context, *TranslationJob, ProgressFunc) error {
		return errors.New("llm unavailable")
	})
	defer q.Stop()

	var ids []string
	for _, key := range []string{"a", "b", "c"} {
		job, created := q.Enqueue(EnqueueRequest{Source: SourceWatch, DedupeKey: key})
		require.True(t, created)
		ids = append(ids, job.ID)
	}

	for _, id := range ids {
		got := waitStatus(t, q, id, StatusFailed)
		assert.Equal(t, "llm unavailable", got.Error)
	}
	for _, job := range q.List() {
		assert.NotEqual(t, StatusCancelled, job.Status)
	}
}

func TestQueue_CancelPendingJob(t *testing.T) {
	q := NewQueue(1, nil)

	job, _ := q.Enqueue(EnqueueRequest{Source: SourceAPI, DedupeKey: "k"})
	got, err := q.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	_, err = q.Cancel(job.ID)
	assert.ErrorIs(t, err, ErrJobFinished)
	_, err = q.Cancel("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, created := q.Enqueue(EnqueueRequest{Source: SourceAPI, DedupeKey: "k"})
	assert.True(t, created)
}

func TestQueue_CancelRunningJob(t *testing.T) {
	q := NewQueue(1, nil)
	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *TranslationJob, _ ProgressFunc) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: SourceAPI, DedupeKey: "k"})
	<-started

	_, err := q.Cancel(job.ID)
	require.NoError(t, err)
	got := waitStatus(t, q, job.ID, StatusCancelled)
	assert.Contains(t, got.Error, "context canceled")
}

func TestQueue_StopLeavesRunningJobPending(t *testing.T) {
	q := NewQueue(1, nil)
	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *TranslationJob, _ ProgressFunc) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	job, _ := q.Enqueue(EnqueueRequest{Source: SourceAPI, DedupeKey: "k"})
	<-started
	q.Stop()

	got, ok := q.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
}

func TestQueue_ListNewestFirst(t *testing.T) {
	q := NewQueue(1, nil)
	a, _ := q.Enqueue(EnqueueRequest{DedupeKey: "a"})
	time.Sleep(2 * time.Millisecond)
	b, _ := q.Enqueue(EnqueueRequest{DedupeKey: "b"})

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestPayloadDedupeKey(t *testing.T) {
	assert.Equal(t, "/o.srt", JobPayload{OutputPath: "/o.srt"}.DefaultDedupeKey())
	assert.Equal(t, "/o.srt|5-8", JobPayload{OutputPath: "/o.srt", Start: 5, End: 8}.DefaultDedupeKey())
}
