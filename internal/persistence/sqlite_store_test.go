package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "subtrans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := &jobs.TranslationJob{
		ID:        "job-1",
		Source:    jobs.SourceAPI,
		DedupeKey: "/subs/a.zh.srt|5-8",
		Payload: jobs.JobPayload{
			InputPath:  "/subs/a.srt",
			OutputPath: "/subs/a.zh.srt",
			BatchSize:  50,
			Start:      5,
			End:        8,
			PromptName: "film",
		},
		Status:    jobs.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = jobs.StatusRunning
	job.Progress = jobs.Progress{Completed: 1, Total: 3}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, jobs.StatusRunning, got.Status)
	assert.Equal(t, job.Payload, got.Payload)
	assert.Equal(t, jobs.Progress{Completed: 1, Total: 3}, got.Progress)
	assert.WithinDuration(t, now, got.CreatedAt, time.Second)

	require.NoError(t, store.DeleteJob(ctx, job.ID))
	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "subtrans.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.UpsertJob(context.Background(), &jobs.TranslationJob{
		ID:        "job-1",
		Source:    jobs.SourceWatch,
		Payload:   jobs.JobPayload{InputPath: "a.srt", OutputPath: "a.zh.srt"},
		Status:    jobs.StatusSuccess,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	all, err := store.LoadJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a.zh.srt", all[0].Payload.OutputPath)
}

func TestSQLiteStore_EventLog(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendEvent(ctx, JobEvent{JobID: "job-1", Type: "batch_completed", Batch: 1, Completed: 1, Total: 2}))
	require.NoError(t, store.AppendEvent(ctx, JobEvent{JobID: "job-2", Type: "run_started", Total: 4}))
	require.NoError(t, store.AppendEvent(ctx, JobEvent{JobID: "job-1", Type: "batch_failed", Batch: 2, Message: "boom"}))

	events, err := store.ListEvents(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "batch_completed", events[0].Type)
	assert.Equal(t, "boom", events[1].Message)
	assert.False(t, events[1].CreatedAt.IsZero())

	after, err := store.ListEvents(ctx, "job-1", events[0].ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, 2, after[0].Batch)

	require.NoError(t, store.DeleteJobData(ctx, "job-1"))
	events, err = store.ListEvents(ctx, "job-1", 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	others, err := store.ListEvents(ctx, "job-2", 0)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestSQLiteStore_EventLogIsBounded(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	for i := range maxEventsPerJob + 5 {
		require.NoError(t, store.AppendEvent(ctx, JobEvent{JobID: "job-1", Type: "batch_completed", Message: fmt.Sprint(i)}))
	}
	events, err := store.ListEvents(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, events, maxEventsPerJob)
	assert.Equal(t, "5", events[0].Message)
}

func TestSQLiteStore_AppendEventRequiresJob(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	assert.Error(t, store.AppendEvent(context.Background(), JobEvent{Type: "x"}))
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}
