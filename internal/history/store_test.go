package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgricker/matrixrun/internal/report"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun(id string, started time.Time, status string) report.Run {
	instances := []report.InstanceResult{
		{ID: "aaa111", Name: "test (3.9, 1)", Status: report.InstanceSucceeded, DurationMS: 10},
		{ID: "bbb222", Name: "test (3.9, 2)", Status: status, FailedStep: 3, Reason: "failed at step 3", DurationMS: 20},
	}
	return report.Run{
		ID:          id,
		Event:       report.Event{Kind: "push", Branch: "main", ChangedPaths: []string{"ai/integrations/x.py"}},
		Fingerprint: "f00d",
		StartedAt:   started,
		Instances:   instances,
		Summary:     report.Summarize(report.Summary{TotalWorkflows: 1, TotalJobs: 1, DurationMS: 30}, instances),
		Status:      report.RunFailed,
	}
}

func TestSaveAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	run := sampleRun("3f2b8c1e-0000-4000-8000-000000000001", time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), report.InstanceFailed)
	require.NoError(t, store.Save(ctx, run))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Event, got.Event)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	require.Len(t, got.Instances, 2)
	assert.Equal(t, 3, got.Instances[1].FailedStep)

	byPrefix, err := store.Get(ctx, "3f2b8c1e")
	require.NoError(t, err)
	assert.Equal(t, run.ID, byPrefix.ID)
}

func TestGetNotFoundAndAmbiguous(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	now := time.Now().UTC()
	require.NoError(t, store.Save(ctx, sampleRun("abc-1", now, report.InstanceFailed)))
	require.NoError(t, store.Save(ctx, sampleRun("abc-2", now.Add(time.Second), report.InstanceFailed)))

	_, err = store.Get(ctx, "abc")
	assert.True(t, errors.Is(err, ErrAmbiguous), "got %v", err)

	exact, err := store.Get(ctx, "abc-2")
	require.NoError(t, err)
	assert.Equal(t, "abc-2", exact.ID)

	_, err = store.Get(ctx, "ab_")
	assert.True(t, errors.Is(err, ErrNotFound), "underscore must not act as a wildcard: %v", err)
}

func TestListNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.Save(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute), report.InstanceTimedOut)))
	}

	entries, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "r3", entries[0].ID)
	assert.Equal(t, "r2", entries[1].ID)
	assert.Equal(t, "push", entries[0].EventKind)
	assert.Equal(t, "main", entries[0].Branch)
	assert.Equal(t, 2, entries[0].Instances)
	assert.Equal(t, 1, entries[0].TimedOut)
	assert.Equal(t, 30*time.Millisecond, entries[0].Duration)
}

func TestInstanceStatuses(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, sampleRun("r1", base, report.InstanceFailed)))
	require.NoError(t, store.Save(ctx, sampleRun("r2", base.Add(time.Minute), report.InstanceSucceeded)))

	statuses, err := store.InstanceStatuses(ctx, "bbb222", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{report.InstanceSucceeded, report.InstanceFailed}, statuses)
}

func TestSaveRejectsDuplicateID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	run := sampleRun("dup", time.Now(), report.InstanceFailed)
	require.NoError(t, store.Save(ctx, run))
	assert.Error(t, store.Save(ctx, run))

	entries, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
