package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fptest "github.com/forgepulse/forgepulse/internal/testing"
	"github.com/forgepulse/forgepulse/internal/util"
)

// createTestRun persists a job and one running run for it.
func createTestRun(t *testing.T, jobs *JobStore, runs *RunStore, items ...string) (*Job, *Run) {
	t.Helper()

	job, err := jobs.CreateJob(testJob(items...))
	require.NoError(t, err)

	run := &Run{
		JobID:     job.ID,
		UserID:    job.UserID,
		HubID:     job.HubID,
		ProjectID: job.ProjectID,
		Items:     job.Items,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, runs.CreateRun(run))
	return job, run
}

func TestCreateAndGetRun(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	job, run := createTestRun(t, jobs, runs)

	got, err := runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.JobID)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Equal(t, job.Items, got.Items)
	assert.Equal(t, len(job.Items), got.ItemCount)
	assert.Nil(t, got.EndedAt)
	assert.Empty(t, got.Results)
}

func TestFinishRun(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	_, run := createTestRun(t, jobs, runs)

	run.Status = RunStatusSuccess
	run.EndedAt = util.Ptr(time.Now().UTC())
	run.Results = []ItemResult{
		{Item: run.Items[0], Status: ItemStatusAccepted, Version: "urn:adsk.wipprod:fs.file:vf.x?version=3", HTTPStatus: 202, Region: "US"},
	}
	run.DurationMs = 1234
	run.SuccessCount = 1
	require.NoError(t, runs.FinishRun(run))

	got, err := runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, int64(1234), got.DurationMs)
	require.Len(t, got.Results, 1)
	assert.Equal(t, ItemStatusAccepted, got.Results[0].Status)
	assert.Equal(t, 202, got.Results[0].HTTPStatus)
}

func TestFinishRunRejectsNonTerminalStatus(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	_, run := createTestRun(t, jobs, runs)

	run.Status = RunStatusRunning
	run.EndedAt = util.Ptr(time.Now().UTC())
	assert.Error(t, runs.FinishRun(run))

	run.Status = RunStatusSuccess
	run.EndedAt = nil
	assert.Error(t, runs.FinishRun(run))
}

func TestFinishRunIsMonotonic(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	_, run := createTestRun(t, jobs, runs)

	run.Status = RunStatusFailed
	run.EndedAt = util.Ptr(time.Now().UTC())
	run.Message = "first terminal write"
	require.NoError(t, runs.FinishRun(run))

	// A second terminal write must not overwrite the first.
	run.Status = RunStatusSuccess
	run.Message = "late success"
	assert.Error(t, runs.FinishRun(run))

	got, err := runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "first terminal write", got.Message)
}

func TestListRunsForJobPagination(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		run := &Run{
			JobID:     job.ID,
			UserID:    job.UserID,
			HubID:     job.HubID,
			ProjectID: job.ProjectID,
			Items:     job.Items,
			Status:    RunStatusRunning,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, runs.CreateRun(run))
	}

	page, err := runs.ListRunsForJob(job.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].StartedAt.After(page[1].StartedAt), "newest first")

	rest, err := runs.ListRunsForJob(job.ID, 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestMarkInterrupted(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	_, run := createTestRun(t, jobs, runs)

	now := time.Now().UTC()
	require.NoError(t, runs.MarkInterrupted(run.ID, now))

	got, err := runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, InterruptedMessage, got.Message)
	require.NotNil(t, got.EndedAt)

	// Idempotent: a second pass is a no-op, not an error.
	require.NoError(t, runs.MarkInterrupted(run.ID, now.Add(time.Minute)))
	again, err := runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, got.EndedAt.Unix(), again.EndedAt.Unix())
}

func TestListRunning(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	_, running := createTestRun(t, jobs, runs, "urn:adsk.wipprod:dm.lineage:a")
	_, finished := createTestRun(t, jobs, runs, "urn:adsk.wipprod:dm.lineage:b")

	finished.Status = RunStatusSuccess
	finished.EndedAt = util.Ptr(time.Now().UTC())
	require.NoError(t, runs.FinishRun(finished))

	list, err := runs.ListRunning()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, running.ID, list[0].ID)
}

func TestCleanupOldRuns(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	old := &Run{
		JobID:     job.ID,
		UserID:    job.UserID,
		HubID:     job.HubID,
		ProjectID: job.ProjectID,
		Items:     job.Items,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC().AddDate(0, 0, -120),
	}
	require.NoError(t, runs.CreateRun(old))

	recent := &Run{
		JobID:     job.ID,
		UserID:    job.UserID,
		HubID:     job.HubID,
		ProjectID: job.ProjectID,
		Items:     job.Items,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, runs.CreateRun(recent))

	deleted, err := runs.CleanupOldRuns(90)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = runs.GetRun(old.ID)
	assert.Error(t, err)
	_, err = runs.GetRun(recent.ID)
	assert.NoError(t, err)
}
