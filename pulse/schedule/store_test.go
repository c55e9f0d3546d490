package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgepulse/forgepulse/errors"
	fptest "github.com/forgepulse/forgepulse/internal/testing"
	"github.com/forgepulse/forgepulse/internal/util"
)

func testJob(items ...string) *Job {
	if len(items) == 0 {
		items = []string{"urn:adsk.wipprod:dm.lineage:model1"}
	}
	return &Job{
		UserID:          "user1",
		HubID:           "hub1",
		HubName:         "Main Hub",
		ProjectID:       "b.proj1",
		ProjectName:     "Tower A",
		Items:           items,
		ScheduleEnabled: true,
		CronExpr:        "0 6 * * *",
		Timezone:        "UTC",
		PublishViews:    true,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	created, err := store.CreateJob(testJob())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, JobStatusIdle, created.Status)

	got, err := store.GetJob(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hub1", got.HubID)
	assert.Equal(t, "Main Hub", got.HubName)
	assert.Equal(t, []string{"urn:adsk.wipprod:dm.lineage:model1"}, got.Items)
	assert.Equal(t, "0 6 * * *", got.CronExpr)
	assert.Equal(t, "UTC", got.Timezone)
	assert.True(t, got.ScheduleEnabled)
	assert.True(t, got.PublishViews)
	assert.Nil(t, got.Stats)
	assert.Empty(t, got.History)
}

func TestCreateJobValidation(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	empty := testJob()
	empty.Items = nil
	_, err := store.CreateJob(empty)
	assert.Error(t, err, "empty item list must be rejected")

	badCron := testJob()
	badCron.CronExpr = "0 6 * * * *"
	_, err = store.CreateJob(badCron)
	assert.Error(t, err, "six-field cron expressions must be rejected")

	badTz := testJob()
	badTz.Timezone = "Mars/Olympus_Mons"
	_, err = store.CreateJob(badTz)
	assert.Error(t, err)
}

func TestCreateJobDuplicateReturnsExisting(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	first, err := store.CreateJob(testJob("urn:adsk.wipprod:dm.lineage:a", "urn:adsk.wipprod:dm.lineage:b"))
	require.NoError(t, err)

	second, err := store.CreateJob(testJob("urn:adsk.wipprod:dm.lineage:a", "urn:adsk.wipprod:dm.lineage:b"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "identical schedule must not create a second job")

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestCreateJobDuplicateDetectionIsOrderSensitive(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	first, err := store.CreateJob(testJob("urn:adsk.wipprod:dm.lineage:a", "urn:adsk.wipprod:dm.lineage:b"))
	require.NoError(t, err)

	// Same items, different order: a distinct job.
	reversed, err := store.CreateJob(testJob("urn:adsk.wipprod:dm.lineage:b", "urn:adsk.wipprod:dm.lineage:a"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, reversed.ID)
}

func TestGetJobNotFound(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	_, err := store.GetJob("job_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListEnabledJobs(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	enabled := testJob("urn:adsk.wipprod:dm.lineage:a")
	_, err := store.CreateJob(enabled)
	require.NoError(t, err)

	disabled := testJob("urn:adsk.wipprod:dm.lineage:b")
	disabled.ScheduleEnabled = false
	_, err = store.CreateJob(disabled)
	require.NoError(t, err)

	jobs, err := store.ListEnabledJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, enabled.ID, jobs[0].ID)
}

func TestUpdateJobPartial(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	created, err := store.CreateJob(testJob())
	require.NoError(t, err)

	updated, err := store.UpdateJob(created.ID, JobUpdate{
		CronExpr:        util.Ptr("30 7 * * 1-5"),
		ScheduleEnabled: util.Ptr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * 1-5", updated.CronExpr)
	assert.False(t, updated.ScheduleEnabled)
	// Untouched fields survive.
	assert.Equal(t, created.Items, updated.Items)
	assert.Equal(t, "UTC", updated.Timezone)

	got, err := store.GetJob(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * 1-5", got.CronExpr)
	assert.False(t, got.ScheduleEnabled)
}

func TestUpdateJobValidatesMergedState(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	created, err := store.CreateJob(testJob())
	require.NoError(t, err)

	_, err = store.UpdateJob(created.ID, JobUpdate{
		CronExpr: util.Ptr("not a cron"),
	})
	require.Error(t, err)

	_, err = store.UpdateJob(created.ID, JobUpdate{
		Items: util.Ptr([]string{}),
	})
	require.Error(t, err)

	// The failed updates must not have leaked through.
	got, err := store.GetJob(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 6 * * *", got.CronExpr)
	assert.NotEmpty(t, got.Items)
}

func TestUpdateJobAfterRunHistoryCap(t *testing.T) {
	db := fptest.CreateTestDB(t)
	store := NewJobStore(db)

	created, err := store.CreateJob(testJob())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		summary := RunSummary{
			RunID:        NewRunID(),
			Status:       RunStatusSuccess,
			StartedAt:    time.Now().UTC(),
			ItemCount:    1,
			SuccessCount: 1,
		}
		err := store.UpdateJobAfterRun(created.ID, JobStatusIdle, time.Now(), nil, summary, 3)
		require.NoError(t, err)
	}

	got, err := store.GetJob(created.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 3, "history must be capped at the limit")
	require.NotNil(t, got.Stats)
	assert.Equal(t, got.History[0].RunID, got.Stats.RunID, "stats mirror the newest history entry")
	assert.NotNil(t, got.LastRunAt)
}

func TestDeleteJobCascadesRuns(t *testing.T) {
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)

	created, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	run := &Run{
		JobID:     created.ID,
		UserID:    created.UserID,
		HubID:     created.HubID,
		ProjectID: created.ProjectID,
		Items:     created.Items,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, runs.CreateRun(run))

	require.NoError(t, jobs.DeleteJob(created.ID))

	_, err = runs.GetRun(run.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err), "runs are removed with their job")
}
