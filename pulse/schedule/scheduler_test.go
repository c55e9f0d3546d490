package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgepulse/forgepulse/aps"
	"github.com/forgepulse/forgepulse/errors"
	fptest "github.com/forgepulse/forgepulse/internal/testing"
)

func newTestScheduler(t *testing.T, gateway Publisher) (*Scheduler, *JobStore, *RunStore) {
	t.Helper()
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)
	engine := NewEngine(runs, gateway, aps.StaticTokenProvider("tok"), EngineConfig{}, nil)
	s := NewScheduler(jobs, runs, engine, SchedulerConfig{HistoryLimit: 10}, nil)
	t.Cleanup(s.Stop)
	return s, jobs, runs
}

func waitTerminal(t *testing.T, runs *RunStore, runID string) *Run {
	t.Helper()
	var final *Run
	require.Eventually(t, func() bool {
		run, err := runs.GetRun(runID)
		if err != nil {
			return false
		}
		if !run.Status.Terminal() {
			return false
		}
		final = run
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return final
}

func TestRunJobNowLifecycle(t *testing.T) {
	gateway := &stubGateway{region: aps.RegionUS, regionFound: true}
	s, jobs, runs := newTestScheduler(t, gateway)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	run, err := s.RunJobNow(job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, job.Items, run.Items)

	final := waitTerminal(t, runs, run.ID)
	assert.Equal(t, RunStatusSuccess, final.Status)
	require.Len(t, final.Results, 1)
	assert.Equal(t, ItemStatusAccepted, final.Results[0].Status)

	require.Eventually(t, func() bool {
		got, err := jobs.GetJob(job.ID)
		return err == nil && got.Status == JobStatusIdle
	}, 5*time.Second, 10*time.Millisecond)

	got, err := jobs.GetJob(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Stats)
	assert.Equal(t, run.ID, got.Stats.RunID)
	require.Len(t, got.History, 1)
	assert.NotNil(t, got.LastRunAt)
	assert.NotNil(t, got.NextRunAt, "enabled jobs get a next trigger time")
}

func TestRunJobNowRejectsConcurrentExecution(t *testing.T) {
	block := make(chan struct{})
	gateway := &stubGateway{
		region:      aps.RegionUS,
		regionFound: true,
		publishFn: func(_ string, hint aps.Region) (aps.PublishOutcome, error) {
			<-block
			return aps.PublishOutcome{Outcome: aps.OutcomeAccepted, HTTPStatus: 202, Region: hint}, nil
		},
	}
	s, jobs, runs := newTestScheduler(t, gateway)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	run, err := s.RunJobNow(job.ID)
	require.NoError(t, err)
	assert.True(t, s.Executing(job.ID))

	// At most one concurrent execution per job.
	_, err = s.RunJobNow(job.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyRunning))

	list, err := runs.ListRunsForJob(job.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1, "the rejected trigger must not create a run")

	close(block)
	waitTerminal(t, runs, run.ID)

	// Once the first execution completes, the job can run again.
	require.Eventually(t, func() bool {
		return !s.Executing(job.ID)
	}, 5*time.Second, 10*time.Millisecond)

	run2, err := s.RunJobNow(job.ID)
	require.NoError(t, err)
	waitTerminal(t, runs, run2.ID)
}

func TestRunJobSkipsWhenExecuting(t *testing.T) {
	gateway := &stubGateway{region: aps.RegionUS, regionFound: true}
	s, jobs, runs := newTestScheduler(t, gateway)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	// Simulate an in-flight execution holding the slot.
	require.True(t, s.acquire(job.ID))
	defer s.release(job.ID)

	s.RunJob(job.ID)

	list, err := runs.ListRunsForJob(job.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "a skipped tick must not create a run")
}

func TestRunJobFinalizesOnExecutionFailure(t *testing.T) {
	gateway := &stubGateway{region: aps.RegionUS, regionFound: true}
	db := fptest.CreateTestDB(t)
	jobs := NewJobStore(db)
	runs := NewRunStore(db)
	engine := NewEngine(runs, gateway, failingTokens{}, EngineConfig{}, nil)
	s := NewScheduler(jobs, runs, engine, SchedulerConfig{}, nil)
	t.Cleanup(s.Stop)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	s.RunJob(job.ID)

	list, err := runs.ListRunsForJob(job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, RunStatusFailed, list[0].Status)
	assert.NotEmpty(t, list[0].Message)
	require.NotNil(t, list[0].EndedAt)

	got, err := jobs.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusError, got.Status)
	require.NotNil(t, got.Stats, "failed executions are recorded in job stats too")
}

func TestInitRecoversInterruptedRuns(t *testing.T) {
	gateway := &stubGateway{region: aps.RegionUS, regionFound: true}
	s, jobs, runs := newTestScheduler(t, gateway)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)
	require.NoError(t, jobs.UpdateJobStatus(job.ID, JobStatusRunning))

	// A run left behind by a crashed process.
	orphan := &Run{
		JobID:     job.ID,
		UserID:    job.UserID,
		HubID:     job.HubID,
		ProjectID: job.ProjectID,
		Items:     job.Items,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, runs.CreateRun(orphan))

	require.NoError(t, s.Init())

	got, err := runs.GetRun(orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, InterruptedMessage, got.Message)
	require.NotNil(t, got.EndedAt)

	recoveredJob, err := jobs.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusError, recoveredJob.Status)

	// Recovery is idempotent: a fresh process finds nothing left to do.
	engine := NewEngine(runs, gateway, aps.StaticTokenProvider("tok"), EngineConfig{}, nil)
	s2 := NewScheduler(jobs, runs, engine, SchedulerConfig{}, nil)
	t.Cleanup(s2.Stop)
	require.NoError(t, s2.Init())

	again, err := runs.GetRun(orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, got.EndedAt.Unix(), again.EndedAt.Unix())
	assert.Equal(t, InterruptedMessage, again.Message)
}

func TestInitSchedulesEnabledJobs(t *testing.T) {
	gateway := &stubGateway{region: aps.RegionUS, regionFound: true}
	s, jobs, _ := newTestScheduler(t, gateway)

	enabled, err := jobs.CreateJob(testJob("urn:adsk.wipprod:dm.lineage:a"))
	require.NoError(t, err)

	disabled := testJob("urn:adsk.wipprod:dm.lineage:b")
	disabled.ScheduleEnabled = false
	disabledJob, err := jobs.CreateJob(disabled)
	require.NoError(t, err)

	require.NoError(t, s.Init())

	assert.True(t, s.Scheduled(enabled.ID))
	assert.False(t, s.Scheduled(disabledJob.ID))
}

func TestScheduleJobToggle(t *testing.T) {
	gateway := &stubGateway{region: aps.RegionUS, regionFound: true}
	s, jobs, _ := newTestScheduler(t, gateway)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	require.NoError(t, s.ScheduleJob(job))
	assert.True(t, s.Scheduled(job.ID))

	// Re-scheduling replaces the existing task rather than stacking a second.
	require.NoError(t, s.ScheduleJob(job))
	assert.True(t, s.Scheduled(job.ID))

	job.ScheduleEnabled = false
	require.NoError(t, s.ScheduleJob(job))
	assert.False(t, s.Scheduled(job.ID), "disabling cancels the cron task")

	s.UnscheduleJob(job.ID) // idempotent on an unscheduled job
	assert.False(t, s.Scheduled(job.ID))
}

func TestScheduleJobRejectsInvalidExpression(t *testing.T) {
	gateway := &stubGateway{region: aps.RegionUS, regionFound: true}
	s, jobs, _ := newTestScheduler(t, gateway)

	job, err := jobs.CreateJob(testJob())
	require.NoError(t, err)

	job.CronExpr = "not a cron"
	require.Error(t, s.ScheduleJob(job))
	assert.False(t, s.Scheduled(job.ID))
}
