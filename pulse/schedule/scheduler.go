package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/forgepulse/forgepulse/errors"
	"github.com/forgepulse/forgepulse/internal/util"
)

// SchedulerConfig controls scheduler behavior.
type SchedulerConfig struct {
	// HistoryLimit caps the per-job history list. 0 means unlimited.
	HistoryLimit int
	// Heartbeat is the interval for the periodic status log line.
	// 0 disables it.
	Heartbeat time.Duration
}

// Scheduler owns the mapping from jobs to their recurring cron tasks,
// guarantees at-most-one-concurrent-execution per job, and reconciles runs
// abandoned by a prior crash at process start.
//
// The entry map and executing set are the only shared mutable state; both
// are guarded by mu so the check-and-set on the executing set is atomic
// under real OS-thread parallelism.
type Scheduler struct {
	jobs   *JobStore
	runs   *RunStore
	engine *Engine
	cron   *cron.Cron
	cfg    SchedulerConfig
	log    *zap.SugaredLogger

	mu        sync.Mutex
	entries   map[string]cron.EntryID
	executing map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. Call Init to recover abandoned runs and
// re-establish cron tasks from persisted state, then the scheduler is live.
func NewScheduler(jobs *JobStore, runs *RunStore, engine *Engine, cfg SchedulerConfig, log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   jobs,
		runs:   runs,
		engine: engine,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cron.DiscardLogger),
		),
		cfg:       cfg,
		log:       log,
		entries:   make(map[string]cron.EntryID),
		executing: make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Init performs crash recovery and re-establishes all cron tasks, then
// starts the cron runner. Run once at process start.
//
// Any run still in the running state was interrupted by a prior crash or
// restart; each is forcibly transitioned to failed with a distinguishing
// message. Re-running Init is a no-op for recovery: no run remains running
// after the first pass.
func (s *Scheduler) Init() error {
	interrupted, err := s.runs.ListRunning()
	if err != nil {
		return errors.Wrap(err, "failed to list running runs for recovery")
	}

	now := time.Now().UTC()
	for _, run := range interrupted {
		if err := s.runs.MarkInterrupted(run.ID, now); err != nil {
			return errors.Wrapf(err, "failed to recover run %s", run.ID)
		}
		// The owning job's status is stale too: it still claims running.
		if err := s.jobs.UpdateJobStatus(run.JobID, JobStatusError); err != nil && !errors.IsNotFoundError(err) {
			s.log.Warnw("Failed to reset job status during recovery",
				"job_id", run.JobID,
				"error", err)
		}
		s.log.Warnw("Recovered interrupted run",
			"run_id", run.ID,
			"job_id", run.JobID,
			"started_at", run.StartedAt)
	}

	enabled, err := s.jobs.ListEnabledJobs()
	if err != nil {
		return errors.Wrap(err, "failed to list enabled jobs")
	}
	for _, job := range enabled {
		if err := s.ScheduleJob(job); err != nil {
			// A job with a schedule that no longer validates must not block
			// the rest from being re-established.
			s.log.Errorw("Failed to re-establish schedule",
				"job_id", job.ID,
				"cron", job.CronExpr,
				"timezone", job.Timezone,
				"error", err)
		}
	}

	s.cron.Start()

	if s.cfg.Heartbeat > 0 {
		s.wg.Add(1)
		go s.heartbeatLoop()
	}

	s.log.Infow("Scheduler initialized",
		"recovered_runs", len(interrupted),
		"scheduled_jobs", len(enabled))

	return nil
}

// Stop halts the cron runner and the heartbeat. In-flight executions are
// not drained; runs left running by an abrupt stop are reconciled by the
// next Init.
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
	s.wg.Wait()
	s.log.Infow("Scheduler stopped")
}

// ScheduleJob cancels any existing task for the job, then registers a new
// cron task if scheduling is enabled. With scheduling disabled it is a pure
// cancellation.
func (s *Scheduler) ScheduleJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[job.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, job.ID)
	}

	if !job.ScheduleEnabled {
		return nil
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(cronSpec(job.CronExpr, job.Timezone), func() {
		s.RunJob(jobID)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to schedule job %s", job.ID)
	}
	s.entries[job.ID] = entryID

	s.log.Infow("Job scheduled",
		"job_id", job.ID,
		"cron", job.CronExpr,
		"timezone", job.Timezone)

	return nil
}

// UnscheduleJob cancels and removes the job's cron task if present.
// Idempotent.
func (s *Scheduler) UnscheduleJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[jobID]
	if !ok {
		return
	}
	s.cron.Remove(entryID)
	delete(s.entries, jobID)

	s.log.Infow("Job unscheduled", "job_id", jobID)
}

// acquire atomically marks a job as executing. Returns false if a prior
// execution for the same job has not completed.
func (s *Scheduler) acquire(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.executing[jobID]; busy {
		return false
	}
	s.executing[jobID] = struct{}{}
	return true
}

// release removes a job from the executing set.
func (s *Scheduler) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.executing, jobID)
}

// Executing reports whether the job is currently executing.
func (s *Scheduler) Executing(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.executing[jobID]
	return busy
}

// Scheduled reports whether the job currently owns a live cron task.
func (s *Scheduler) Scheduled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[jobID]
	return ok
}

// RunJob is the cron trigger body. If the job is already executing the tick
// is skipped: at-most-one-concurrent-execution per job. All failures are
// finalized internally; nothing propagates to the cron runner.
func (s *Scheduler) RunJob(jobID string) {
	if !s.acquire(jobID) {
		s.log.Infow("Skipping tick, job already executing", "job_id", jobID)
		return
	}
	defer s.release(jobID)

	job, run, err := s.beginExecution(jobID)
	if err != nil {
		s.log.Errorw("Failed to start scheduled execution",
			"job_id", jobID,
			"error", err)
		return
	}

	s.completeRun(job, run)
}

// RunJobNow is the manual trigger entry point. If the job is already
// executing it returns errors.ErrAlreadyRunning without starting a
// duplicate. Otherwise the run record is created synchronously, so the
// caller immediately has a run id, and execution continues in the
// background through the same completion path as the cron trigger.
//
// Setup failures in the window between marking the job executing and
// creating the run record propagate to the caller; the executing-set entry
// is released on every error path.
func (s *Scheduler) RunJobNow(jobID string) (*Run, error) {
	if !s.acquire(jobID) {
		return nil, errors.Wrapf(errors.ErrAlreadyRunning, "job %s", jobID)
	}

	job, run, err := s.beginExecution(jobID)
	if err != nil {
		s.release(jobID)
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(jobID)
		s.completeRun(job, run)
	}()

	return run, nil
}

// beginExecution loads the job, flips it to running, and creates the run
// record. Caller must hold the executing-set entry.
func (s *Scheduler) beginExecution(jobID string) (*Job, *Run, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.jobs.UpdateJobStatus(jobID, JobStatusRunning); err != nil {
		return nil, nil, err
	}

	run, err := s.engine.StartRun(job)
	if err != nil {
		// Roll the status back so a failed setup doesn't leave the job
		// claiming to run forever.
		if stErr := s.jobs.UpdateJobStatus(jobID, JobStatusError); stErr != nil {
			s.log.Errorw("Failed to mark job errored after setup failure",
				"job_id", jobID,
				"error", stErr)
		}
		return nil, nil, err
	}

	return job, run, nil
}

// completeRun executes the run and finalizes both the run and the job
// consistently, regardless of outcome.
func (s *Scheduler) completeRun(job *Job, run *Run) {
	res, execErr := s.engine.ExecuteRun(s.ctx, run)
	if execErr != nil {
		// Setup/fatal failure: the run is finalized failed with the captured
		// message and the job is marked errored.
		if err := s.engine.FinishRun(run, RunStatusFailed, nil, execErr.Error()); err != nil {
			s.log.Errorw("Failed to finalize failed run",
				"run_id", run.ID,
				"error", err)
		}
		s.recordOutcome(job, run, JobStatusError)
		s.log.Errorw("Job execution failed",
			"job_id", job.ID,
			"run_id", run.ID,
			"error", execErr)
		return
	}

	if err := s.engine.FinishRun(run, RunStatusSuccess, res, ""); err != nil {
		s.log.Errorw("Failed to finalize run",
			"run_id", run.ID,
			"error", err)
		s.recordOutcome(job, run, JobStatusError)
		return
	}
	s.recordOutcome(job, run, JobStatusIdle)
}

// recordOutcome writes the execution summary back onto the job: status,
// lastRun, nextRun, stats, and a history entry. Every failure path ends up
// in either the run's message or the job's history; nothing is silently
// dropped.
func (s *Scheduler) recordOutcome(job *Job, run *Run, status JobStatus) {
	var nextRun *time.Time
	if job.ScheduleEnabled {
		if next, err := NextRun(job.CronExpr, job.Timezone, time.Now()); err == nil {
			nextRun = util.Ptr(next)
		}
	}

	if err := s.jobs.UpdateJobAfterRun(job.ID, status, run.StartedAt, nextRun, run.Summary(), s.cfg.HistoryLimit); err != nil {
		s.log.Errorw("Failed to record run outcome on job",
			"job_id", job.ID,
			"run_id", run.ID,
			"error", err)
	}
}

// heartbeatLoop periodically logs scheduler liveness: the next trigger,
// how many jobs are executing, and process memory pressure.
func (s *Scheduler) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.logHeartbeat()
		}
	}
}

func (s *Scheduler) logHeartbeat() {
	s.mu.Lock()
	scheduled := len(s.entries)
	executing := len(s.executing)
	s.mu.Unlock()

	fields := []interface{}{
		"scheduled_jobs", scheduled,
		"executing", executing,
	}

	if entries := s.cron.Entries(); len(entries) > 0 {
		next := entries[0].Next
		for _, e := range entries[1:] {
			if !e.Next.IsZero() && (next.IsZero() || e.Next.Before(next)) {
				next = e.Next
			}
		}
		if !next.IsZero() {
			fields = append(fields, "next_trigger_in", time.Until(next).Round(time.Second))
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		fields = append(fields,
			"mem_used_gb", float64(vm.Used)/(1<<30),
			"mem_percent", vm.UsedPercent)
	}

	s.log.Infow("Scheduler heartbeat", fields...)
}
