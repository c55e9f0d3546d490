package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/forgepulse/forgepulse/aps"
	"github.com/forgepulse/forgepulse/errors"
	"github.com/forgepulse/forgepulse/internal/util"
)

// Publisher is the gateway surface the engine consumes. *aps.Client
// implements it; engine tests substitute a stub.
type Publisher interface {
	DetectRegion(ctx context.Context, token, projectID string) (aps.Region, bool)
	ResolveToVersion(ctx context.Context, token, projectID, item string, hint aps.Region) (aps.Resolution, error)
	Publish(ctx context.Context, token, projectID, versionURN string, hint aps.Region) (aps.PublishOutcome, error)
}

// EngineConfig controls execution behavior.
type EngineConfig struct {
	// DryRun disables real publish commands; each item is simulated with a
	// fixed delay and recorded as queued.
	DryRun bool
	// DryRunDelay is the simulated per-item delay in dry-run mode.
	DryRunDelay time.Duration
}

// Engine runs one job's item list to completion and produces a run outcome.
// Per-item failures are recovered locally and recorded; only setup failures
// (no valid credential) escape ExecuteRun.
type Engine struct {
	runs    *RunStore
	gateway Publisher
	tokens  aps.TokenProvider
	cfg     EngineConfig
	log     *zap.SugaredLogger
}

// NewEngine creates an execution engine.
func NewEngine(runs *RunStore, gateway Publisher, tokens aps.TokenProvider, cfg EngineConfig, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		runs:    runs,
		gateway: gateway,
		tokens:  tokens,
		cfg:     cfg,
		log:     log,
	}
}

// ExecResult is what ExecuteRun accumulates: per-item results in input
// order and the elapsed wall-clock duration.
type ExecResult struct {
	Results  []ItemResult
	Duration time.Duration
}

// StartRun creates and persists a run for the job: item list snapshotted,
// status running, startedAt now.
func (e *Engine) StartRun(job *Job) (*Run, error) {
	run := &Run{
		ID:        NewRunID(),
		JobID:     job.ID,
		UserID:    job.UserID,
		HubID:     job.HubID,
		ProjectID: job.ProjectID,
		Items:     append([]string(nil), job.Items...),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
		ItemCount: len(job.Items),
	}
	if err := e.runs.CreateRun(run); err != nil {
		return nil, err
	}

	e.log.Infow("Run started",
		"run_id", run.ID,
		"job_id", job.ID,
		"items", len(run.Items))

	return run, nil
}

// ExecuteRun processes the run's item snapshot sequentially, in input order.
// A single item's failure never aborts the run: resolution and publish
// errors are recorded on that item and the loop continues. The only failures
// that escape are setup failures, notably the inability to obtain a valid
// access credential for the run's owner.
func (e *Engine) ExecuteRun(ctx context.Context, run *Run) (*ExecResult, error) {
	start := time.Now()

	token, err := e.tokens.EnsureValidToken(ctx, run.UserID)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNoToken, "user %s: %v", run.UserID, err)
	}

	// One up-front probe; the discovered region is only a hint for the
	// per-item calls, never ground truth.
	hint, found := e.gateway.DetectRegion(ctx, token, run.ProjectID)
	if found {
		e.log.Debugw("Detected project region", "project_id", run.ProjectID, "region", hint)
	}

	results := make([]ItemResult, 0, len(run.Items))
	for _, item := range run.Items {
		results = append(results, e.processItem(ctx, token, run.ProjectID, item, hint))
	}

	return &ExecResult{
		Results:  results,
		Duration: time.Since(start),
	}, nil
}

// processItem handles one item end to end and always returns a terminal
// per-item result; errors are converted into failed entries, never
// propagated.
func (e *Engine) processItem(ctx context.Context, token, projectID, item string, hint aps.Region) ItemResult {
	if e.cfg.DryRun {
		e.simulateDelay(ctx)
		return ItemResult{Item: item, Status: ItemStatusQueued}
	}

	resolution, err := e.gateway.ResolveToVersion(ctx, token, projectID, item, hint)
	if err != nil {
		e.log.Warnw("Item resolution failed",
			"item", item,
			"project_id", projectID,
			"error", err)
		return ItemResult{
			Item:      item,
			Status:    ItemStatusFailed,
			Message:   err.Error(),
			ErrorKind: ErrorKindResolution,
		}
	}

	publishHint := hint
	if resolution.Resolved {
		// The resolver pinned the item's home region; start there.
		publishHint = resolution.Region
	}

	outcome, err := e.gateway.Publish(ctx, token, projectID, resolution.VersionURN, publishHint)
	if err != nil {
		e.log.Warnw("Item publish failed",
			"item", item,
			"version", resolution.VersionURN,
			"error", err)
		return ItemResult{
			Item:      item,
			Status:    ItemStatusFailed,
			Message:   err.Error(),
			ErrorKind: ErrorKindPublish,
		}
	}

	status := ItemStatusAccepted
	if outcome.Outcome != aps.OutcomeAccepted {
		status = ItemStatusFailed
	}
	return ItemResult{
		Item:       item,
		Status:     status,
		Version:    resolution.VersionURN,
		HTTPStatus: outcome.HTTPStatus,
		Region:     outcome.Region,
	}
}

// simulateDelay sleeps for the configured dry-run delay, cut short on
// context cancellation.
func (e *Engine) simulateDelay(ctx context.Context) {
	if e.cfg.DryRunDelay <= 0 {
		return
	}
	timer := time.NewTimer(e.cfg.DryRunDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// FinishRun records the run's terminal state: status, endedAt, results, and
// computed aggregate stats (success = any non-failed sub-status). res may be
// nil when execution never produced results (setup failure).
func (e *Engine) FinishRun(run *Run, status RunStatus, res *ExecResult, message string) error {
	run.Status = status
	run.EndedAt = util.Ptr(time.Now().UTC())
	run.Message = message

	if res != nil {
		run.Results = res.Results
		run.DurationMs = res.Duration.Milliseconds()
	}

	run.ItemCount = len(run.Items)
	run.SuccessCount = 0
	run.FailureCount = 0
	for _, r := range run.Results {
		if r.Status == ItemStatusFailed {
			run.FailureCount++
		} else {
			run.SuccessCount++
		}
	}

	if err := e.runs.FinishRun(run); err != nil {
		return err
	}

	e.log.Infow("Run finished",
		"run_id", run.ID,
		"job_id", run.JobID,
		"status", run.Status,
		"duration_ms", run.DurationMs,
		"items", run.ItemCount,
		"succeeded", run.SuccessCount,
		"failed", run.FailureCount)

	return nil
}
