package schedule

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/forgepulse/forgepulse/errors"
)

// InterruptedMessage marks runs that were abandoned by an abnormal process
// termination and reconciled at the next startup.
const InterruptedMessage = "interrupted by process restart"

// RunStore handles persistence of publish runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new run store.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `id, job_id, user_id, hub_id, project_id, items, status,
	started_at, ended_at, results, duration_ms,
	item_count, success_count, failure_count, message,
	created_at, updated_at`

// CreateRun persists a new run. The item snapshot is fixed here and never
// changes afterwards.
func (s *RunStore) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	items, err := json.Marshal(run.Items)
	if err != nil {
		return errors.Wrap(err, "failed to marshal item snapshot")
	}

	query := `
		INSERT INTO publish_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query,
		run.ID,
		run.JobID,
		run.UserID,
		run.HubID,
		run.ProjectID,
		string(items),
		string(run.Status),
		run.StartedAt.UTC().Format(time.RFC3339),
		nullTime(run.EndedAt),
		nil, // results written at completion
		nil, // duration written at completion
		len(run.Items),
		0,
		0,
		nullString(run.Message),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create run")
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM publish_runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
		}
		return nil, errors.Wrap(err, "failed to get run")
	}
	return run, nil
}

// FinishRun writes a run's single terminal mutation: final status, endedAt,
// results, and aggregate stats. Refuses non-terminal statuses and runs that
// already reached a terminal state, preserving status monotonicity.
func (s *RunStore) FinishRun(run *Run) error {
	if !run.Status.Terminal() {
		return errors.Newf("cannot finish run %s with non-terminal status %s", run.ID, run.Status)
	}
	if run.EndedAt == nil {
		return errors.Newf("cannot finish run %s without ended_at", run.ID)
	}

	results, err := json.Marshal(run.Results)
	if err != nil {
		return errors.Wrap(err, "failed to marshal results")
	}

	run.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE publish_runs
		SET status = ?,
		    ended_at = ?,
		    results = ?,
		    duration_ms = ?,
		    item_count = ?,
		    success_count = ?,
		    failure_count = ?,
		    message = ?,
		    updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`
	result, err := s.db.Exec(query,
		string(run.Status),
		run.EndedAt.UTC().Format(time.RFC3339),
		string(results),
		run.DurationMs,
		run.ItemCount,
		run.SuccessCount,
		run.FailureCount,
		nullString(run.Message),
		run.UpdatedAt.Format(time.RFC3339),
		run.ID,
		string(RunStatusQueued),
		string(RunStatusRunning),
	)
	if err != nil {
		return errors.Wrap(err, "failed to finish run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Newf("run %s not found or already terminal", run.ID)
	}
	return nil
}

// ListRunsForJob returns a job's runs, newest first, with pagination.
func (s *RunStore) ListRunsForJob(jobID string, limit, offset int) ([]*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM publish_runs
		WHERE job_id = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	return s.queryRuns(query, jobID, limit, offset)
}

// ListRunning returns all runs still in the running state. At process start
// these are executions interrupted by a prior crash or restart.
func (s *RunStore) ListRunning() ([]*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM publish_runs
		WHERE status = ?
		ORDER BY started_at ASC
	`
	return s.queryRuns(query, string(RunStatusRunning))
}

func (s *RunStore) queryRuns(query string, args ...interface{}) ([]*Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkInterrupted forcibly transitions a running run to failed with the
// process-restart message. This is the sole retroactive mutation path and
// models the at-most-once execution guarantee after abnormal termination.
func (s *RunStore) MarkInterrupted(id string, now time.Time) error {
	query := `
		UPDATE publish_runs
		SET status = ?,
		    ended_at = ?,
		    message = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := s.db.Exec(query,
		string(RunStatusFailed),
		now.UTC().Format(time.RFC3339),
		InterruptedMessage,
		now.UTC().Format(time.RFC3339),
		id,
		string(RunStatusRunning),
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark run interrupted")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		// Already reconciled or finished; recovery is idempotent.
		return nil
	}
	return nil
}

// CleanupOldRuns deletes runs older than the retention period.
// Returns the number of runs deleted.
func (s *RunStore) CleanupOldRuns(retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC().Format(time.RFC3339)

	result, err := s.db.Exec(`DELETE FROM publish_runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old runs")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(deleted), nil
}

// scanRun reads one run row. Works for both sql.Row and sql.Rows.
func scanRun(row interface{ Scan(...interface{}) error }) (*Run, error) {
	var run Run
	var items, status, startedAt, createdAt, updatedAt string
	var endedAt, results, message sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&run.ID,
		&run.JobID,
		&run.UserID,
		&run.HubID,
		&run.ProjectID,
		&items,
		&status,
		&startedAt,
		&endedAt,
		&results,
		&durationMs,
		&run.ItemCount,
		&run.SuccessCount,
		&run.FailureCount,
		&message,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.Message = message.String
	run.DurationMs = durationMs.Int64

	if err := json.Unmarshal([]byte(items), &run.Items); err != nil {
		return nil, errors.Wrapf(err, "failed to parse item snapshot for run %s", run.ID)
	}
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &run.Results); err != nil {
			return nil, errors.Wrapf(err, "failed to parse results for run %s", run.ID)
		}
	}

	if run.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for run %s", run.ID)
	}
	if endedAt.Valid && endedAt.String != "" {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse ended_at for run %s", run.ID)
		}
		run.EndedAt = &t
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for run %s", run.ID)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for run %s", run.ID)
	}

	return &run, nil
}
