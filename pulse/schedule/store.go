package schedule

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/forgepulse/forgepulse/errors"
)

// JobStore handles persistence of publish jobs.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new job store.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, user_id, hub_id, hub_name, project_id, project_name,
	folder_id, folder_name, items, schedule_enabled, cron_expr, timezone,
	publish_views, publish_sheets, include_links, status,
	last_run_at, next_run_at, stats, history,
	notify_on_success, notify_on_failure, notify_recipients,
	created_at, updated_at`

// CreateJob validates and persists a new job. The item list must be
// non-empty and the schedule syntactically valid. Creation is idempotent
// against duplicates: an existing job with the same hub, project, cron
// expression, timezone, and exact ordered item list is returned instead of
// creating a second one.
func (s *JobStore) CreateJob(job *Job) (*Job, error) {
	if len(job.Items) == 0 {
		return nil, errors.New("job item list is empty")
	}
	if err := ValidateSchedule(job.CronExpr, job.Timezone); err != nil {
		return nil, err
	}

	if existing, err := s.findDuplicate(job); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	if job.ID == "" {
		job.ID = NewJobID()
	}
	if job.Status == "" {
		job.Status = JobStatusIdle
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	items, err := json.Marshal(job.Items)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal items")
	}
	recipients, err := json.Marshal(job.NotifyRecipients)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal recipients")
	}

	query := `
		INSERT INTO publish_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		job.ID,
		job.UserID,
		job.HubID,
		nullString(job.HubName),
		job.ProjectID,
		nullString(job.ProjectName),
		nullString(job.FolderID),
		nullString(job.FolderName),
		string(items),
		job.ScheduleEnabled,
		job.CronExpr,
		job.Timezone,
		job.PublishViews,
		job.PublishSheets,
		job.IncludeLinks,
		string(job.Status),
		nullTime(job.LastRunAt),
		nullTime(job.NextRunAt),
		nil, // stats
		nil, // history
		job.NotifyOnSuccess,
		job.NotifyOnFailure,
		string(recipients),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create job")
	}

	return job, nil
}

// findDuplicate looks for an existing job matching hub, project, cron,
// timezone, and the exact ordered item list. Item order is significant.
func (s *JobStore) findDuplicate(job *Job) (*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM publish_jobs
		WHERE hub_id = ? AND project_id = ? AND cron_expr = ? AND timezone = ?
	`
	rows, err := s.db.Query(query, job.HubID, job.ProjectID, job.CronExpr, job.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query for duplicate job")
	}
	defer rows.Close()

	for rows.Next() {
		candidate, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		if SameSchedule(candidate, job) {
			return candidate, nil
		}
	}
	return nil, rows.Err()
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE id = ?`

	row := s.db.QueryRow(query, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "job %s", id)
		}
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// ListJobs returns all jobs, newest first.
func (s *JobStore) ListJobs() ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs ORDER BY created_at DESC`
	return s.queryJobs(query)
}

// ListEnabledJobs returns all jobs with scheduling enabled. Used at process
// start to re-establish cron tasks from persisted state.
func (s *JobStore) ListEnabledJobs() ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE schedule_enabled = 1 ORDER BY created_at ASC`
	return s.queryJobs(query)
}

// ListJobsForUser returns a user's jobs, newest first.
func (s *JobStore) ListJobsForUser(userID string) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE user_id = ? ORDER BY created_at DESC`
	return s.queryJobs(query, userID)
}

func (s *JobStore) queryJobs(query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob applies an explicit partial update to a job's mutable fields.
// The merged job is validated as a whole before commit.
func (s *JobStore) UpdateJob(id string, update JobUpdate) (*Job, error) {
	current, err := s.GetJob(id)
	if err != nil {
		return nil, err
	}

	merged := update.Apply(*current)
	if len(merged.Items) == 0 {
		return nil, errors.New("job item list is empty")
	}
	if err := ValidateSchedule(merged.CronExpr, merged.Timezone); err != nil {
		return nil, err
	}

	items, err := json.Marshal(merged.Items)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal items")
	}
	recipients, err := json.Marshal(merged.NotifyRecipients)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal recipients")
	}

	merged.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE publish_jobs
		SET items = ?,
		    schedule_enabled = ?,
		    cron_expr = ?,
		    timezone = ?,
		    publish_views = ?,
		    publish_sheets = ?,
		    include_links = ?,
		    notify_on_success = ?,
		    notify_on_failure = ?,
		    notify_recipients = ?,
		    updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query,
		string(items),
		merged.ScheduleEnabled,
		merged.CronExpr,
		merged.Timezone,
		merged.PublishViews,
		merged.PublishSheets,
		merged.IncludeLinks,
		merged.NotifyOnSuccess,
		merged.NotifyOnFailure,
		string(recipients),
		merged.UpdatedAt.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update job")
	}
	if err := requireRowsAffected(result, "job", id); err != nil {
		return nil, err
	}

	return &merged, nil
}

// UpdateJobStatus transitions a job's status.
func (s *JobStore) UpdateJobStatus(id string, status JobStatus) error {
	query := `UPDATE publish_jobs SET status = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.Exec(query, string(status), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return errors.Wrap(err, "failed to update job status")
	}
	return requireRowsAffected(result, "job", id)
}

// UpdateJobAfterRun records an execution outcome on the job: final status,
// last/next run timestamps, the latest summary, and a history entry. History
// is newest-first and capped at historyLimit entries (0 means unlimited).
func (s *JobStore) UpdateJobAfterRun(id string, status JobStatus, lastRun time.Time, nextRun *time.Time, summary RunSummary, historyLimit int) error {
	current, err := s.GetJob(id)
	if err != nil {
		return err
	}

	history := append([]RunSummary{summary}, current.History...)
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[:historyLimit]
	}

	stats, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run summary")
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return errors.Wrap(err, "failed to marshal history")
	}

	query := `
		UPDATE publish_jobs
		SET status = ?,
		    last_run_at = ?,
		    next_run_at = ?,
		    stats = ?,
		    history = ?,
		    updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query,
		string(status),
		lastRun.UTC().Format(time.RFC3339),
		nullTime(nextRun),
		string(stats),
		string(historyJSON),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job after run")
	}
	return requireRowsAffected(result, "job", id)
}

// DeleteJob removes a job. The caller is responsible for cancelling its
// scheduled task first; runs are removed by the cascade.
func (s *JobStore) DeleteJob(id string) error {
	result, err := s.db.Exec(`DELETE FROM publish_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}
	return requireRowsAffected(result, "job", id)
}

// scanJob reads one job row. Works for both sql.Row and sql.Rows.
func scanJob(row interface{ Scan(...interface{}) error }) (*Job, error) {
	var job Job
	var hubName, projectName, folderID, folderName sql.NullString
	var items, status string
	var lastRunAt, nextRunAt, stats, history, recipients sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.HubID,
		&hubName,
		&job.ProjectID,
		&projectName,
		&folderID,
		&folderName,
		&items,
		&job.ScheduleEnabled,
		&job.CronExpr,
		&job.Timezone,
		&job.PublishViews,
		&job.PublishSheets,
		&job.IncludeLinks,
		&status,
		&lastRunAt,
		&nextRunAt,
		&stats,
		&history,
		&job.NotifyOnSuccess,
		&job.NotifyOnFailure,
		&recipients,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.HubName = hubName.String
	job.ProjectName = projectName.String
	job.FolderID = folderID.String
	job.FolderName = folderName.String
	job.Status = JobStatus(status)

	if err := json.Unmarshal([]byte(items), &job.Items); err != nil {
		return nil, errors.Wrapf(err, "failed to parse items for job %s", job.ID)
	}
	if stats.Valid && stats.String != "" {
		var summary RunSummary
		if err := json.Unmarshal([]byte(stats.String), &summary); err != nil {
			return nil, errors.Wrapf(err, "failed to parse stats for job %s", job.ID)
		}
		job.Stats = &summary
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &job.History); err != nil {
			return nil, errors.Wrapf(err, "failed to parse history for job %s", job.ID)
		}
	}
	if recipients.Valid && recipients.String != "" {
		if err := json.Unmarshal([]byte(recipients.String), &job.NotifyRecipients); err != nil {
			return nil, errors.Wrapf(err, "failed to parse recipients for job %s", job.ID)
		}
	}

	if job.LastRunAt, err = parseNullTime(lastRunAt, "last_run_at", job.ID); err != nil {
		return nil, err
	}
	if job.NextRunAt, err = parseNullTime(nextRunAt, "next_run_at", job.ID); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}

	return &job, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(v sql.NullString, field, id string) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s for job %s", field, id)
	}
	return &t, nil
}

func requireRowsAffected(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "%s %s", kind, id)
	}
	return nil
}
