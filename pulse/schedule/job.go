// Package schedule provides recurring publish job scheduling: cron task
// ownership, the run lifecycle state machine, execution exclusivity, and
// crash recovery.
package schedule

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the user-visible state of a scheduled publish job.
type JobStatus string

const (
	JobStatusIdle    JobStatus = "idle"
	JobStatusRunning JobStatus = "running"
	JobStatusError   JobStatus = "error"
)

// Job is a scheduled publication definition: a set of model items in an ACC
// project plus a cron schedule and output options.
type Job struct {
	ID          string
	UserID      string
	HubID       string
	HubName     string
	ProjectID   string
	ProjectName string
	FolderID    string
	FolderName  string

	// Items is the ordered list of model item URNs to publish. Never empty.
	Items []string

	ScheduleEnabled bool
	CronExpr        string
	Timezone        string // IANA timezone name

	PublishViews  bool
	PublishSheets bool
	IncludeLinks  bool

	Status    JobStatus
	LastRunAt *time.Time
	NextRunAt *time.Time

	// Stats holds the last execution summary; History the append-only list
	// of past summaries, newest first, capped by the store.
	Stats   *RunSummary
	History []RunSummary

	NotifyOnSuccess  bool
	NotifyOnFailure  bool
	NotifyRecipients []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunSummary is the per-execution statistics entry recorded on the job.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Status       RunStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
	ItemCount    int       `json:"item_count"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Message      string    `json:"message,omitempty"`
}

// NewJobID generates a job identifier.
func NewJobID() string {
	return "job_" + uuid.NewString()
}

// JobUpdate is the explicit partial-update for mutable job fields. Only
// non-nil fields are applied, and the resulting job is validated as a whole
// before commit; unknown fields cannot pass through.
type JobUpdate struct {
	Items            *[]string
	ScheduleEnabled  *bool
	CronExpr         *string
	Timezone         *string
	PublishViews     *bool
	PublishSheets    *bool
	IncludeLinks     *bool
	NotifyOnSuccess  *bool
	NotifyOnFailure  *bool
	NotifyRecipients *[]string
}

// Apply merges the update into a copy of the job and returns it.
func (u JobUpdate) Apply(job Job) Job {
	if u.Items != nil {
		job.Items = append([]string(nil), (*u.Items)...)
	}
	if u.ScheduleEnabled != nil {
		job.ScheduleEnabled = *u.ScheduleEnabled
	}
	if u.CronExpr != nil {
		job.CronExpr = *u.CronExpr
	}
	if u.Timezone != nil {
		job.Timezone = *u.Timezone
	}
	if u.PublishViews != nil {
		job.PublishViews = *u.PublishViews
	}
	if u.PublishSheets != nil {
		job.PublishSheets = *u.PublishSheets
	}
	if u.IncludeLinks != nil {
		job.IncludeLinks = *u.IncludeLinks
	}
	if u.NotifyOnSuccess != nil {
		job.NotifyOnSuccess = *u.NotifyOnSuccess
	}
	if u.NotifyOnFailure != nil {
		job.NotifyOnFailure = *u.NotifyOnFailure
	}
	if u.NotifyRecipients != nil {
		job.NotifyRecipients = append([]string(nil), (*u.NotifyRecipients)...)
	}
	return job
}

// SameSchedule reports whether two jobs target the same hub, project, cron
// expression, timezone, and exact ordered item list. Used for duplicate
// detection at creation time. Item order is significant: the same items in a
// different order are treated as distinct jobs.
func SameSchedule(a, b *Job) bool {
	if a.HubID != b.HubID || a.ProjectID != b.ProjectID ||
		a.CronExpr != b.CronExpr || a.Timezone != b.Timezone {
		return false
	}
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			return false
		}
	}
	return true
}
