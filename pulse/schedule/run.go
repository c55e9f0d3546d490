package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/forgepulse/forgepulse/aps"
)

// RunStatus is the lifecycle state of one execution attempt.
// Transitions are monotonic: queued -> running -> {success, failed}.
// Terminal states are absorbing.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// ItemStatus is the terminal sub-status of a single item within a run.
type ItemStatus string

const (
	ItemStatusQueued   ItemStatus = "queued" // dry-run simulation
	ItemStatusAccepted ItemStatus = "accepted"
	ItemStatusFailed   ItemStatus = "failed"
)

// ErrorKind tags a failed item result with which stage broke.
type ErrorKind string

const (
	ErrorKindResolution ErrorKind = "RESOLUTION_ERROR"
	ErrorKindPublish    ErrorKind = "PUBLISH_ERROR"
)

// ItemResult is the tagged per-item outcome embedded in a run. Exactly one
// variant applies:
//
//   - dry-run:          Item + Status queued
//   - publish attempt:  Item + Version + Status accepted|failed + HTTPStatus + Region
//   - stage failure:    Item + Status failed + Message + ErrorKind
//
// An item either completes with a terminal sub-status or is absent from the
// results; partial entries are never written.
type ItemResult struct {
	Item       string     `json:"item"`
	Status     ItemStatus `json:"status"`
	Version    string     `json:"version,omitempty"`
	HTTPStatus int        `json:"http,omitempty"`
	Region     aps.Region `json:"region,omitempty"`
	Message    string     `json:"message,omitempty"`
	ErrorKind  ErrorKind  `json:"error,omitempty"`
}

// Run is one execution attempt of a Job. The item list is snapshotted at
// creation; later edits to the job never retroactively change a run.
type Run struct {
	ID        string
	JobID     string
	UserID    string
	HubID     string
	ProjectID string

	Items []string // immutable snapshot of job.Items at run start

	Status    RunStatus
	StartedAt time.Time
	// EndedAt is set if and only if Status is terminal.
	EndedAt *time.Time

	Results []ItemResult

	DurationMs   int64
	ItemCount    int
	SuccessCount int
	FailureCount int

	Message string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRunID generates a run identifier.
func NewRunID() string {
	return "run_" + uuid.NewString()
}

// Summary condenses the run into the statistics entry recorded on its job.
func (r *Run) Summary() RunSummary {
	return RunSummary{
		RunID:        r.ID,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		DurationMs:   r.DurationMs,
		ItemCount:    r.ItemCount,
		SuccessCount: r.SuccessCount,
		FailureCount: r.FailureCount,
		Message:      r.Message,
	}
}
