// Package errors provides error handling for forgepulse.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, error wrapping, and structured details, plus the sentinel errors
// used across the publish pipeline.
//
// Usage:
//
//	if err := publish(); err != nil {
//	    return errors.Wrap(err, "failed to publish version")
//	}
//
//	if errors.Is(err, errors.ErrResolution) {
//	    // record a per-item resolution failure
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllDetails = crdb.GetAllDetails
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel errors for the publish pipeline.
// Wrap these with errors.Wrap() to add context while preserving the kind,
// and check with errors.Is().
var (
	// ErrResolution indicates an item could not be mapped to a file version:
	// it exists in no supported region, or both resolution strategies failed
	// in its region.
	ErrResolution = New("resolution failed")

	// ErrPublish indicates the publish command was rejected or every region
	// was exhausted without acceptance.
	ErrPublish = New("publish failed")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = New("not found")

	// ErrAlreadyRunning indicates a job trigger was skipped because a prior
	// execution of the same job has not completed.
	ErrAlreadyRunning = New("job already running")

	// ErrNoToken indicates no valid access credential could be obtained for
	// the job's owner. This is a setup failure: it aborts the whole run.
	ErrNoToken = New("no valid access token")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsResolutionError reports whether err is a per-item resolution failure.
func IsResolutionError(err error) bool {
	return err != nil && Is(err, ErrResolution)
}

// IsPublishError reports whether err is a per-item publish failure.
func IsPublishError(err error) bool {
	return err != nil && Is(err, ErrPublish)
}
