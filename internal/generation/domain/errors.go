package domain

import (
	"errors"
	"strings"
)

var (
	// ErrSubmission is returned when the submission request errors, times out or
	// gets a non-success status
	ErrSubmission = errors.New("submission failed")

	// ErrProtocol is returned when a provider response carries neither a video
	// URL nor a job identifier
	ErrProtocol = errors.New("unrecognized provider response")

	// ErrJobFailed is returned when the provider reports the job as failed
	ErrJobFailed = errors.New("provider reported job failure")

	// ErrTimeout is returned when no terminal status arrives before the deadline
	ErrTimeout = errors.New("job timed out")

	// ErrDelivery is returned when a video could not be published by any transport
	ErrDelivery = errors.New("delivery failed")
)

// JobError describes a failed job. It matches its Kind and its cause with errors.Is.
type JobError struct {
	Kind   error
	JobID  string
	Detail string
	Err    error
}

func (e *JobError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.JobID != "" {
		b.WriteString(" (job ")
		b.WriteString(e.JobID)
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *JobError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewJobError creates a new job error of the given kind
func NewJobError(kind error, jobID, detail string, err error) error {
	return &JobError{Kind: kind, JobID: jobID, Detail: detail, Err: err}
}

// JobIDOf returns the job identifier carried by err, if any
func JobIDOf(err error) string {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.JobID
	}
	return ""
}
