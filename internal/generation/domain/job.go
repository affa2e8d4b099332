package domain

import "time"

// Job is the in-memory record of one asynchronous generation request. It lives
// only for the duration of a Submit call.
type Job struct {
	ID        string
	Prompt    string
	Status    string
	ResultURL string
	StartedAt time.Time
	Polls     int
}

// NewJob creates a pending job for an identifier returned by the provider
func NewJob(id, prompt string, startedAt time.Time) *Job {
	return &Job{
		ID:        id,
		Prompt:    prompt,
		Status:    JobStatusPending,
		StartedAt: startedAt,
	}
}

// Complete records the result location. Only the first location is kept.
func (j *Job) Complete(url string) {
	if j.ResultURL != "" {
		return
	}
	j.ResultURL = url
	j.Status = JobStatusCompleted
}

// Fail marks the job as failed
func (j *Job) Fail() {
	j.Status = JobStatusFailed
}

// Terminal reports whether the job reached Completed or Failed
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Elapsed returns the time since the job was accepted
func (j *Job) Elapsed(now time.Time) time.Duration {
	return now.Sub(j.StartedAt)
}
