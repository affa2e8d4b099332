package domain

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Provider status codes observed on the status endpoints.
const (
	ProviderStatusCompleted = 2
	ProviderStatusFailed    = 3
)
