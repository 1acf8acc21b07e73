package jobstore

import "time"

// Status represents the lifecycle state of a reassembly job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is a final one.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one recorded reassembly run.
type Job struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	Status      Status     `json:"status"`
	Phase       string     `json:"phase"`
	Percentage  int        `json:"percentage"`
	OutputPath  string     `json:"outputPath,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
