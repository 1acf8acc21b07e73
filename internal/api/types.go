package api

import (
	"bookforge/internal/jobstore"
	"bookforge/internal/session"
)

// DaemonStatus is the /api/status payload.
type DaemonStatus struct {
	Running      bool     `json:"running"`
	PID          int      `json:"pid"`
	ActiveJobs   []string `json:"activeJobs"`
	SessionRoot  string   `json:"sessionRoot"`
	OutputDir    string   `json:"outputDir"`
	LockFilePath string   `json:"lockFilePath,omitempty"`
}

// SessionListResponse wraps /api/sessions.
type SessionListResponse struct {
	Sessions []*session.Session `json:"sessions"`
}

// SessionResponse wraps /api/sessions/{id}.
type SessionResponse struct {
	Session *session.Session `json:"session"`
}

// MetadataRequest is the /api/sessions/{id}/metadata body. CoverBase64
// carries inline image bytes; CoverSourcePath names a file to copy instead.
type MetadataRequest struct {
	Metadata        session.ExtendedMetadata `json:"metadata"`
	CoverBase64     string                   `json:"coverBase64,omitempty"`
	CoverSourcePath string                   `json:"coverSourcePath,omitempty"`
	CoverExt        string                   `json:"coverExt,omitempty"`
}

// ReassembleRequest is the /api/reassemble body.
type ReassembleRequest struct {
	SessionID string                   `json:"sessionId"`
	OutputDir string                   `json:"outputDir,omitempty"`
	Metadata  session.ExtendedMetadata `json:"metadata"`
}

// ReassembleResponse acknowledges a launched job.
type ReassembleResponse struct {
	JobID string `json:"jobId"`
}

// JobListResponse wraps /api/jobs.
type JobListResponse struct {
	Jobs []*jobstore.Job `json:"jobs"`
}

// JobResponse wraps /api/jobs/{id}.
type JobResponse struct {
	Job *jobstore.Job `json:"job"`
}

// EventsResponse wraps /api/jobs/{id}/events. Next is the cursor to pass as
// ?after= on the following poll.
type EventsResponse struct {
	Events []StoredEvent `json:"events"`
	Next   uint64        `json:"next"`
}
