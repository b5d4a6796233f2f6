package jobs

import (
	"time"

	"github.com/paulgrammer/comfyrelay/internal/runpod"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the record will not change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SubmitRequest is what a caller hands the manager to start a job.
type SubmitRequest struct {
	Prompt          string `json:"prompt"`
	SecondaryPrompt string `json:"secondary_prompt,omitempty"`
	// ImageBase64 is an optional input image for edit workflows.
	ImageBase64 string `json:"image_base64,omitempty"`
}

// Job is the gateway's own tracking record, distinct from the remote
// executor's job id. It exists before remote submission starts, so
// callers can poll immediately after submit returns.
type Job struct {
	ID        string         `json:"id"`
	Status    JobStatus      `json:"status"`
	RemoteID  string         `json:"remote_id,omitempty"`
	Result    *runpod.Result `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}
