package runpod

import (
	"encoding/json"
	"fmt"
)

// JobStatus is the remote endpoint's reported job state.
type JobStatus string

const (
	StatusInQueue    JobStatus = "IN_QUEUE"
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusCancelled  JobStatus = "CANCELLED"
	StatusTimedOut   JobStatus = "TIMED_OUT"
)

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// JobState is the wire shape shared by submissions and status queries.
type JobState struct {
	ID     string          `json:"id"`
	Status JobStatus       `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// SubmissionError reports a transport or HTTP failure on the initial
// submit. Not retried; the caller decides what to do with the job.
type SubmissionError struct {
	Endpoint string
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit to %s: %v", e.Endpoint, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// StatusQueryError reports a transport failure during a status poll.
// Surfaced immediately with no internal retry; callers retry at a
// higher level if they want to.
type StatusQueryError struct {
	JobID string
	Err   error
}

func (e *StatusQueryError) Error() string {
	return fmt.Sprintf("status query for %s: %v", e.JobID, e.Err)
}

func (e *StatusQueryError) Unwrap() error { return e.Err }

// RemoteJobFailed reports a terminal non-success state from the remote
// executor, carried verbatim to the caller.
type RemoteJobFailed struct {
	Status  JobStatus
	Message string
}

func (e *RemoteJobFailed) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote job ended %s", e.Status)
	}
	return fmt.Sprintf("remote job ended %s: %s", e.Status, e.Message)
}

// PollTimeout reports a wall-clock budget exhausted without the job
// reaching a terminal state. Distinct from a remote failure: the job may
// still be running.
type PollTimeout struct {
	JobID   string
	Elapsed string
}

func (e *PollTimeout) Error() string {
	return fmt.Sprintf("gave up polling job %s after %s", e.JobID, e.Elapsed)
}
