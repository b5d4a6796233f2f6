package jobs

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ProgressEvent is pushed to websocket subscribers whenever a job
// changes state, plus a one-off cold_start notice while still queued.
type ProgressEvent struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressStreamer fans job progress events out to websocket
// subscribers, one subscriber list per job.
type ProgressStreamer struct {
	mu          sync.RWMutex
	subscribers map[string][]*websocket.Conn
}

func NewProgressStreamer() *ProgressStreamer {
	return &ProgressStreamer{
		subscribers: make(map[string][]*websocket.Conn),
	}
}

// Subscribe adds a connection to a job's event stream.
func (ps *ProgressStreamer) Subscribe(jobID string, conn *websocket.Conn) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.subscribers[jobID] = append(ps.subscribers[jobID], conn)
}

// Unsubscribe removes a connection from a job's event stream.
func (ps *ProgressStreamer) Unsubscribe(jobID string, conn *websocket.Conn) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	subscribers := ps.subscribers[jobID]
	for i, s := range subscribers {
		if s == conn {
			ps.subscribers[jobID] = append(subscribers[:i], subscribers[i+1:]...)
			break
		}
	}
}

// Broadcast sends an event to all subscribers of a job. Write failures
// are ignored; the reader loop in the handler notices dead peers.
func (ps *ProgressStreamer) Broadcast(event ProgressEvent) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, conn := range ps.subscribers[event.JobID] {
		_ = conn.WriteJSON(event)
	}
}

// Close drops all connections for a job once it reaches a terminal
// state.
func (ps *ProgressStreamer) Close(jobID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, conn := range ps.subscribers[jobID] {
		conn.Close()
	}
	delete(ps.subscribers, jobID)
}
