package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulgrammer/comfyrelay/internal/jobs"
	"github.com/paulgrammer/comfyrelay/internal/runpod"
	"github.com/paulgrammer/comfyrelay/internal/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

type router struct {
	manager  *jobs.Manager
	streamer *jobs.ProgressStreamer
}

func NewRouter(manager *jobs.Manager, streamer *jobs.ProgressStreamer) http.Handler {
	r := &router{manager: manager, streamer: streamer}
	m := http.NewServeMux()
	m.HandleFunc("GET /healthz", r.handleHealth)
	m.HandleFunc("POST /api/generate", r.handleGenerate)
	m.HandleFunc("POST /api/edit", r.handleEdit)
	m.HandleFunc("GET /api/status/{id}", r.handleStatus)
	m.HandleFunc("GET /api/jobs/{id}/events", r.handleJobEvents)
	m.Handle("GET /metrics", promhttp.Handler())
	return logging(m)
}

// handleGenerate runs the workflow inline and answers with the
// normalized result once the remote job finishes.
func (r *router) handleGenerate(w http.ResponseWriter, req *http.Request) {
	body, ok := decodeSubmit(w, req)
	if !ok {
		return
	}
	result, err := r.manager.ExecuteAndWait(req.Context(), body)
	if err != nil {
		respondWithError(w, statusForError(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// handleEdit accepts the job and returns immediately; the caller polls
// the status endpoint or subscribes to the event stream.
func (r *router) handleEdit(w http.ResponseWriter, req *http.Request) {
	body, ok := decodeSubmit(w, req)
	if !ok {
		return
	}
	id, err := r.manager.Submit(req.Context(), body)
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "failed to queue job")
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": string(jobs.JobStatusPending),
	})
}

func (r *router) handleStatus(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "job id required")
		return
	}
	job, ok := r.manager.Get(req.Context(), id)
	if !ok {
		respondWithError(w, http.StatusNotFound, "not found")
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleJobEvents upgrades to websocket and streams progress events
// until the job reaches a terminal state or the peer goes away.
func (r *router) handleJobEvents(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "job id required")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		slog.Error("failed to upgrade connection", "error", err)
		return
	}

	r.streamer.Subscribe(id, conn)
	defer r.streamer.Unsubscribe(id, conn)

	// Keep the connection open
	for {
		if _, _, err := conn.NextReader(); err != nil {
			conn.Close()
			break
		}
	}
}

func decodeSubmit(w http.ResponseWriter, req *http.Request) (jobs.SubmitRequest, bool) {
	var body jobs.SubmitRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid json")
		return body, false
	}
	if body.Prompt == "" {
		respondWithError(w, http.StatusBadRequest, "prompt required")
		return body, false
	}
	return body, true
}

// statusForError maps the orchestration error taxonomy onto HTTP codes
// for the blocking path.
func statusForError(err error) int {
	var tplErr *workflow.TemplateLoadError
	var pollTimeout *runpod.PollTimeout
	var remoteFailed *runpod.RemoteJobFailed
	switch {
	case errors.As(err, &tplErr):
		return http.StatusInternalServerError
	case errors.As(err, &pollTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &remoteFailed):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}
