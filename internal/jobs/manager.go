package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulgrammer/comfyrelay/internal/clock"
	"github.com/paulgrammer/comfyrelay/internal/runpod"
	"github.com/paulgrammer/comfyrelay/internal/webhook"
	"github.com/paulgrammer/comfyrelay/internal/workflow"
)

// Executor is the slice of the remote client the manager uses.
type Executor interface {
	RunSync(ctx context.Context, req *workflow.Request) (*runpod.JobState, error)
	Run(ctx context.Context, req *workflow.Request) (*runpod.JobState, error)
	Status(ctx context.Context, remoteID string) (*runpod.JobState, error)
}

// ManagerConfig carries the knobs that differ between deployments.
// Sync and async modes poll at different cadences: a caller holding the
// connection open wants tighter polling and a shorter leash than a
// fire-and-forget job.
type ManagerConfig struct {
	PoolSize     int
	TemplatePath string
	Bindings     workflow.Bindings
	WebhookURL   string

	SyncPollInterval  time.Duration
	SyncPollBudget    time.Duration
	AsyncPollInterval time.Duration
	AsyncPollBudget   time.Duration

	Clock clock.Clock
}

func (c *ManagerConfig) applyDefaults() {
	if c.SyncPollInterval <= 0 {
		c.SyncPollInterval = 2 * time.Second
	}
	if c.SyncPollBudget <= 0 {
		c.SyncPollBudget = 5 * time.Minute
	}
	if c.AsyncPollInterval <= 0 {
		c.AsyncPollInterval = 5 * time.Second
	}
	if c.AsyncPollBudget <= 0 {
		c.AsyncPollBudget = 10 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
}

// Manager owns the local job lifecycle: it mints ids, tracks records in
// the store, and drives the remote submit/poll sequence from a worker
// pool.
type Manager struct {
	cfg      ManagerConfig
	jobsChan chan queuedJob
	wg       sync.WaitGroup
	stopped  atomic.Bool
	store    Store
	executor Executor
	sender   webhook.Sender
	streamer *ProgressStreamer
}

type queuedJob struct {
	id  string
	req SubmitRequest
}

func NewManager(cfg ManagerConfig, store Store, executor Executor, sender webhook.Sender, streamer *ProgressStreamer) (*Manager, error) {
	if cfg.PoolSize <= 0 {
		return nil, errors.New("pool size must be > 0")
	}
	if cfg.TemplatePath == "" {
		return nil, errors.New("template path required")
	}
	cfg.applyDefaults()

	m := &Manager{
		cfg:      cfg,
		jobsChan: make(chan queuedJob, 1024),
		store:    store,
		executor: executor,
		sender:   sender,
		streamer: streamer,
	}
	for i := 0; i < cfg.PoolSize; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for qj := range m.jobsChan {
				m.execute(qj)
			}
		}()
	}
	return m, nil
}

func (m *Manager) Stop() {
	if m.stopped.Swap(true) {
		return
	}
	close(m.jobsChan)
	m.wg.Wait()
}

// Submit mints a local id, records a pending entry, and hands the real
// work to the pool. The caller can poll the id immediately; remote
// submission has not necessarily started yet.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if m.stopped.Load() {
		return "", errors.New("manager stopped")
	}
	now := m.cfg.Clock.Now().UTC()
	id := mintID(now)
	job := &Job{
		ID:        id,
		Status:    JobStatusPending,
		StartedAt: now,
	}
	if err := m.store.Create(job); err != nil {
		return "", err
	}
	JobsSubmittedTotal.Inc()
	slog.Info("job accepted", "job_id", id, "has_image", req.ImageBase64 != "")
	m.emit(ctx, job, webhook.KindPending)
	// Enqueue; may block if queue is full
	m.jobsChan <- queuedJob{id: id, req: req}
	return id, nil
}

// mintID builds a time-ordered id with a random suffix. Uniqueness is
// statistical, not guaranteed.
func mintID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), strings.SplitN(uuid.NewString(), "-", 2)[0])
}

// ExecuteAndWait runs the whole submit/poll sequence inline and returns
// the normalized result. Errors propagate to the caller instead of
// being written to the store.
func (m *Manager) ExecuteAndWait(ctx context.Context, req SubmitRequest) (*runpod.Result, error) {
	wreq, err := m.buildRequest(req)
	if err != nil {
		return nil, err
	}

	state, err := m.executor.RunSync(ctx, wreq)
	if err != nil {
		return nil, err
	}
	switch {
	case state.Status == runpod.StatusCompleted:
		return runpod.Normalize(state), nil
	case state.Status.Terminal():
		return nil, &runpod.RemoteJobFailed{Status: state.Status, Message: state.Error}
	}

	// The endpoint gave the connection back before the job finished;
	// fall through to polling.
	final, err := m.poll(ctx, "", state.ID, m.cfg.SyncPollInterval, m.cfg.SyncPollBudget)
	if err != nil {
		return nil, err
	}
	return runpod.Normalize(final), nil
}

// Get resolves a local or remote job id to a record snapshot. Unknown
// local ids are tried against the remote endpoint directly, so callers
// holding only a remote id still get an answer.
func (m *Manager) Get(ctx context.Context, id string) (Job, bool) {
	if j, ok := m.store.Get(id); ok {
		return *j, true
	}
	state, err := m.executor.Status(ctx, id)
	if err != nil {
		return Job{}, false
	}
	job := Job{
		ID:       id,
		RemoteID: state.ID,
		Status:   statusFromRemote(state.Status),
		Error:    state.Error,
	}
	if state.Status == runpod.StatusCompleted {
		job.Result = runpod.Normalize(state)
	}
	return job, true
}

func statusFromRemote(s runpod.JobStatus) JobStatus {
	switch s {
	case runpod.StatusCompleted:
		return JobStatusCompleted
	case runpod.StatusFailed, runpod.StatusCancelled, runpod.StatusTimedOut:
		return JobStatusFailed
	case runpod.StatusInProgress:
		return JobStatusProcessing
	default:
		return JobStatusPending
	}
}

func (m *Manager) buildRequest(req SubmitRequest) (*workflow.Request, error) {
	tpl, err := workflow.Load(m.cfg.TemplatePath)
	if err != nil {
		return nil, err
	}
	return workflow.Build(tpl, m.cfg.Bindings, req.Prompt, req.SecondaryPrompt, req.ImageBase64, nil), nil
}

func (m *Manager) execute(qj queuedJob) {
	ctx := context.Background()
	job, ok := m.store.Get(qj.id)
	if !ok {
		slog.Warn("job not found", "job_id", qj.id)
		return
	}

	job.Status = JobStatusProcessing
	_ = m.store.Update(job)
	JobsProcessing.Inc()
	m.emit(ctx, job, webhook.KindProcessing)
	defer m.streamer.Close(job.ID)

	wreq, err := m.buildRequest(qj.req)
	if err != nil {
		m.fail(ctx, job, err)
		return
	}

	state, err := m.executor.Run(ctx, wreq)
	if err != nil {
		m.fail(ctx, job, err)
		return
	}
	job.RemoteID = state.ID
	_ = m.store.Update(job)

	final, err := m.poll(ctx, job.ID, state.ID, m.cfg.AsyncPollInterval, m.cfg.AsyncPollBudget)
	if err != nil {
		m.fail(ctx, job, err)
		return
	}

	job.Status = JobStatusCompleted
	job.Result = runpod.Normalize(final)
	_ = m.store.Update(job)
	JobsProcessing.Dec()
	JobsCompletedTotal.Inc()
	slog.Info("job completed",
		"job_id", job.ID,
		"remote_id", job.RemoteID,
		"images", len(job.Result.Images),
	)
	m.emit(ctx, job, webhook.KindCompleted)
}

func (m *Manager) poll(ctx context.Context, jobID, remoteID string, interval, budget time.Duration) (*runpod.JobState, error) {
	poller := runpod.NewPoller(m.executor, interval, budget, m.cfg.Clock)
	poller.ColdStart = func(remoteID string, waited time.Duration) {
		ColdStartsTotal.Inc()
		if jobID != "" {
			m.streamer.Broadcast(ProgressEvent{
				JobID:     jobID,
				Kind:      webhook.KindColdStart,
				Status:    JobStatusProcessing,
				Timestamp: m.cfg.Clock.Now().UTC(),
			})
		}
		m.notify(ctx, webhook.Event{
			Kind:      webhook.KindColdStart,
			JobID:     jobID,
			RemoteID:  remoteID,
			Status:    string(JobStatusProcessing),
			Timestamp: m.cfg.Clock.Now().UTC(),
		})
	}
	return poller.Wait(ctx, remoteID)
}

// fail marks the record failed with a human-readable message. Remote
// failures surface their own message verbatim.
func (m *Manager) fail(ctx context.Context, job *Job, err error) {
	var remoteErr *runpod.RemoteJobFailed
	if errors.As(err, &remoteErr) && remoteErr.Message != "" {
		job.Error = remoteErr.Message
	} else {
		job.Error = err.Error()
	}
	job.Status = JobStatusFailed
	_ = m.store.Update(job)
	JobsProcessing.Dec()
	JobsFailedTotal.Inc()
	slog.Error("job failed", "job_id", job.ID, "remote_id", job.RemoteID, "error", job.Error)
	m.emit(ctx, job, webhook.KindFailed)
}

// emit pushes a state change to both notification channels.
func (m *Manager) emit(ctx context.Context, job *Job, kind string) {
	m.streamer.Broadcast(ProgressEvent{
		JobID:     job.ID,
		Kind:      kind,
		Status:    job.Status,
		Error:     job.Error,
		Timestamp: m.cfg.Clock.Now().UTC(),
	})
	m.notify(ctx, webhook.Event{
		Kind:      kind,
		JobID:     job.ID,
		RemoteID:  job.RemoteID,
		Status:    string(job.Status),
		Error:     job.Error,
		Timestamp: m.cfg.Clock.Now().UTC(),
		Data:      *job,
	})
}

func (m *Manager) notify(ctx context.Context, event webhook.Event) {
	if m.cfg.WebhookURL == "" {
		return
	}
	_ = m.sender.Notify(ctx, m.cfg.WebhookURL, event)
}
