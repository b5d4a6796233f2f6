package runpod

import (
	"context"
	"log/slog"
	"time"

	"github.com/paulgrammer/comfyrelay/internal/clock"
)

// coldStartAfter is how long a job may sit in queue before the gateway
// flags a probable cold start. The provider spins GPU workers up from
// zero, and callers need to tell "provisioning" apart from "stuck".
const coldStartAfter = 15 * time.Second

// StatusFetcher is the slice of Client the poller needs.
type StatusFetcher interface {
	Status(ctx context.Context, remoteID string) (*JobState, error)
}

// ColdStartFunc is called at most once per job when the queue wait
// exceeds coldStartAfter. Purely an observability hook; polling
// continues unchanged.
type ColdStartFunc func(remoteID string, waited time.Duration)

// Poller drives a submitted remote job to a terminal state.
type Poller struct {
	Fetcher   StatusFetcher
	Interval  time.Duration
	Budget    time.Duration
	Clock     clock.Clock
	ColdStart ColdStartFunc
}

// NewPoller wires a poller with the given cadence. A nil clock means
// real time.
func NewPoller(fetcher StatusFetcher, interval, budget time.Duration, clk clock.Clock) *Poller {
	if clk == nil {
		clk = clock.Real()
	}
	return &Poller{Fetcher: fetcher, Interval: interval, Budget: budget, Clock: clk}
}

// Wait polls the remote job until it completes, fails, or the wall-clock
// budget runs out. A transport error on any single poll aborts
// immediately — retrying is the caller's business. After a terminal
// status is observed no further polls are issued.
func (p *Poller) Wait(ctx context.Context, remoteID string) (*JobState, error) {
	started := p.Clock.Now()
	deadline := started.Add(p.Budget)
	coldStartFlagged := false

	for {
		state, err := p.Fetcher.Status(ctx, remoteID)
		if err != nil {
			return nil, err
		}

		switch state.Status {
		case StatusCompleted:
			slog.Info("remote job completed",
				"remote_id", remoteID,
				"waited", p.Clock.Now().Sub(started).String(),
			)
			return state, nil
		case StatusFailed, StatusCancelled, StatusTimedOut:
			slog.Warn("remote job failed",
				"remote_id", remoteID,
				"status", state.Status,
				"error", state.Error,
			)
			return nil, &RemoteJobFailed{Status: state.Status, Message: state.Error}
		}

		waited := p.Clock.Now().Sub(started)
		if state.Status == StatusInQueue && !coldStartFlagged && waited > coldStartAfter {
			coldStartFlagged = true
			slog.Warn("job still queued, endpoint likely cold starting",
				"remote_id", remoteID,
				"waited", waited.String(),
			)
			if p.ColdStart != nil {
				p.ColdStart(remoteID, waited)
			}
		}

		if !p.Clock.Now().Before(deadline) {
			return nil, &PollTimeout{JobID: remoteID, Elapsed: p.Budget.String()}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.Clock.After(p.Interval):
		}
	}
}
