package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/paulgrammer/comfyrelay/internal/clock"
)

const (
	// DefaultRetention is how long finished (or abandoned) records stay
	// readable before the sweeper drops them.
	DefaultRetention = time.Hour
	// DefaultSweepInterval controls how often the sweeper runs. Expiry
	// is best-effort: a record may outlive its retention by up to one
	// interval.
	DefaultSweepInterval = 10 * time.Minute
)

type Store interface {
	Create(job *Job) error
	Update(job *Job) error
	Get(id string) (*Job, bool)
	Sweep(olderThan time.Time) int
}

// InMemoryStore keeps records for the process lifetime only. The sweep
// is the single deletion path; interleaved update/read on the same key
// is last-write-wins, which is fine since only one worker ever writes a
// given record.
//
// Records are value-semantic: the store holds its own copy and hands
// out detached copies, so a worker mutating its instance between
// updates never races a reader on the status path. The Result payload
// is written once before the record is published and read-only after,
// so the shallow copy is enough.
type InMemoryStore struct {
	data sync.Map
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Create(job *Job) error {
	cp := *job
	s.data.Store(cp.ID, &cp)
	JobsTracked.Inc()
	return nil
}

func (s *InMemoryStore) Update(job *Job) error {
	cp := *job
	s.data.Store(cp.ID, &cp)
	return nil
}

func (s *InMemoryStore) Get(id string) (*Job, bool) {
	if v, ok := s.data.Load(id); ok {
		cp := *v.(*Job)
		return &cp, true
	}
	return nil, false
}

// Sweep removes every record started before the cutoff and reports how
// many were dropped.
func (s *InMemoryStore) Sweep(olderThan time.Time) int {
	removed := 0
	s.data.Range(func(key, value any) bool {
		job := value.(*Job)
		if job.StartedAt.Before(olderThan) {
			s.data.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		JobsTracked.Sub(float64(removed))
	}
	return removed
}

// Sweeper periodically expires stale store records.
type Sweeper struct {
	store     Store
	clock     clock.Clock
	retention time.Duration
	interval  time.Duration
}

func NewSweeper(store Store, clk clock.Clock, retention, interval time.Duration) *Sweeper {
	if clk == nil {
		clk = clock.Real()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, clock: clk, retention: retention, interval: interval}
}

// Run sweeps until the context is cancelled. Call it in its own
// goroutine.
func (sw *Sweeper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.clock.After(sw.interval):
			cutoff := sw.clock.Now().Add(-sw.retention)
			if removed := sw.store.Sweep(cutoff); removed > 0 {
				slog.Info("swept expired jobs", "removed", removed)
			}
		}
	}
}
