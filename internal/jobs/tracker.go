// Package jobs tracks long-running analysis work behind immediately
// returned job ids.
//
// Each analysis domain gets its own bounded worker pool, so a burst of
// mining jobs cannot starve segmentation and vice versa. Job records use
// per-entry locks: two goroutines touching different jobs never contend.
// Terminal states are final; no transition ever leaves one.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/g5/dss-engine/internal/model"
)

// ErrQueueFull is returned when a domain's queue has no room. The caller
// should back off and resubmit rather than wait.
var ErrQueueFull = eris.New("jobs: queue full")

// Work is the unit a job executes. It must honor ctx cancellation and may
// call report with a 0..100 progress figure at its own checkpoints.
type Work func(ctx context.Context, report func(int)) (any, error)

// PoolConfig sizes one domain's worker pool.
type PoolConfig struct {
	Workers    int
	QueueDepth int
}

// entry pairs a job record with its own lock and cancel handle.
type entry struct {
	mu     sync.Mutex
	job    model.Job
	cancel context.CancelFunc
}

// Tracker owns the job table and the per-domain pools.
type Tracker struct {
	baseCtx   context.Context
	stop      context.CancelFunc
	entries   sync.Map // job id -> *entry
	pools     map[model.JobDomain]*pool
	closeOnce sync.Once
}

// NewTracker starts one pool per configured domain. Zero or negative sizes
// fall back to a single worker with a queue of one.
func NewTracker(cfgs map[model.JobDomain]PoolConfig) *Tracker {
	ctx, stop := context.WithCancel(context.Background())
	t := &Tracker{
		baseCtx: ctx,
		stop:    stop,
		pools:   make(map[model.JobDomain]*pool, len(cfgs)),
	}
	for domain, cfg := range cfgs {
		workers, depth := cfg.Workers, cfg.QueueDepth
		if workers < 1 {
			workers = 1
		}
		if depth < 1 {
			depth = 1
		}
		t.pools[domain] = newPool(workers, depth)
	}
	return t
}

// Submit registers a pending job and enqueues it, returning the id
// immediately. ErrQueueFull means nothing was registered.
func (t *Tracker) Submit(domain model.JobDomain, work Work) (string, error) {
	if t.baseCtx.Err() != nil {
		return "", eris.New("jobs: tracker closed")
	}
	p, ok := t.pools[domain]
	if !ok {
		return "", eris.Errorf("jobs: unknown domain %q", domain)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(t.baseCtx)
	e := &entry{
		job: model.Job{
			ID:          id,
			Domain:      domain,
			State:       model.JobPending,
			SubmittedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	t.entries.Store(id, e)

	ok = p.trySubmit(task{id: id, run: func(id string) {
		t.execute(ctx, e, work)
	}})
	if !ok {
		cancel()
		t.entries.Delete(id)
		return "", eris.Wrapf(ErrQueueFull, "jobs: domain %q", domain)
	}

	zap.L().Debug("jobs: submitted", zap.String("id", id), zap.String("domain", string(domain)))
	return id, nil
}

func (t *Tracker) execute(ctx context.Context, e *entry, work Work) {
	e.mu.Lock()
	if e.job.State.Terminal() {
		// cancelled while still queued
		e.mu.Unlock()
		return
	}
	e.job.State = model.JobProcessing
	id := e.job.ID
	e.mu.Unlock()

	report := func(p int) {
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		e.mu.Lock()
		if e.job.State == model.JobProcessing {
			e.job.Progress = p
		}
		e.mu.Unlock()
	}

	result, err := work(ctx, report)

	now := time.Now().UTC()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.State.Terminal() {
		// a cancel won the race; the worker's outcome is discarded
		return
	}
	e.job.CompletedAt = &now
	switch {
	case ctx.Err() != nil:
		e.job.State = model.JobCancelled
	case err != nil:
		e.job.State = model.JobFailed
		e.job.Error = err.Error()
		zap.L().Warn("jobs: failed", zap.String("id", id), zap.Error(err))
	default:
		e.job.State = model.JobCompleted
		e.job.Progress = 100
		e.job.Result = result
	}
}

// Get returns a copy of the job record.
func (t *Tracker) Get(id string) (model.Job, bool) {
	v, ok := t.entries.Load(id)
	if !ok {
		return model.Job{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, true
}

// List returns jobs sorted by submission time, oldest first. A non-empty
// state filters the result.
func (t *Tracker) List(state model.JobState) []model.Job {
	var out []model.Job
	t.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		job := e.job
		e.mu.Unlock()
		if state == "" || job.State == state {
			out = append(out, job)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cancel requests cancellation. It returns false when the job is unknown
// or already terminal; cancelling a cancelled job is not an error but
// reports false.
func (t *Tracker) Cancel(id string) bool {
	v, ok := t.entries.Load(id)
	if !ok {
		return false
	}
	e := v.(*entry)

	e.mu.Lock()
	if e.job.State.Terminal() {
		e.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	e.job.State = model.JobCancelled
	e.job.CompletedAt = &now
	e.mu.Unlock()

	e.cancel()
	zap.L().Debug("jobs: cancelled", zap.String("id", id))
	return true
}

// Remove deletes a terminal job record. Active jobs are kept.
func (t *Tracker) Remove(id string) bool {
	v, ok := t.entries.Load(id)
	if !ok {
		return false
	}
	e := v.(*entry)
	e.mu.Lock()
	terminal := e.job.State.Terminal()
	e.mu.Unlock()
	if !terminal {
		return false
	}
	t.entries.Delete(id)
	return true
}

// ClearTerminal removes every finished record and reports how many.
func (t *Tracker) ClearTerminal() int {
	n := 0
	t.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		terminal := e.job.State.Terminal()
		e.mu.Unlock()
		if terminal {
			t.entries.Delete(k)
			n++
		}
		return true
	})
	return n
}

// Close cancels all running work and waits for the pools to drain.
// The tracker accepts no submissions afterwards.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		t.stop()
		for _, p := range t.pools {
			p.drain()
		}
	})
}
