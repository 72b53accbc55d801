// Package task provides background scheduling of distribution index
// regeneration, decoupling ingestion from the (slower) generation work.
package task

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// RegenerationJob identifies a single distribution whose indexes need
// to be rebuilt.
type RegenerationJob struct {
	ScopeType string
	ScopeID   string
	Codename  string
}

// Scheduler enqueues regeneration work without blocking the caller.
type Scheduler interface {
	ScheduleRegeneration(job RegenerationJob)
}

// NopScheduler discards every job
type NopScheduler struct{}

// ScheduleRegeneration implements Scheduler
func (NopScheduler) ScheduleRegeneration(RegenerationJob) {}

// Runner runs queued regeneration jobs on a pool of workers. Duplicate
// jobs for the same distribution are coalesced while one is still
// pending, since regeneration always rebuilds from the full current
// state.
type Runner struct {
	process func(ctx context.Context, job RegenerationJob) error

	queue chan RegenerationJob

	mu      sync.Mutex
	pending map[RegenerationJob]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner creates a stopped Runner with the given queue capacity
func NewRunner(capacity int, process func(ctx context.Context, job RegenerationJob) error) *Runner {
	if capacity <= 0 {
		capacity = 128
	}
	return &Runner{
		process: process,
		queue:   make(chan RegenerationJob, capacity),
		pending: make(map[RegenerationJob]struct{}),
	}
}

// Start launches workers processing the queue until Stop is called
func (r *Runner) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}

	ctx, r.cancel = context.WithCancel(ctx)

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Stop cancels the workers and waits for in-flight jobs to finish
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// ScheduleRegeneration implements Scheduler. When the queue is full the
// job is dropped; the next successful enqueue rebuilds the same state.
func (r *Runner) ScheduleRegeneration(job RegenerationJob) {
	r.mu.Lock()
	if _, ok := r.pending[job]; ok {
		r.mu.Unlock()
		return
	}
	r.pending[job] = struct{}{}
	r.mu.Unlock()

	select {
	case r.queue <- job:
	default:
		r.mu.Lock()
		delete(r.pending, job)
		r.mu.Unlock()

		log.Warn().
			Str("codename", job.Codename).
			Str("scope", job.ScopeType+":"+job.ScopeID).
			Msg("regeneration queue full, dropping job")
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.mu.Lock()
			delete(r.pending, job)
			r.mu.Unlock()

			if err := r.process(ctx, job); err != nil {
				log.Error().Err(err).
					Str("codename", job.Codename).
					Str("scope", job.ScopeType+":"+job.ScopeID).
					Msg("distribution regeneration failed")
			}
		}
	}
}
