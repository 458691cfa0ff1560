// Package dispatcher fans queued analyses out to workers and owns job
// submission and cancellation.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/cookie-crawler/internal/jobs"
	"github.com/JakeFAU/cookie-crawler/internal/worker"
)

// ErrJobFinished is returned when canceling a job that already reached a terminal state.
var ErrJobFinished = errors.New("job already finished")

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   jobs.Queue
	store   jobs.Store
	workers []*worker.Worker
	cancels *worker.Cancels
}

// New creates a Dispatcher.
func New(queue jobs.Queue, store jobs.Store, workers []*worker.Worker, cancels *worker.Cancels) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		store:   store,
		workers: workers,
		cancels: cancels,
	}
}

// Workers returns the pool the dispatcher runs.
func (d *Dispatcher) Workers() []*worker.Worker {
	return d.workers
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit persists job as queued and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, job jobs.Job) error {
	job.Status = jobs.StatusQueued
	if err := d.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if err := d.queue.Enqueue(ctx, jobs.Item{JobID: job.ID, Params: job.Parameters}); err != nil {
		_ = d.store.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, jobs.StatusFailed, "enqueue failed", jobs.Counters{})
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Cancel stops a running job or marks a queued one canceled so workers skip it.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) (jobs.Job, error) {
	job, err := d.store.GetJob(ctx, jobID)
	if err != nil {
		return jobs.Job{}, err
	}
	if job.Status.Terminal() {
		return job, ErrJobFinished
	}
	if d.cancels.Cancel(jobID) {
		return d.store.GetJob(ctx, jobID)
	}
	if err := d.store.UpdateJobStatus(ctx, jobID, jobs.StatusCanceled, "canceled by client", job.Counters); err != nil {
		return jobs.Job{}, fmt.Errorf("cancel job: %w", err)
	}
	return d.store.GetJob(ctx, jobID)
}
