// Package memory keeps jobs, results, and blobs in process memory for the
// single-node API server and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
)

// JobStore implements jobs.Store in memory.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]jobs.Job
	results map[string]analyzer.Result
	now     func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]jobs.Job),
		results: make(map[string]analyzer.Result),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", jobs.ErrJobExists, job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus moves a job to status. Terminal jobs are not reopened.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status jobs.Status,
	errText string,
	counters jobs.Counters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now()
	if status == jobs.StatusRunning && job.Started == nil {
		job.Started = &now
	}
	if status.Terminal() {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// SaveResult stores the analysis result and report location for a job.
func (s *JobStore) SaveResult(_ context.Context, jobID string, result analyzer.Result, reportURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	job.ReportURI = reportURI
	s.jobs[jobID] = job
	s.results[jobID] = result
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	return job, nil
}

// GetResult returns the stored result for a finished job.
func (s *JobStore) GetResult(_ context.Context, jobID string) (analyzer.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[jobID]
	if !ok {
		return analyzer.Result{}, fmt.Errorf("%w: no result for %s", jobs.ErrJobNotFound, jobID)
	}
	return result, nil
}
