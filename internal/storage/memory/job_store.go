// Package memory provides in-memory stores for development and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sitegraph/sitemapper/internal/engine"
)

// JobStore is an in-memory engine.JobStore. Jobs in a terminal state reject
// further status transitions.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]engine.CrawlJob
	results map[string]engine.AnalysisResult
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]engine.CrawlJob),
		results: make(map[string]engine.AnalysisResult),
	}
}

// CreateJob stores a new job record.
func (s *JobStore) CreateJob(_ context.Context, job engine.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus transitions a job's status. Running stamps Started once;
// terminal states stamp Finished.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status engine.JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return engine.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return errors.New("job already finished")
	}
	job.Status = status
	job.ErrorText = errText
	now := time.Now().UTC()
	if status == engine.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// SetProgress updates the completion percentage.
func (s *JobStore) SetProgress(_ context.Context, jobID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return engine.ErrJobNotFound
	}
	job.Progress = progress
	s.jobs[jobID] = job
	return nil
}

// FinishJob marks the job completed with its final page count and title.
func (s *JobStore) FinishJob(_ context.Context, jobID string, pageCount int, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return engine.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return errors.New("job already finished")
	}
	job.Status = engine.JobStatusCompleted
	job.Progress = 100
	job.PageCount = pageCount
	job.Title = title
	job.Finished = pointerTime(time.Now().UTC())
	s.jobs[jobID] = job
	return nil
}

// SaveResult stores the full analysis output for a job.
func (s *JobStore) SaveResult(_ context.Context, jobID string, result engine.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return engine.ErrJobNotFound
	}
	s.results[jobID] = result
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (engine.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return engine.CrawlJob{}, engine.ErrJobNotFound
	}
	return job, nil
}

// GetResult fetches the stored analysis output for a job.
func (s *JobStore) GetResult(_ context.Context, jobID string) (engine.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[jobID]
	if !ok {
		return engine.AnalysisResult{}, engine.ErrJobNotFound
	}
	return result, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
