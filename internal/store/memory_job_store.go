package store

import (
	"context"
	"sync"
	"time"

	"github.com/dunamismax/cutout/internal/domain"
)

type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.Job
	usage []domain.UsageLog
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.Job, error) {
	return s.update(id, status, func(*domain.Job) {})
}

func (s *MemoryJobStore) RecordResult(_ context.Context, id string, result domain.JobResult) (domain.Job, error) {
	return s.update(id, domain.JobStatusDone, func(job *domain.Job) {
		job.ResultKey = result.ResultKey
		job.ResultMIMEType = result.ResultMIMEType
		job.OriginalSize = result.OriginalSize
		job.ResultSize = result.ResultSize
		job.Error = ""
	})
}

func (s *MemoryJobStore) RecordFailure(_ context.Context, id, message string) (domain.Job, error) {
	return s.update(id, domain.JobStatusError, func(job *domain.Job) {
		job.Error = message
	})
}

func (s *MemoryJobStore) update(id, status string, apply func(*domain.Job)) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	if err := checkTransition(id, job.Status, status); err != nil {
		return domain.Job{}, err
	}

	job.Status = status
	apply(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryJobStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

// UsageLogs returns a copy of every usage entry written so far.
func (s *MemoryJobStore) UsageLogs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.UsageLog(nil), s.usage...)
}
