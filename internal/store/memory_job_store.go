package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dunamismax/previewflow/internal/domain"
)

type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("insert job: duplicate id %s", job.ID)
	}
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
	return s.mutate(id, func(job *domain.Job) error {
		job.Status = status
		return nil
	})
}

func (s *MemoryJobStore) Transition(_ context.Context, id, from, status string) (domain.Job, error) {
	return s.mutate(id, func(job *domain.Job) error {
		if job.Status != from {
			return fmt.Errorf("%w: %s is %s, not %s", ErrInvalidTransition, id, job.Status, from)
		}
		job.Status = status
		return nil
	})
}

func (s *MemoryJobStore) Finish(_ context.Context, id, status, outputKey, errMsg string) (domain.Job, error) {
	return s.mutate(id, func(job *domain.Job) error {
		job.Status = status
		job.OutputKey = outputKey
		job.Error = errMsg
		return nil
	})
}

func (s *MemoryJobStore) mutate(id string, fn func(*domain.Job) error) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	if err := fn(&job); err != nil {
		return domain.Job{}, err
	}

	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}
