package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/repo"
)

// ScheduledJobs — хранилище отложенных заданий в памяти.
type ScheduledJobs struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*domain.ScheduledJob
	order []uuid.UUID
}

// NewScheduledJobs создаёт пустое хранилище.
func NewScheduledJobs() *ScheduledJobs {
	return &ScheduledJobs{jobs: make(map[uuid.UUID]*domain.ScheduledJob)}
}

// Create сохраняет задание.
func (s *ScheduledJobs) Create(_ context.Context, job *domain.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return repo.ErrAlreadyExists
	}
	s.jobs[job.ID] = copyScheduledJob(job)
	s.order = append(s.order, job.ID)
	return nil
}

// Get возвращает копию задания.
func (s *ScheduledJobs) Get(_ context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyScheduledJob(job), nil
}

// ListDue возвращает ожидающие задания в порядке создания.
func (s *ScheduledJobs) ListDue(_ context.Context, asOf time.Time, workerName string, limit int) ([]domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []domain.ScheduledJob
	for _, id := range s.order {
		if limit > 0 && len(due) >= limit {
			break
		}
		job := s.jobs[id]
		if job.TsExecuted != nil || job.TsScheduled.After(asOf) {
			continue
		}
		if workerName != "" && job.WorkerName != workerName {
			continue
		}
		due = append(due, *copyScheduledJob(job))
	}
	return due, nil
}

// MarkExecuted проставляет ts_executed, если он пуст.
func (s *ScheduledJobs) MarkExecuted(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if job.TsExecuted != nil {
		return false, nil
	}
	job.MarkExecuted(at)
	return true, nil
}

// ReleaseClaim очищает ts_executed, если он равен at.
func (s *ScheduledJobs) ReleaseClaim(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if job.TsExecuted == nil || !job.TsExecuted.Equal(at) {
		return false, nil
	}
	job.TsExecuted = nil
	return true, nil
}

// All возвращает копии всех заданий в порядке создания.
func (s *ScheduledJobs) All() []domain.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]domain.ScheduledJob, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, *copyScheduledJob(s.jobs[id]))
	}
	return all
}

func copyScheduledJob(job *domain.ScheduledJob) *domain.ScheduledJob {
	c := *job
	if job.TsExecuted != nil {
		at := *job.TsExecuted
		c.TsExecuted = &at
	}
	if job.Recurrence != nil {
		p := *job.Recurrence
		c.Recurrence = &p
	}
	if job.JobData != nil {
		if data, err := job.JobData.Clone(); err == nil {
			c.JobData = data
		}
	}
	return &c
}
