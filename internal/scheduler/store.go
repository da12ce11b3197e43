package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
)

// Store — хранилище отложенных заданий.
//
// Реализации: repo.ScheduledJobRepo (PostgreSQL), memstore.ScheduledJobs.
type Store interface {
	// Create сохраняет новое задание.
	Create(ctx context.Context, job *domain.ScheduledJob) error

	// Get возвращает задание по ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error)

	// ListDue возвращает ожидающие задания с ts_scheduled <= asOf.
	// Пустой workerName — без фильтра. Порядок не гарантируется.
	ListDue(ctx context.Context, asOf time.Time, workerName string, limit int) ([]domain.ScheduledJob, error)

	// MarkExecuted атомарно проставляет ts_executed, только если он ещё пуст.
	// Возвращает false, если задание уже было забрано.
	MarkExecuted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// ReleaseClaim очищает ts_executed, только если он равен at.
	// Возвращает false, если claim уже не принадлежит вызывающему.
	ReleaseClaim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}
