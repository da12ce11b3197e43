package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Workman/internal/domain"
)

// ScheduledJobRepo — репозиторий для работы с scheduled_jobs.
type ScheduledJobRepo struct {
	pool *pgxpool.Pool
}

// NewScheduledJobRepo создаёт новый ScheduledJobRepo.
func NewScheduledJobRepo(pool *pgxpool.Pool) *ScheduledJobRepo {
	return &ScheduledJobRepo{pool: pool}
}

const scheduledJobColumns = `id, worker_name, job_data, ts_scheduled, ts_executed, recurrence, created_at`

// Create создаёт новое отложенное задание.
func (r *ScheduledJobRepo) Create(ctx context.Context, job *domain.ScheduledJob) error {
	data, err := job.JobData.Encode()
	if err != nil {
		return err
	}

	var recurrence []byte
	if job.Recurrence != nil {
		recurrence, err = json.Marshal(job.Recurrence)
		if err != nil {
			return fmt.Errorf("marshal recurrence: %w", err)
		}
	}

	query := `
		INSERT INTO scheduled_jobs (` + scheduledJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.WorkerName,
		data,
		job.TsScheduled,
		job.TsExecuted,
		recurrence,
		job.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert scheduled job: %w", err)
	}
	return nil
}

// Get возвращает задание по ID.
func (r *ScheduledJobRepo) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE id = $1`
	return scanScheduledJob(r.pool.QueryRow(ctx, query, id))
}

// ListDue возвращает ожидающие задания с ts_scheduled <= asOf.
func (r *ScheduledJobRepo) ListDue(ctx context.Context, asOf time.Time, workerName string, limit int) ([]domain.ScheduledJob, error) {
	query := `
		SELECT ` + scheduledJobColumns + `
		FROM scheduled_jobs
		WHERE ts_executed IS NULL
		  AND ts_scheduled <= $1
		  AND ($2::text IS NULL OR worker_name = $2)
		ORDER BY ts_scheduled ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, asOf, nullString(workerName), limit)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		job, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkExecuted атомарно проставляет ts_executed.
// Условие ts_executed IS NULL гарантирует, что задание забирает один вызывающий.
func (r *ScheduledJobRepo) MarkExecuted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_jobs SET ts_executed = $2
		WHERE id = $1 AND ts_executed IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark executed: %w", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	// Отличаем "уже забрано" от "нет такой записи"
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scheduled_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check scheduled job: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// ReleaseClaim снимает claim, сделанный в момент at.
// Условие ts_executed = at не трогает задание, забранное заново кем-то другим.
func (r *ScheduledJobRepo) ReleaseClaim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_jobs SET ts_executed = NULL
		WHERE id = $1 AND ts_executed = $2
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("release claim: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// scanScheduledJob читает одну строку (pgx.Row или pgx.Rows).
func scanScheduledJob(row pgx.Row) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	var data, recurrence []byte

	err := row.Scan(
		&job.ID,
		&job.WorkerName,
		&data,
		&job.TsScheduled,
		&job.TsExecuted,
		&recurrence,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan scheduled job: %w", err)
	}

	job.JobData, err = domain.DecodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("decode job data: %w", err)
	}
	if recurrence != nil {
		var p domain.RecurrencePattern
		if err := json.Unmarshal(recurrence, &p); err != nil {
			return nil, fmt.Errorf("unmarshal recurrence: %w", err)
		}
		job.Recurrence = &p
	}

	job.TsScheduled = job.TsScheduled.UTC()
	if job.TsExecuted != nil {
		at := job.TsExecuted.UTC()
		job.TsExecuted = &at
	}
	return &job, nil
}
