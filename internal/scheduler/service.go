package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/queue"
	"github.com/shaiso/Workman/internal/repo"
)

// DefaultPageSize — максимум заданий за один проход GetScheduledToRun.
const DefaultPageSize = 1000

// Service управляет отложенными и повторяющимися заданиями.
//
// Состояния задания: PENDING → DUE → EXECUTED (см. domain.ScheduledJobState).
// Service не создаёт следующее вхождение сам при SetJobAsExecuted:
// это делает тот, кто забирает задание (Dispatcher через ScheduleNext).
type Service struct {
	store       Store
	now         func() time.Time
	knownWorker func(string) bool
	logger      *slog.Logger
	pageSize    int
}

// Config — конфигурация Service.
type Config struct {
	Store  Store
	Logger *slog.Logger

	// Now — источник текущего времени. По умолчанию time.Now.
	Now func() time.Time

	// PageSize — лимит GetScheduledToRun (default: 1000).
	PageSize int

	// KnownWorker сообщает, зарегистрирован ли worker (обычно Registry.Has).
	// nil — имя не проверяется.
	KnownWorker func(name string) bool
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		store:       cfg.Store,
		now:         cfg.Now,
		knownWorker: cfg.KnownWorker,
		logger:      cfg.Logger,
		pageSize:    pageSize,
	}
}

// Now возвращает текущее время планировщика (UTC, с точностью до секунды).
func (s *Service) Now() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// KnowsWorker сообщает, может ли задание для workerName быть выполнено.
func (s *Service) KnowsWorker(workerName string) bool {
	return s.knownWorker == nil || s.knownWorker(workerName)
}

// PageSize возвращает лимит одного прохода.
func (s *Service) PageSize() int {
	return s.pageSize
}

// ScheduleAtTime сохраняет задание, которое выполнится не раньше executeAt.
func (s *Service) ScheduleAtTime(ctx context.Context, workerName string, executeAt time.Time, payload domain.Payload) (uuid.UUID, error) {
	job, err := s.newJob(workerName, payload)
	if err != nil {
		return uuid.Nil, err
	}
	job.TsScheduled = executeAt.UTC().Truncate(time.Second)

	return s.create(ctx, job)
}

// ScheduleAtInterval сохраняет повторяющееся задание с первым запуском сейчас.
func (s *Service) ScheduleAtInterval(ctx context.Context, workerName string, payload domain.Payload, recurType domain.RecurrenceType, interval int) (uuid.UUID, error) {
	now := s.Now()
	pattern := domain.RecurrencePattern{
		Type:      recurType,
		Interval:  interval,
		DateStart: now,
	}
	if recurType == domain.RecurMonth {
		pattern.DayOfMonth = now.Day()
	}

	return s.ScheduleRecurring(ctx, workerName, payload, pattern)
}

// ScheduleRecurring сохраняет задание с произвольным шаблоном повторения.
//
// Пустой DateStart заменяется текущим временем. Первый запуск — DateStart,
// для cron — первое вхождение не раньше DateStart.
func (s *Service) ScheduleRecurring(ctx context.Context, workerName string, payload domain.Payload, pattern domain.RecurrencePattern) (uuid.UUID, error) {
	job, err := s.newJob(workerName, payload)
	if err != nil {
		return uuid.Nil, err
	}

	if pattern.DateStart.IsZero() {
		pattern.DateStart = s.Now()
	}
	pattern.DateStart = pattern.DateStart.UTC().Truncate(time.Second)

	if err := ValidatePattern(&pattern); err != nil {
		return uuid.Nil, err
	}

	first := pattern.DateStart
	if pattern.Type == domain.RecurCron {
		first, err = NextOccurrence(&pattern, pattern.DateStart.Add(-time.Second))
		if err != nil {
			return uuid.Nil, err
		}
	}

	job.TsScheduled = first
	job.Recurrence = &pattern

	return s.create(ctx, job)
}

// GetScheduledToRun возвращает ожидающие задания с ts_scheduled <= asOf.
//
// Нулевой asOf означает "сейчас". workerName фильтрует по worker (пустой — все).
// Возвращается не больше PageSize заданий: вызывающий опрашивает повторно.
func (s *Service) GetScheduledToRun(ctx context.Context, asOf time.Time, workerName string) ([]domain.ScheduledJob, error) {
	if asOf.IsZero() {
		asOf = s.Now()
	}

	jobs, err := s.store.ListDue(ctx, asOf.UTC(), workerName, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled jobs: %w", err)
	}
	return jobs, nil
}

// SetJobAsExecuted забирает задание: атомарно проставляет ts_executed.
//
// Возвращает ErrInvalidOperation для несохранённого задания и
// ErrAlreadyExecuted, если задание уже забрал кто-то другой.
// После успеха задание больше не возвращается GetScheduledToRun.
func (s *Service) SetJobAsExecuted(ctx context.Context, job *domain.ScheduledJob) error {
	if job == nil || !job.IsSaved() {
		return ErrInvalidOperation
	}

	at := s.Now()
	claimed, err := s.store.MarkExecuted(ctx, job.ID, at)
	if err != nil {
		return fmt.Errorf("mark scheduled job %s executed: %w", job.ID, err)
	}
	if !claimed {
		return fmt.Errorf("%w: %s", ErrAlreadyExecuted, job.ID)
	}

	job.MarkExecuted(at)
	return nil
}

// ReleaseClaim возвращает забранное задание в ожидание.
//
// Снимается только claim, сделанный этим job (по его TsExecuted).
// После успеха задание снова возвращается GetScheduledToRun.
func (s *Service) ReleaseClaim(ctx context.Context, job *domain.ScheduledJob) error {
	if job == nil || !job.IsSaved() || job.TsExecuted == nil {
		return ErrInvalidOperation
	}

	released, err := s.store.ReleaseClaim(ctx, job.ID, *job.TsExecuted)
	if err != nil {
		return fmt.Errorf("release scheduled job %s: %w", job.ID, err)
	}
	if !released {
		return fmt.Errorf("%w: %s", ErrAlreadyExecuted, job.ID)
	}

	job.TsExecuted = nil
	return nil
}

// ScheduleNext создаёт следующее вхождение повторяющегося задания.
//
// Возвращает nil без ошибки для однократных заданий и для шаблонов,
// чьё повторение закончилось. ID вхождения выводится из ID job, поэтому
// повторный вызов после снятого claim не создаёт второе вхождение.
func (s *Service) ScheduleNext(ctx context.Context, job *domain.ScheduledJob) (*domain.ScheduledJob, error) {
	if !job.IsRecurring() {
		return nil, nil
	}

	// Следующее вхождение после max(ts_scheduled, now): пропущенные
	// во время простоя вхождения не догоняются.
	after := job.TsScheduled
	if now := s.Now(); now.After(after) {
		after = now
	}

	nextAt, err := NextOccurrence(job.Recurrence, after)
	if err != nil {
		return nil, err
	}
	if job.Recurrence.Ended(nextAt) {
		s.logger.Debug("recurrence ended", "scheduled_job_id", job.ID, "worker", job.WorkerName)
		return nil, nil
	}

	pattern := *job.Recurrence
	next := &domain.ScheduledJob{
		ID:          nextOccurrenceID(job.ID),
		WorkerName:  job.WorkerName,
		JobData:     job.JobData,
		TsScheduled: nextAt,
		Recurrence:  &pattern,
		CreatedAt:   s.Now(),
	}

	err = s.store.Create(ctx, next)
	if errors.Is(err, repo.ErrAlreadyExists) {
		return s.store.Get(ctx, next.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("create next occurrence: %w", err)
	}
	return next, nil
}

// nextOccurrenceID — детерминированный ID следующего вхождения.
func nextOccurrenceID(prev uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(prev, []byte("next"))
}

// Get возвращает задание по ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	return s.store.Get(ctx, id)
}

// MarkExecutedByID забирает задание по ID.
func (s *Service) MarkExecutedByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.TsExecuted != nil {
		return job, fmt.Errorf("%w: %s", ErrAlreadyExecuted, job.ID)
	}
	if err := s.SetJobAsExecuted(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// newJob валидирует аргументы и создаёт несохранённое задание.
func (s *Service) newJob(workerName string, payload domain.Payload) (*domain.ScheduledJob, error) {
	if workerName == "" {
		return nil, ErrEmptyWorkerName
	}
	if !s.KnowsWorker(workerName) {
		return nil, fmt.Errorf("%w: %q", queue.ErrWorkerNotFound, workerName)
	}
	if payload == nil {
		payload = domain.Payload{}
	}
	if _, err := payload.Encode(); err != nil {
		return nil, err
	}

	return &domain.ScheduledJob{
		WorkerName: workerName,
		JobData:    payload,
		CreatedAt:  s.Now(),
	}, nil
}

// create сохраняет задание.
func (s *Service) create(ctx context.Context, job *domain.ScheduledJob) (uuid.UUID, error) {
	job.ID = uuid.New()
	if err := s.store.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("create scheduled job: %w", err)
	}

	s.logger.Debug("scheduled job created",
		"scheduled_job_id", job.ID,
		"worker", job.WorkerName,
		"ts_scheduled", job.TsScheduled,
		"recurring", job.IsRecurring(),
	)
	return job.ID, nil
}

// isClaimConflict проверяет, что ошибка — проигранная гонка за задание.
func isClaimConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExecuted)
}
