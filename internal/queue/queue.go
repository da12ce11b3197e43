package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/telemetry"
)

// Ошибки очереди.
var (
	// ErrEmptyWorkerName — не задано имя worker.
	ErrEmptyWorkerName = errors.New("empty worker name")

	// ErrWorkerNotFound — нет worker с таким именем.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrInvalidDelay — отрицательная задержка.
	ErrInvalidDelay = errors.New("invalid delay")

	// ErrWorkerFailed — worker вернул ошибку или упал с panic.
	ErrWorkerFailed = errors.New("worker failed")
)

// Worker выполняет одно задание.
//
// Реализации обязаны быть идемпотентными: backend может доставить
// задание повторно.
type Worker interface {
	Work(ctx context.Context, job *domain.Job) error
}

// WorkerFunc — адаптер функции к интерфейсу Worker.
type WorkerFunc func(ctx context.Context, job *domain.Job) error

// Work вызывает f(ctx, job).
func (f WorkerFunc) Work(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// Queue — транспорт заданий.
type Queue interface {
	// Enqueue ставит задание в очередь и возвращает handle.
	// Не ждёт выполнения задания.
	Enqueue(ctx context.Context, workerName string, payload domain.Payload) (string, error)

	// EnqueueDelayed ставит задание, которое не выдаётся раньше delay.
	EnqueueDelayed(ctx context.Context, workerName string, payload domain.Payload, delay time.Duration) (string, error)

	// RegisterWorker привязывает worker к имени. Повторная регистрация
	// заменяет предыдущую привязку.
	RegisterWorker(workerName string, w Worker)

	// Dispatch забирает не более одного задания и выполняет его.
	// Возвращает true, если задание было выполнено (успешно или нет),
	// false — если заданий нет. Ошибка worker возвращается как *JobError
	// вместе с true; прочие ошибки — ошибки backend.
	Dispatch(ctx context.Context) (bool, error)

	// Purge удаляет все ожидающие задания worker и возвращает их количество.
	Purge(ctx context.Context, workerName string) (int, error)

	// Backend возвращает имя backend ("memory", "redis", "rabbitmq").
	Backend() string
}

// JobError — ошибка выполнения задания worker.
type JobError struct {
	JobID  string
	Worker string
	Err    error
}

// Error реализует интерфейс error.
func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (%s): %v", e.JobID, e.Worker, e.Err)
}

// Unwrap возвращает исходную ошибку worker.
func (e *JobError) Unwrap() []error {
	return []error{ErrWorkerFailed, e.Err}
}

// IsJobError проверяет, что ошибка Dispatch — ошибка worker, а не backend.
func IsJobError(err error) bool {
	var jobErr *JobError
	return errors.As(err, &jobErr)
}

// validate проверяет аргументы постановки.
func validate(workerName string, delay time.Duration) error {
	if workerName == "" {
		return ErrEmptyWorkerName
	}
	if delay < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDelay, delay)
	}
	return nil
}

// run выполняет задание worker с перехватом panic и метриками.
func run(ctx context.Context, logger *slog.Logger, w Worker, job *domain.Job) (err error) {
	log := telemetry.WithJobID(telemetry.WithWorker(logger, job.WorkerName), job.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		telemetry.JobDuration.WithLabelValues(job.WorkerName).Observe(time.Since(start).Seconds())

		if err != nil {
			telemetry.JobsDispatched.WithLabelValues(job.WorkerName, telemetry.OutcomeFailure).Inc()
			err = &JobError{JobID: job.ID, Worker: job.WorkerName, Err: err}
			return
		}
		telemetry.JobsDispatched.WithLabelValues(job.WorkerName, telemetry.OutcomeSuccess).Inc()
		log.Debug("job completed", "duration", time.Since(start))
	}()

	ctx = telemetry.WithLogger(ctx, log)
	return w.Work(ctx, job)
}
