package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/telemetry"
)

// Memory — очередь в памяти процесса.
//
// Задания выдаются в порядке постановки; отложенные пропускаются,
// пока не наступит их время. Задания для незарегистрированных worker
// остаются в очереди. Доставка at-most-once.
type Memory struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    []*domain.Job
	workers map[string]Worker
}

// MemoryConfig — конфигурация очереди в памяти.
type MemoryConfig struct {
	// Now — источник текущего времени. По умолчанию time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// NewMemory создаёт очередь в памяти.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Memory{
		logger:  cfg.Logger,
		now:     cfg.Now,
		workers: make(map[string]Worker),
	}
}

// Backend возвращает имя backend.
func (q *Memory) Backend() string { return "memory" }

// Enqueue ставит задание в очередь.
func (q *Memory) Enqueue(ctx context.Context, workerName string, payload domain.Payload) (string, error) {
	return q.EnqueueDelayed(ctx, workerName, payload, 0)
}

// EnqueueDelayed ставит отложенное задание.
func (q *Memory) EnqueueDelayed(ctx context.Context, workerName string, payload domain.Payload, delay time.Duration) (string, error) {
	if err := validate(workerName, delay); err != nil {
		return "", err
	}

	// Копия через JSON: payload обязан сериализоваться, и вызывающий
	// не должен менять задание после постановки.
	data, err := payload.Clone()
	if err != nil {
		return "", err
	}

	job := domain.NewJob(uuid.NewString(), workerName, data)
	job.EnqueuedAt = q.now().UTC()
	if delay > 0 {
		job.NotBefore = job.EnqueuedAt.Add(delay)
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	telemetry.JobsEnqueued.WithLabelValues(workerName, q.Backend()).Inc()
	return job.ID, nil
}

// RegisterWorker привязывает worker к имени (последняя регистрация побеждает).
func (q *Memory) RegisterWorker(workerName string, w Worker) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workers[workerName] = w
}

// Dispatch выполняет первое готовое задание.
func (q *Memory) Dispatch(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	job, w := q.take()
	if job == nil {
		return false, nil
	}

	return true, run(ctx, q.logger, w, job)
}

// take извлекает первое готовое задание с зарегистрированным worker.
func (q *Memory) take() (*domain.Job, Worker) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i, job := range q.jobs {
		if !job.IsReady(now) {
			continue
		}
		w, ok := q.workers[job.WorkerName]
		if !ok {
			continue
		}
		q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
		return job, w
	}
	return nil, nil
}

// Purge удаляет все задания worker, включая отложенные.
func (q *Memory) Purge(ctx context.Context, workerName string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.jobs[:0]
	purged := 0
	for _, job := range q.jobs {
		if job.WorkerName == workerName {
			purged++
			continue
		}
		kept = append(kept, job)
	}
	// Обнуляем хвост, чтобы не держать ссылки на удалённые задания
	for i := len(kept); i < len(q.jobs); i++ {
		q.jobs[i] = nil
	}
	q.jobs = kept

	if purged > 0 {
		telemetry.JobsPurged.WithLabelValues(workerName).Add(float64(purged))
	}
	return purged, nil
}

// Pending возвращает количество ожидающих заданий worker.
func (q *Memory) Pending(workerName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, job := range q.jobs {
		if job.WorkerName == workerName {
			n++
		}
	}
	return n
}
