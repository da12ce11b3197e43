package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/queue"
	"github.com/shaiso/Workman/internal/telemetry"
)

// Service — фасад над очередью заданий.
//
// Остальной код приложения не знает, какой backend очереди используется:
// он ставит задания по имени worker и, в процессе воркера, вызывает
// ProcessQueue в цикле.
type Service struct {
	queue    queue.Queue
	registry *Registry
	logger   *slog.Logger

	// Экземпляры worker создаются лениво и кешируются по имени.
	mu         sync.Mutex
	instances  map[string]queue.Worker
	registered uint64
	synced     bool
}

// Config — конфигурация Service.
type Config struct {
	Queue    queue.Queue
	Registry *Registry

	// Logger (опционально; если nil — slog.Default())
	Logger *slog.Logger
}

// NewService создаёт новый Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Service{
		queue:     cfg.Queue,
		registry:  registry,
		logger:    logger,
		instances: make(map[string]queue.Worker),
	}
}

// Registry возвращает реестр worker.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Backend возвращает имя backend очереди.
func (s *Service) Backend() string {
	return s.queue.Backend()
}

// Names возвращает имена зарегистрированных worker.
func (s *Service) Names() []string {
	return s.registry.Names()
}

// EnqueueBackground ставит задание в очередь и возвращает handle.
func (s *Service) EnqueueBackground(ctx context.Context, workerName string, payload domain.Payload) (string, error) {
	if err := s.checkWorker(workerName); err != nil {
		return "", err
	}

	handle, err := s.queue.Enqueue(ctx, workerName, payload)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", workerName, err)
	}

	s.logger.Debug("job enqueued", "worker", workerName, "job_id", handle)
	return handle, nil
}

// EnqueueDelayed ставит задание, которое выполнится не раньше чем через delay.
func (s *Service) EnqueueDelayed(ctx context.Context, workerName string, payload domain.Payload, delay time.Duration) (string, error) {
	if err := s.checkWorker(workerName); err != nil {
		return "", err
	}

	handle, err := s.queue.EnqueueDelayed(ctx, workerName, payload, delay)
	if err != nil {
		return "", fmt.Errorf("enqueue delayed %s: %w", workerName, err)
	}

	s.logger.Debug("delayed job enqueued", "worker", workerName, "job_id", handle, "delay", delay)
	return handle, nil
}

// ProcessQueue выполняет не более одного задания из очереди.
//
// Перед первым вызовом все worker из реестра регистрируются в очереди;
// после изменения реестра привязки обновляются. Возвращает true, если
// задание было выполнено. Ошибка worker возвращается как *queue.JobError.
func (s *Service) ProcessQueue(ctx context.Context) (bool, error) {
	s.syncWorkers()
	return s.queue.Dispatch(ctx)
}

// ProcessJob выполняет задание синхронно, минуя очередь.
//
// Возвращает ErrWorkerNotFound, если worker не зарегистрирован,
// и ошибку, оборачивающую ErrWorkerFailed, если worker завершился ошибкой.
func (s *Service) ProcessJob(ctx context.Context, workerName string, payload domain.Payload) error {
	w, err := s.instance(workerName)
	if err != nil {
		return err
	}

	clone, err := payload.Clone()
	if err != nil {
		return err
	}

	job := domain.NewJob(uuid.NewString(), workerName, clone)
	log := telemetry.WithJobID(telemetry.WithWorker(s.logger, workerName), job.ID)

	start := time.Now()
	err = s.invoke(telemetry.WithLogger(ctx, log), w, job)
	telemetry.JobDuration.WithLabelValues(workerName).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.JobsDispatched.WithLabelValues(workerName, telemetry.OutcomeFailure).Inc()
		log.Error("direct job failed", "error", err)
		return fmt.Errorf("%w: %s: %w", ErrWorkerFailed, workerName, err)
	}

	telemetry.JobsDispatched.WithLabelValues(workerName, telemetry.OutcomeSuccess).Inc()
	log.Info("direct job completed", "duration", time.Since(start))
	return nil
}

// Purge удаляет ожидающие задания worker.
func (s *Service) Purge(ctx context.Context, workerName string) (int, error) {
	if workerName == "" {
		return 0, queue.ErrEmptyWorkerName
	}

	n, err := s.queue.Purge(ctx, workerName)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", workerName, err)
	}

	s.logger.Info("queue purged", "worker", workerName, "purged", n)
	return n, nil
}

// invoke вызывает worker, превращая panic в ошибку.
func (s *Service) invoke(ctx context.Context, w queue.Worker, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.Work(ctx, job)
}

// checkWorker проверяет имя worker перед постановкой.
func (s *Service) checkWorker(workerName string) error {
	if workerName == "" {
		return queue.ErrEmptyWorkerName
	}
	if !s.registry.Has(workerName) {
		return fmt.Errorf("%w: %q", ErrWorkerNotFound, workerName)
	}
	return nil
}

// instance возвращает кешированный экземпляр worker.
func (s *Service) instance(workerName string) (queue.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instanceLocked(workerName)
}

func (s *Service) instanceLocked(workerName string) (queue.Worker, error) {
	if w, ok := s.instances[workerName]; ok {
		return w, nil
	}
	w, err := s.registry.Get(workerName)
	if err != nil {
		return nil, err
	}
	s.instances[workerName] = w
	return w, nil
}

// syncWorkers регистрирует worker в очереди, если реестр изменился.
func (s *Service) syncWorkers() {
	version := s.registry.Version()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.synced && s.registered == version {
		return
	}

	// Реестр изменился: старые экземпляры могли быть заменены
	clear(s.instances)
	names := s.registry.Names()
	for _, name := range names {
		w, err := s.instanceLocked(name)
		if err != nil {
			s.logger.Error("failed to load worker", "worker", name, "error", err)
			continue
		}
		s.queue.RegisterWorker(name, w)
	}

	s.registered = version
	s.synced = true
	s.logger.Debug("workers registered with queue", "backend", s.queue.Backend(), "workers", names)
}
