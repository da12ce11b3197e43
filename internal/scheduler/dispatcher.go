package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/queue"
	"github.com/shaiso/Workman/internal/telemetry"
)

// Enqueuer ставит задание в очередь worker.
// Реализация: worker.Service.
type Enqueuer interface {
	EnqueueBackground(ctx context.Context, workerName string, payload domain.Payload) (string, error)
}

// Dispatcher переносит наступившие отложенные задания в очередь.
//
// Порядок для каждого задания:
//
//  1. SetJobAsExecuted — атомарный claim, проигравший диспетчер пропускает задание
//  2. проверка worker — задание для незарегистрированного worker остаётся
//     EXECUTED, следующее вхождение не создаётся
//  3. ScheduleNext — для повторяющихся заданий (идемпотентно)
//  4. EnqueueBackground
//
// Claim до постановки даёт at-most-once: падение между 1 и 4 теряет одно
// выполнение, но не приводит к дублю. Ошибка backend при постановке снимает
// claim и прерывает тик: Tick возвращает ошибку, цикл лидера делает backoff.
type Dispatcher struct {
	service  *Service
	enqueuer Enqueuer
	logger   *slog.Logger

	// workerName — если задан, диспетчер обрабатывает только этого worker.
	workerName string
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	Service  *Service
	Enqueuer Enqueuer
	Logger   *slog.Logger

	// WorkerName — фильтр по worker (пустой — все).
	WorkerName string
}

// NewDispatcher создаёт новый Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		service:    cfg.Service,
		enqueuer:   cfg.Enqueuer,
		logger:     cfg.Logger,
		workerName: cfg.WorkerName,
	}
}

// TickResult — итог одного тика.
type TickResult struct {
	Due       int // наступивших заданий в выборке
	Enqueued  int // поставлено в очередь
	Conflicts int // забрано другим диспетчером
	Failed    int // ошибки claim, постановки или неизвестный worker
	Scheduled int // создано следующих вхождений

	// More — выборка упёрлась в лимит, стоит вызвать Tick ещё раз.
	More bool
}

// Tick выполняет один проход диспетчера.
//
// Ошибка claim или конфигурации одного задания не блокирует остальные.
// Ошибка backend очереди прерывает тик и возвращается вызывающему.
func (d *Dispatcher) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult

	jobs, err := d.service.GetScheduledToRun(ctx, d.service.Now(), d.workerName)
	if err != nil {
		return result, err
	}

	result.Due = len(jobs)
	result.More = len(jobs) >= d.service.PageSize()
	if len(jobs) == 0 {
		return result, nil
	}

	d.logger.Debug("found due scheduled jobs", "count", len(jobs))

	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := d.processJob(ctx, &jobs[i], &result); err != nil {
			d.logger.Warn("dispatcher tick aborted",
				"enqueued", result.Enqueued,
				"failed", result.Failed,
				"error", err,
			)
			return result, err
		}
	}

	d.logger.Info("dispatcher tick completed",
		"due", result.Due,
		"enqueued", result.Enqueued,
		"conflicts", result.Conflicts,
		"failed", result.Failed,
		"next_scheduled", result.Scheduled,
	)

	return result, nil
}

// processJob обрабатывает одно задание.
// Возвращает ошибку только при отказе backend очереди.
func (d *Dispatcher) processJob(ctx context.Context, job *domain.ScheduledJob, result *TickResult) error {
	log := d.logger.With("scheduled_job_id", job.ID, "worker", job.WorkerName)

	// 1. Claim
	if err := d.service.SetJobAsExecuted(ctx, job); err != nil {
		if isClaimConflict(err) {
			log.Debug("scheduled job claimed by another dispatcher")
			telemetry.ScheduledClaimConflicts.Inc()
			result.Conflicts++
			return nil
		}
		log.Error("failed to claim scheduled job", "error", err)
		result.Failed++
		return nil
	}

	// 2. Worker
	if !d.service.KnowsWorker(job.WorkerName) {
		log.Error("scheduled job for unknown worker dropped")
		result.Failed++
		return nil
	}

	// 3. Следующее вхождение
	if job.IsRecurring() {
		next, err := d.service.ScheduleNext(ctx, job)
		if err != nil {
			log.Error("failed to schedule next occurrence", "error", err)
		} else if next != nil {
			result.Scheduled++
			log.Debug("next occurrence scheduled", "next_id", next.ID, "ts_scheduled", next.TsScheduled)
		}
	}

	// 4. Постановка в очередь
	handle, err := d.enqueuer.EnqueueBackground(ctx, job.WorkerName, job.JobData)
	if err != nil {
		result.Failed++
		if isConfigError(err) {
			log.Error("scheduled job rejected by queue, execution lost", "error", err)
			return nil
		}

		if relErr := d.service.ReleaseClaim(ctx, job); relErr != nil {
			log.Error("failed to release claim, execution lost", "error", relErr)
		} else {
			log.Warn("enqueue failed, claim released", "error", err)
		}
		return fmt.Errorf("enqueue scheduled job %s: %w", job.ID, err)
	}

	telemetry.ScheduledJobsClaimed.WithLabelValues(job.WorkerName).Inc()
	result.Enqueued++
	log.Info("scheduled job enqueued", "handle", handle)
	return nil
}

// isConfigError — ошибка, которую повтор постановки не исправит.
func isConfigError(err error) bool {
	return errors.Is(err, queue.ErrWorkerNotFound) ||
		errors.Is(err, queue.ErrEmptyWorkerName) ||
		errors.Is(err, domain.ErrInvalidPayload)
}

// Drain вызывает Tick, пока выборка упирается в лимит.
// maxPasses ограничивает число проходов (<= 0 — один проход).
func (d *Dispatcher) Drain(ctx context.Context, maxPasses int) (TickResult, error) {
	if maxPasses <= 0 {
		maxPasses = 1
	}

	var total TickResult
	for pass := 0; pass < maxPasses; pass++ {
		res, err := d.Tick(ctx)
		total.Due += res.Due
		total.Enqueued += res.Enqueued
		total.Conflicts += res.Conflicts
		total.Failed += res.Failed
		total.Scheduled += res.Scheduled
		total.More = res.More
		if err != nil {
			return total, fmt.Errorf("dispatcher pass %d: %w", pass+1, err)
		}
		if !res.More {
			break
		}
	}
	return total, nil
}

// Validate проверяет, что Dispatcher собран корректно.
func (d *Dispatcher) Validate() error {
	if d.service == nil {
		return fmt.Errorf("dispatcher has no scheduler service")
	}
	if d.enqueuer == nil {
		return fmt.Errorf("dispatcher has no enqueuer")
	}
	return nil
}
