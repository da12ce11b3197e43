package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Workman/internal/queue"
)

// Default configuration values.
const (
	defaultPollInterval = time.Second
	defaultConcurrency  = 1
	defaultMaxBackoff   = 30 * time.Second
)

// Processor — то, что Runner вызывает в цикле.
// Реализация: Service.
type Processor interface {
	ProcessQueue(ctx context.Context) (bool, error)
}

// Runner — цикл обработки очереди в процессе воркера.
//
// Runner:
//   - Вызывает ProcessQueue, пока очередь не опустеет
//   - Ждёт PollInterval, если заданий нет
//   - Логирует ошибки worker и продолжает работу
//   - При ошибках backend ждёт с exponential backoff
//
// Несколько Runner (или горутин одного Runner) могут обслуживать одну очередь.
type Runner struct {
	processor Processor

	pollInterval time.Duration
	maxBackoff   time.Duration
	concurrency  int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	Processor Processor

	PollInterval time.Duration // пауза при пустой очереди (default: 1s)
	MaxBackoff   time.Duration // потолок backoff при ошибках backend (default: 30s)
	Concurrency  int           // число горутин обработки (default: 1)

	// Logger
	Logger *slog.Logger
}

// NewRunner создаёт новый Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		processor:    cfg.Processor,
		pollInterval: pollInterval,
		maxBackoff:   maxBackoff,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// Start запускает горутины обработки и сразу возвращается.
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.logger.Info("starting worker runner",
		"poll_interval", r.pollInterval,
		"concurrency", r.concurrency,
	)

	for i := 0; i < r.concurrency; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Run(ctx)
		}()
	}

	r.logger.Info("worker runner started")
	return nil
}

// Stop останавливает Runner и ждёт завершения текущих заданий.
func (r *Runner) Stop() {
	r.stoppedMu.Lock()
	r.stopped = true
	r.stoppedMu.Unlock()

	r.logger.Info("stopping worker runner...")

	if r.cancelFunc != nil {
		r.cancelFunc()
	}

	r.wg.Wait()

	r.logger.Info("worker runner stopped")
}

// IsStopped проверяет, остановлен ли Runner.
func (r *Runner) IsStopped() bool {
	r.stoppedMu.RLock()
	defer r.stoppedMu.RUnlock()
	return r.stopped
}

// Run обрабатывает очередь до отмены ctx.
func (r *Runner) Run(ctx context.Context) {
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		ran, err := r.processor.ProcessQueue(ctx)

		var wait time.Duration
		switch {
		case err != nil && queue.IsJobError(err):
			// Worker упал, backend исправен
			failures = 0
			r.logger.Error("job failed", "error", err)
		case err != nil:
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			failures++
			wait = calculateBackoff(failures, r.pollInterval, r.maxBackoff)
			r.logger.Error("queue dispatch failed", "error", err, "attempt", failures, "retry_in", wait)
		case !ran:
			failures = 0
			wait = r.pollInterval
		default:
			failures = 0
		}

		if wait == 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// calculateBackoff вычисляет паузу после attempt подряд идущих ошибок:
// initial * 2^(attempt-1), не больше maxDelay.
func calculateBackoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
