// Package leader — выбор лидера для singleton-процессов (диспетчер планировщика).
//
// Lock проверяется на каждом тике: TryAcquire берёт блокировку или
// подтверждает уже взятую. Реализации:
//   - PgLock    — pg_try_advisory_lock на выделенном соединении
//   - RedisLock — redsync mutex с продлением срока жизни
//   - Local     — без координации, для одного процесса
package leader

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotLeader — блокировка не удержана.
var ErrNotLeader = errors.New("not the leader")

// Lock — распределённая блокировка лидера.
type Lock interface {
	// TryAcquire берёт блокировку или продлевает уже взятую.
	// Возвращает false, если лидер — другой процесс.
	TryAcquire(ctx context.Context) (bool, error)

	// Release отпускает блокировку, если она удержана.
	Release(ctx context.Context) error
}

// DefaultMaxBackoff — предел паузы после подряд неудачных тиков.
const DefaultMaxBackoff = 30 * time.Second

// RunConfig — параметры Run.
type RunConfig struct {
	Lock     Lock
	Interval time.Duration
	Logger   *slog.Logger

	// MaxBackoff — предел паузы после ошибок tick (default: 30s).
	MaxBackoff time.Duration
}

// Run вызывает tick каждые Interval, пока процесс удерживает Lock.
// После ошибки tick пауза удваивается до MaxBackoff, успешный tick её сбрасывает.
// Возвращается при отмене ctx и отпускает блокировку.
func Run(ctx context.Context, cfg RunConfig, tick func(ctx context.Context) error) error {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	timer := time.NewTimer(cfg.Interval)
	defer timer.Stop()

	var failures int

	var leading bool
	defer func() {
		if leading {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := cfg.Lock.Release(releaseCtx); err != nil {
				cfg.Logger.Warn("failed to release leader lock", "error", err)
			}
		}
	}()

	for {
		ok, err := cfg.Lock.TryAcquire(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cfg.Logger.Error("leader lock error", "error", err)
			ok = false
		case ok && !leading:
			cfg.Logger.Info("became leader")
		case !ok && leading:
			cfg.Logger.Warn("lost leadership")
		}
		leading = ok

		wait := cfg.Interval
		if leading {
			if err := tick(ctx); err != nil && ctx.Err() == nil {
				failures++
				wait = Backoff(cfg.Interval, failures, cfg.MaxBackoff)
				cfg.Logger.Error("leader tick failed", "error", err, "failures", failures, "retry_in", wait)
			} else {
				failures = 0
			}
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Backoff — пауза после failures подряд неудачных тиков: interval·2^failures,
// не больше maxWait.
func Backoff(interval time.Duration, failures int, maxWait time.Duration) time.Duration {
	wait := interval
	for i := 0; i < failures && wait < maxWait; i++ {
		wait *= 2
	}
	if wait > maxWait {
		wait = maxWait
	}
	return wait
}

// Local — блокировка для единственного диспетчера (scheduler.leader=none).
// Процесс всегда считается лидером.
type Local struct{}

// TryAcquire всегда возвращает true.
func (Local) TryAcquire(context.Context) (bool, error) { return true, nil }

// Release ничего не делает.
func (Local) Release(context.Context) error { return nil }
