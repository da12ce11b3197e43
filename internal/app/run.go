package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Workman/internal/leader"
	"github.com/shaiso/Workman/internal/telemetry"
	"github.com/shaiso/Workman/internal/worker"
)

// shutdownTimeout — время на graceful shutdown HTTP сервера.
const shutdownTimeout = 10 * time.Second

// drainPasses — максимум проходов диспетчера за один тик лидера.
const drainPasses = 10

// NewRunner создаёт цикл обработки очереди по queue.poll_interval и queue.concurrency.
func (a *App) NewRunner() *worker.Runner {
	return worker.NewRunner(worker.RunnerConfig{
		Processor:    a.Workers,
		PollInterval: a.Config.Queue.PollInterval,
		Concurrency:  a.Config.Queue.Concurrency,
		Logger:       a.Logger,
	})
}

// RunDispatcher переносит наступившие отложенные задания в очередь,
// пока процесс удерживает блокировку лидера. Возвращается при отмене ctx.
func (a *App) RunDispatcher(ctx context.Context) error {
	lock, err := a.LeaderLock(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info("dispatcher started",
		"leader", a.Config.Scheduler.Leader,
		"interval", a.Config.Scheduler.Interval,
	)

	err = leader.Run(ctx, leader.RunConfig{
		Lock:     lock,
		Interval: a.Config.Scheduler.Interval,
		Logger:   a.Logger,
	}, func(ctx context.Context) error {
		res, err := a.Dispatcher.Drain(ctx, drainPasses)
		if res.Due > 0 {
			a.Logger.Debug("dispatcher tick",
				"due", res.Due,
				"enqueued", res.Enqueued,
				"conflicts", res.Conflicts,
				"failed", res.Failed,
			)
		}
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// OpsMux — /health и /metrics для процессов без API.
func (a *App) OpsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", telemetry.MetricsHandler())
	return mux
}

// Serve запускает HTTP сервер и останавливает его при отмене ctx.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", addr, err)
	}
	return nil
}
