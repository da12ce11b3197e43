// Workman API — HTTP API для worker, отложенных заданий и workflow.
//
// С queue.backend=memory очередь живёт внутри процесса, поэтому API
// сам запускает обработку очереди и диспетчер отложенных заданий.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Workman/internal/api"
	"github.com/shaiso/Workman/internal/app"
	"github.com/shaiso/Workman/internal/config"
	"github.com/shaiso/Workman/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "workman-api",
		Short:         "Workman HTTP API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config (default: $WORKMAN_CONFIG)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting workman-api", "version", version, "node_id", cfg.Server.NodeID)
	telemetry.RegisterMetrics()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(api.Config{
		Workers:   a.Workers,
		Scheduler: a.Scheduler,
		Workflows: a.Workflows,
		Ready:     a.Ready,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	var wg sync.WaitGroup
	if cfg.Queue.Backend == config.BackendMemory {
		logger.Info("in-memory queue, running worker and dispatcher in-process")

		runner := a.NewRunner()
		if err := runner.Start(ctx); err != nil {
			return err
		}
		defer runner.Stop()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.RunDispatcher(ctx); err != nil {
				logger.Error("dispatcher stopped", "error", err)
				cancel()
			}
		}()
	}

	err = app.Serve(ctx, cfg.Server.Addr, mux, logger)
	cancel()
	wg.Wait()

	logger.Info("workman-api stopped")
	return err
}
