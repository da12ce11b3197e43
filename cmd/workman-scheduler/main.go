// Workman Scheduler — переносит наступившие отложенные задания в очередь.
//
// Несколько экземпляров безопасны: тик выполняет только лидер
// (scheduler.leader = postgres или redis), а захват задания атомарен.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Workman/internal/app"
	"github.com/shaiso/Workman/internal/config"
	"github.com/shaiso/Workman/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "workman-scheduler",
		Short:         "Workman scheduled job dispatcher",
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
	logger.Info("starting workman-scheduler", "version", version, "node_id", cfg.Server.NodeID)
	telemetry.RegisterMetrics()

	if cfg.Queue.Backend == config.BackendMemory {
		logger.Warn("queue.backend=memory is process-local, dispatched jobs stay in this process")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		wg          sync.WaitGroup
		dispatchErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatchErr = a.RunDispatcher(ctx)
		cancel()
	}()

	err = app.Serve(ctx, cfg.Metrics.Addr, a.OpsMux(), logger)
	cancel()
	wg.Wait()

	logger.Info("workman-scheduler stopped")
	if err != nil {
		return err
	}
	return dispatchErr
}
