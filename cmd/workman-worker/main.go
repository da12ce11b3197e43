// Workman Worker — обрабатывает задания из очереди.
//
// Worker:
//   - Забирает задания из Redis или RabbitMQ
//   - Выполняет worker из реестра (встроенные и зарегистрированные)
//   - Отдаёт /health и /metrics на metrics.addr
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
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
		Use:           "workman-worker",
		Short:         "Workman queue worker",
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
	logger.Info("starting workman-worker", "version", version, "node_id", cfg.Server.NodeID)
	telemetry.RegisterMetrics()

	if cfg.Queue.Backend == config.BackendMemory {
		logger.Warn("queue.backend=memory is process-local, this worker only sees its own jobs")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := a.NewRunner()
	if err := runner.Start(ctx); err != nil {
		return err
	}

	err = app.Serve(ctx, cfg.Metrics.Addr, a.OpsMux(), logger)
	cancel()
	runner.Stop()

	logger.Info("workman-worker stopped")
	return err
}
