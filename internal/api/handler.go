package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Workman/internal/scheduler"
	"github.com/shaiso/Workman/internal/worker"
	"github.com/shaiso/Workman/internal/workflow"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workers   *worker.Service
	scheduler *scheduler.Service
	workflows *workflow.Service
	ready     func(ctx context.Context) error
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workers   *worker.Service
	Scheduler *scheduler.Service
	Workflows *workflow.Service

	// Ready проверяет внешние подключения для /health (опционально).
	Ready func(ctx context.Context) error

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		workers:   cfg.Workers,
		scheduler: cfg.Scheduler,
		workflows: cfg.Workflows,
		ready:     cfg.Ready,
		logger:    logger,
	}
}
