// Package app собирает компоненты процессов Workman из конфигурации.
//
// Все бинарники (api, worker, scheduler) строят одинаковый граф:
// хранилища → scheduler.Service → workflow.Service → очередь →
// worker.Service → scheduler.Dispatcher → встроенные worker.
// Отличаются только циклы, которые процесс запускает поверх графа.
package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Workman/internal/config"
	"github.com/shaiso/Workman/internal/leader"
	"github.com/shaiso/Workman/internal/memstore"
	"github.com/shaiso/Workman/internal/mq"
	"github.com/shaiso/Workman/internal/queue"
	"github.com/shaiso/Workman/internal/repo"
	"github.com/shaiso/Workman/internal/scheduler"
	"github.com/shaiso/Workman/internal/worker"
	"github.com/shaiso/Workman/internal/workflow"
)

// App — собранный граф компонентов процесса.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Queue      queue.Queue
	Workers    *worker.Service
	Scheduler  *scheduler.Service
	Dispatcher *scheduler.Dispatcher
	Workflows  *workflow.Service

	// Внешние подключения; nil, если не используются.
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	MQConn *mq.Connection

	closers []func()
}

// New собирает App. При ошибке уже открытые подключения закрываются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("node_id", cfg.Server.NodeID)

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	jobs, workflows, entities, err := a.buildStores(ctx)
	if err != nil {
		return nil, err
	}

	registry := worker.NewRegistry()
	a.Scheduler = scheduler.New(scheduler.Config{
		Store:       jobs,
		Logger:      logger,
		PageSize:    cfg.Scheduler.BatchSize,
		KnownWorker: registry.Has,
	})

	factory := workflow.DefaultFactory(workflow.Deps{
		Entities:  entities,
		Scheduler: a.Scheduler,
		Logger:    logger,
		AppURL:    cfg.Workflow.AppURL,
	})
	a.Workflows = workflow.NewService(workflow.Config{
		Mapper:        workflows,
		Entities:      entities,
		Factory:       factory,
		Logger:        logger,
		ActionTimeout: cfg.Workflow.ActionTimeout,
	})

	q, err := a.buildQueue(ctx)
	if err != nil {
		return nil, err
	}
	a.Queue = q

	a.Workers = worker.NewService(worker.Config{
		Queue:    a.Queue,
		Registry: registry,
		Logger:   logger,
	})
	a.Dispatcher = scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Service:  a.Scheduler,
		Enqueuer: a.Workers,
		Logger:   logger,
	})
	worker.RegisterBuiltins(registry, worker.Deps{
		Dispatcher: a.Dispatcher,
		Workflows:  a.Workflows,
		Webhook:    &worker.WebhookConfig{},
	})

	logger.Info("application wired",
		"queue", a.Queue.Backend(),
		"database", a.Pool != nil,
		"workers", registry.Names(),
	)
	return a, nil
}

// buildStores выбирает PostgreSQL или хранилища в памяти.
func (a *App) buildStores(ctx context.Context) (scheduler.Store, workflow.DataMapper, workflow.EntityStore, error) {
	cfg := a.Config.Database
	if cfg.URL == "" {
		a.Logger.Warn("database.url is empty, using in-memory stores")
		return memstore.NewScheduledJobs(), memstore.NewWorkflows(), memstore.NewEntities(), nil
	}

	pool, err := repo.NewPool(ctx, cfg.URL, cfg.MaxConns)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.Logger.Info("database connected")

	if cfg.Migrate {
		if err := repo.Migrate(ctx, pool); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return repo.NewScheduledJobRepo(pool), repo.NewWorkflowRepo(pool), repo.NewEntityRepo(pool), nil
}

// buildQueue создаёт backend очереди.
func (a *App) buildQueue(ctx context.Context) (queue.Queue, error) {
	cfg := a.Config.Queue

	switch cfg.Backend {
	case config.BackendMemory:
		return queue.NewMemory(queue.MemoryConfig{Logger: a.Logger}), nil

	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return queue.NewRedis(client, queue.RedisConfig{
			Prefix: cfg.Redis.Prefix,
			Logger: a.Logger,
		}), nil

	case config.BackendRabbitMQ:
		conn, err := mq.NewConnection(cfg.RabbitMQ.URL, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.MQConn = conn
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.Logger.Info("RabbitMQ connected")

		q, err := queue.NewRabbitMQ(ctx, conn, queue.RabbitMQConfig{
			Prefix: cfg.RabbitMQ.Prefix,
			Logger: a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("setup rabbitmq queue: %w", err)
		}
		return q, nil
	}

	return nil, fmt.Errorf("%w: queue.backend %q", config.ErrInvalidConfig, cfg.Backend)
}

// redisClient возвращает общий клиент Redis для очереди и блокировки лидера.
func (a *App) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.Redis != nil {
		return a.Redis, nil
	}

	cfg := a.Config.Queue.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	a.Redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.Logger.Info("redis connected", "addr", cfg.Addr)
	return client, nil
}

// LeaderLock создаёт блокировку лидера по scheduler.leader.
// Для "none" возвращает leader.Local: процесс считает себя единственным диспетчером.
func (a *App) LeaderLock(ctx context.Context) (leader.Lock, error) {
	cfg := a.Config.Scheduler

	switch cfg.Leader {
	case config.LeaderNone:
		return leader.Local{}, nil
	case config.LeaderPostgres:
		if a.Pool == nil {
			return nil, fmt.Errorf("%w: postgres leader lock requires database.url", config.ErrInvalidConfig)
		}
		return leader.NewPgLock(a.Pool, LockKey(cfg.LeaderKey)), nil
	case config.LeaderRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		lock, err := leader.NewRedisLock(client, cfg.LeaderKey, cfg.LockExpiry)
		if err != nil {
			return nil, err
		}
		return lock.WithOwner(a.Config.Server.NodeID), nil
	}

	return nil, fmt.Errorf("%w: scheduler.leader %q", config.ErrInvalidConfig, cfg.Leader)
}

// LockKey переводит имя блокировки в ключ pg_advisory_lock.
// Пустое имя даёт leader.DefaultPgLockKey.
func LockKey(name string) int64 {
	if name == "" {
		return leader.DefaultPgLockKey
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// Close закрывает подключения в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Ready проверяет внешние подключения. Используется /health.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.MQConn != nil && !a.MQConn.IsConnected() {
		errs = append(errs, errors.New("rabbitmq: not connected"))
	}
	return errors.Join(errs...)
}
