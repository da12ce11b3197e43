package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Workman/internal/config"
	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/leader"
	"github.com/shaiso/Workman/internal/worker"
)

func testConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			Backend:      config.BackendMemory,
			PollInterval: time.Second,
			Concurrency:  1,
		},
		Scheduler: config.SchedulerConfig{
			Interval:  time.Second,
			BatchSize: 100,
			Leader:    config.LeaderNone,
			LeaderKey: "workman:test:leader",
		},
		Workflow: config.WorkflowConfig{ActionTimeout: time.Second},
	}
}

func TestNew_Memory(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "memory", a.Queue.Backend())
	assert.Nil(t, a.Pool)
	assert.Equal(t, []string{
		worker.EntityEventWorker,
		worker.ScheduledJobsWorker,
		worker.WebhookWorker,
		worker.WaitActionWorker,
	}, a.Workers.Names())
	assert.NoError(t, a.Ready(ctx))

	lock, err := a.LeaderLock(ctx)
	require.NoError(t, err)
	assert.Equal(t, leader.Local{}, lock)
}

// TestNew_ScheduledJobFlow: отложенное задание доходит до worker через
// диспетчер и очередь собранного графа.
func TestNew_ScheduledJobFlow(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	var got []domain.Payload
	a.Workers.Registry().RegisterWorker("Report", workerFunc(func(job *domain.Job) {
		got = append(got, job.Payload)
	}))

	_, err = a.Scheduler.ScheduleAtTime(ctx, "Report", time.Now().Add(-time.Minute), domain.Payload{"month": "2026-05"})
	require.NoError(t, err)

	result, err := a.Dispatcher.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Enqueued)

	ran, err := a.Workers.ProcessQueue(ctx)
	require.NoError(t, err)
	require.True(t, ran)
	require.Len(t, got, 1)
	assert.Equal(t, "2026-05", got[0].String("month"))
}

func TestNew_RedisBackendAndLeader(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Queue.Backend = config.BackendRedis
	cfg.Queue.Redis = config.RedisConfig{Addr: mr.Addr(), Prefix: "wmtest"}
	cfg.Scheduler.Leader = config.LeaderRedis
	cfg.Server.NodeID = "node-a"

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "redis", a.Queue.Backend())
	require.NotNil(t, a.Redis)
	assert.NoError(t, a.Ready(ctx))

	lock, err := a.LeaderLock(ctx)
	require.NoError(t, err)
	require.IsType(t, &leader.RedisLock{}, lock)

	ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	holder, err := mr.Get(cfg.Scheduler.LeaderKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(holder, "node-a:"), holder)
	require.NoError(t, lock.Release(ctx))
}

func TestNew_RedisUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Backend = config.BackendRedis
	cfg.Queue.Redis = config.RedisConfig{Addr: "127.0.0.1:1"}

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Backend = "kafka"

	_, err := New(context.Background(), cfg, nil)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestLeaderLock_PostgresRequiresDatabase(t *testing.T) {
	cfg := testConfig()
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	a.Config.Scheduler.Leader = config.LeaderPostgres
	_, err = a.LeaderLock(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLockKey(t *testing.T) {
	if got := LockKey(""); got != leader.DefaultPgLockKey {
		t.Errorf("empty name: got %d, want %d", got, leader.DefaultPgLockKey)
	}
	if LockKey("a") == LockKey("b") {
		t.Error("different names should give different keys")
	}
	if LockKey("workman") != LockKey("workman") {
		t.Error("key must be stable")
	}
}

// workerFunc — worker для тестов.
type workerFunc func(job *domain.Job)

func (f workerFunc) Work(_ context.Context, job *domain.Job) error {
	f(job)
	return nil
}
