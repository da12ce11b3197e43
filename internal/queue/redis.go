package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/mq"
	"github.com/shaiso/Workman/internal/telemetry"
)

// promoteScript переносит наступившие отложенные задания в LIST готовых.
//
// KEYS[1] — ZSET отложенных, KEYS[2] — LIST готовых.
// ARGV[1] — текущее время (unix ms), ARGV[2] — лимит за вызов.
var promoteScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, v in ipairs(items) do
	redis.call('ZREM', KEYS[1], v)
	redis.call('RPUSH', KEYS[2], v)
end
return #items
`)

// RedisConfig — конфигурация Redis backend.
type RedisConfig struct {
	// Prefix — префикс ключей. По умолчанию "workman".
	Prefix string

	// PromoteBatch — сколько отложенных заданий переносить за один Dispatch.
	PromoteBatch int

	// Now — источник текущего времени. По умолчанию time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Redis — очередь в Redis.
//
// На каждого worker:
//
//	<prefix>:ready:<worker>    LIST  готовые задания (RPUSH / LPOP)
//	<prefix>:delayed:<worker>  ZSET  отложенные задания, score = not_before (unix ms)
//
// Dispatch сначала переносит наступившие задания скриптом, затем делает LPOP.
// Задание удаляется до выполнения: доставка at-most-once.
type Redis struct {
	client redis.UniversalClient
	prefix string
	batch  int
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]Worker
	order   []string
	next    int
}

// NewRedis создаёт Redis backend.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "workman"
	}
	if cfg.PromoteBatch <= 0 {
		cfg.PromoteBatch = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Redis{
		client:  client,
		prefix:  cfg.Prefix,
		batch:   cfg.PromoteBatch,
		now:     cfg.Now,
		logger:  cfg.Logger,
		workers: make(map[string]Worker),
	}
}

// Backend возвращает имя backend.
func (q *Redis) Backend() string { return "redis" }

func (q *Redis) readyKey(worker string) string {
	return fmt.Sprintf("%s:ready:%s", q.prefix, worker)
}

func (q *Redis) delayedKey(worker string) string {
	return fmt.Sprintf("%s:delayed:%s", q.prefix, worker)
}

// Enqueue ставит задание в LIST готовых.
func (q *Redis) Enqueue(ctx context.Context, workerName string, payload domain.Payload) (string, error) {
	return q.EnqueueDelayed(ctx, workerName, payload, 0)
}

// EnqueueDelayed ставит задание; с задержкой — в ZSET отложенных.
func (q *Redis) EnqueueDelayed(ctx context.Context, workerName string, payload domain.Payload, delay time.Duration) (string, error) {
	if err := validate(workerName, delay); err != nil {
		return "", err
	}

	data, err := payload.Encode()
	if err != nil {
		return "", err
	}

	now := q.now().UTC()
	msg := &mq.Message{
		ID:        uuid.NewString(),
		Worker:    workerName,
		Payload:   data,
		Timestamp: now,
	}
	if delay > 0 {
		msg.NotBefore = now.Add(delay)
	}

	body, err := msg.Encode()
	if err != nil {
		return "", err
	}

	if delay > 0 {
		err = q.client.ZAdd(ctx, q.delayedKey(workerName), redis.Z{
			Score:  float64(msg.NotBefore.UnixMilli()),
			Member: body,
		}).Err()
	} else {
		err = q.client.RPush(ctx, q.readyKey(workerName), body).Err()
	}
	if err != nil {
		return "", fmt.Errorf("redis enqueue %s: %w", workerName, err)
	}

	telemetry.JobsEnqueued.WithLabelValues(workerName, q.Backend()).Inc()
	return msg.ID, nil
}

// RegisterWorker привязывает worker к имени (последняя регистрация побеждает).
func (q *Redis) RegisterWorker(workerName string, w Worker) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.workers[workerName]; !exists {
		q.order = append(q.order, workerName)
	}
	q.workers[workerName] = w
}

// Dispatch выполняет одно задание. Worker опрашиваются по кругу.
func (q *Redis) Dispatch(ctx context.Context) (bool, error) {
	names := q.rotation()

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		job, err := q.pop(ctx, name)
		if err != nil {
			return false, err
		}
		if job == nil {
			continue
		}

		q.mu.Lock()
		w := q.workers[name]
		q.mu.Unlock()

		return true, run(ctx, q.logger, w, job)
	}

	return false, nil
}

// rotation возвращает имена worker, начиная со следующего по кругу.
func (q *Redis) rotation() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.order)
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, q.order[(q.next+i)%n])
	}
	if n > 0 {
		q.next = (q.next + 1) % n
	}
	return names
}

// pop переносит наступившие задания и извлекает одно готовое.
func (q *Redis) pop(ctx context.Context, worker string) (*domain.Job, error) {
	keys := []string{q.delayedKey(worker), q.readyKey(worker)}
	nowMs := strconv.FormatInt(q.now().UnixMilli(), 10)
	if err := promoteScript.Run(ctx, q.client, keys, nowMs, q.batch).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis promote %s: %w", worker, err)
	}

	body, err := q.client.LPop(ctx, q.readyKey(worker)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis pop %s: %w", worker, err)
	}

	msg, err := mq.DecodeMessage(body)
	if err != nil {
		// Битое сообщение уже извлечено, дальше его не выдаём
		q.logger.Error("dropping malformed job", "worker", worker, "error", err)
		return nil, nil
	}
	payload, err := domain.DecodePayload(msg.Payload)
	if err != nil {
		q.logger.Error("dropping job with malformed payload", "worker", worker, "job_id", msg.ID, "error", err)
		return nil, nil
	}

	job := domain.NewJob(msg.ID, msg.Worker, payload)
	job.EnqueuedAt = msg.Timestamp
	job.NotBefore = msg.NotBefore
	return job, nil
}

// Purge удаляет готовые и отложенные задания worker одной транзакцией.
func (q *Redis) Purge(ctx context.Context, workerName string) (int, error) {
	pipe := q.client.TxPipeline()
	ready := pipe.LLen(ctx, q.readyKey(workerName))
	delayed := pipe.ZCard(ctx, q.delayedKey(workerName))
	pipe.Del(ctx, q.readyKey(workerName), q.delayedKey(workerName))

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis purge %s: %w", workerName, err)
	}

	purged := int(ready.Val() + delayed.Val())
	if purged > 0 {
		telemetry.JobsPurged.WithLabelValues(workerName).Add(float64(purged))
	}
	return purged, nil
}

// Pending возвращает количество ожидающих заданий worker.
func (q *Redis) Pending(ctx context.Context, workerName string) (int, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey(workerName))
	delayed := pipe.ZCard(ctx, q.delayedKey(workerName))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis pending %s: %w", workerName, err)
	}
	return int(ready.Val() + delayed.Val()), nil
}
