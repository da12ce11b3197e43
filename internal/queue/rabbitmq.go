package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/mq"
	"github.com/shaiso/Workman/internal/telemetry"
)

// RabbitMQConfig — конфигурация RabbitMQ backend.
type RabbitMQConfig struct {
	// Prefix — префикс имён exchanges и queues. По умолчанию "workman".
	Prefix string

	Logger *slog.Logger
}

// RabbitMQ — очередь в RabbitMQ.
//
// У каждого worker своя durable очередь. Отложенные задания публикуются
// в очередь ожидания с TTL, откуда брокер перекладывает их в очередь worker.
//
// Dispatch забирает сообщение через basic.get без auto-ack:
//   - успех worker → ack
//   - ошибка worker → nack без requeue, сообщение уходит в DLQ
//   - падение процесса до ack → брокер выдаст сообщение снова
//
// Доставка at-least-once.
type RabbitMQ struct {
	conn      *mq.Connection
	topology  mq.Topology
	publisher *mq.Publisher
	consumer  *mq.Consumer
	logger    *slog.Logger

	mu       sync.Mutex
	workers  map[string]Worker
	order    []string
	next     int
	declared map[string]bool
	delays   map[string]map[time.Duration]bool
}

// NewRabbitMQ создаёт RabbitMQ backend и объявляет базовую топологию.
func NewRabbitMQ(ctx context.Context, conn *mq.Connection, cfg RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	q := &RabbitMQ{
		conn:      conn,
		topology:  mq.NewTopology(cfg.Prefix),
		publisher: mq.NewPublisher(conn, cfg.Logger),
		consumer:  mq.NewConsumer(conn, cfg.Logger),
		logger:    cfg.Logger,
		workers:   make(map[string]Worker),
		declared:  make(map[string]bool),
		delays:    make(map[string]map[time.Duration]bool),
	}

	if err := q.topology.Setup(ctx, conn); err != nil {
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	q.logger.Info("rabbitmq topology ready", "topology", q.topology.Info())

	return q, nil
}

// Backend возвращает имя backend.
func (q *RabbitMQ) Backend() string { return "rabbitmq" }

// ensureWorkerQueue объявляет очередь worker один раз за соединение.
// После переподключения топология объявляется заново.
func (q *RabbitMQ) ensureWorkerQueue(ctx context.Context, worker string) error {
	if err := q.checkReconnect(ctx); err != nil {
		return err
	}

	q.mu.Lock()
	done := q.declared[worker]
	q.mu.Unlock()
	if done {
		return nil
	}

	if err := q.topology.DeclareWorkerQueue(ctx, q.conn, worker); err != nil {
		return err
	}

	q.mu.Lock()
	q.declared[worker] = true
	q.mu.Unlock()
	return nil
}

// checkReconnect сбрасывает кэш объявленных очередей, если соединение
// было восстановлено: брокер мог потерять топологию.
func (q *RabbitMQ) checkReconnect(ctx context.Context) error {
	select {
	case <-q.conn.ReconnectNotify():
	default:
		return nil
	}

	q.mu.Lock()
	q.declared = make(map[string]bool)
	q.mu.Unlock()

	q.logger.Info("rabbitmq reconnected, redeclaring topology")
	if err := q.topology.Setup(ctx, q.conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}
	return nil
}

// ensureDelayQueue объявляет очередь ожидания.
// Объявление повторяется при каждой постановке: у очереди есть x-expires.
func (q *RabbitMQ) ensureDelayQueue(ctx context.Context, worker string, delay time.Duration) error {
	if err := q.topology.DeclareDelayQueue(ctx, q.conn, worker, delay); err != nil {
		return err
	}

	q.mu.Lock()
	if q.delays[worker] == nil {
		q.delays[worker] = make(map[time.Duration]bool)
	}
	q.delays[worker][delay] = true
	q.mu.Unlock()
	return nil
}

// Enqueue публикует задание в очередь worker.
func (q *RabbitMQ) Enqueue(ctx context.Context, workerName string, payload domain.Payload) (string, error) {
	return q.EnqueueDelayed(ctx, workerName, payload, 0)
}

// EnqueueDelayed публикует задание; с задержкой — через очередь ожидания.
// Задержка округляется до миллисекунд.
func (q *RabbitMQ) EnqueueDelayed(ctx context.Context, workerName string, payload domain.Payload, delay time.Duration) (string, error) {
	if err := validate(workerName, delay); err != nil {
		return "", err
	}
	delay = delay.Truncate(time.Millisecond)

	data, err := payload.Encode()
	if err != nil {
		return "", err
	}

	// Очередь worker нужна и для отложенных: в неё dead-letter перекладывает сообщение
	if err := q.ensureWorkerQueue(ctx, workerName); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	msg := &mq.Message{
		ID:        uuid.NewString(),
		Worker:    workerName,
		Payload:   data,
		Timestamp: now,
	}

	exchange, routingKey := q.topology.JobsExchange(), workerName
	if delay > 0 {
		if err := q.ensureDelayQueue(ctx, workerName, delay); err != nil {
			return "", err
		}
		msg.NotBefore = now.Add(delay)
		exchange, routingKey = q.topology.DelayedExchange(), q.topology.DelayRoutingKey(workerName, delay)
	}

	if err := q.publisher.Publish(ctx, exchange, routingKey, msg); err != nil {
		return "", err
	}

	telemetry.JobsEnqueued.WithLabelValues(workerName, q.Backend()).Inc()
	return msg.ID, nil
}

// RegisterWorker привязывает worker к имени (последняя регистрация побеждает).
func (q *RabbitMQ) RegisterWorker(workerName string, w Worker) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.workers[workerName]; !exists {
		q.order = append(q.order, workerName)
	}
	q.workers[workerName] = w
}

// rotation возвращает имена worker, начиная со следующего по кругу.
func (q *RabbitMQ) rotation() []string {
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

// Dispatch забирает одно сообщение и выполняет его.
func (q *RabbitMQ) Dispatch(ctx context.Context) (bool, error) {
	for _, name := range q.rotation() {
		if err := q.ensureWorkerQueue(ctx, name); err != nil {
			return false, err
		}

		delivery, err := q.consumer.Get(ctx, q.topology.WorkerQueue(name))
		if err != nil {
			return false, err
		}
		if delivery == nil {
			continue
		}

		return true, q.handle(ctx, name, delivery)
	}

	return false, nil
}

// handle выполняет задание и подтверждает или отклоняет сообщение.
func (q *RabbitMQ) handle(ctx context.Context, name string, d *mq.Delivery) error {
	msg := d.Message

	payload, err := domain.DecodePayload(msg.Payload)
	if err != nil {
		q.logger.Error("rejecting job with malformed payload", "worker", name, "job_id", msg.ID, "error", err)
		if nackErr := d.Nack(false); nackErr != nil {
			return fmt.Errorf("nack %s: %w", msg.ID, nackErr)
		}
		return &JobError{JobID: msg.ID, Worker: name, Err: err}
	}

	q.mu.Lock()
	w := q.workers[name]
	q.mu.Unlock()

	job := domain.NewJob(msg.ID, msg.Worker, payload)
	job.EnqueuedAt = msg.Timestamp
	job.NotBefore = msg.NotBefore

	runErr := run(ctx, q.logger, w, job)
	if runErr != nil {
		if err := d.Nack(false); err != nil {
			return fmt.Errorf("nack %s: %w", msg.ID, err)
		}
		return runErr
	}

	if err := d.Ack(); err != nil {
		return fmt.Errorf("ack %s: %w", msg.ID, err)
	}
	return nil
}

// Purge очищает очередь worker и известные этому процессу очереди ожидания.
//
// Очереди ожидания, объявленные другими процессами, здесь не видны:
// их сообщения попадут в очередь worker после истечения задержки.
func (q *RabbitMQ) Purge(ctx context.Context, workerName string) (int, error) {
	if err := q.ensureWorkerQueue(ctx, workerName); err != nil {
		return 0, err
	}

	total, err := q.consumer.Purge(ctx, q.topology.WorkerQueue(workerName))
	if err != nil {
		return 0, err
	}

	q.mu.Lock()
	delays := make([]time.Duration, 0, len(q.delays[workerName]))
	for d := range q.delays[workerName] {
		delays = append(delays, d)
	}
	q.mu.Unlock()

	for _, delay := range delays {
		// Очередь могла истечь по x-expires, объявляем заново перед очисткой
		if err := q.ensureDelayQueue(ctx, workerName, delay); err != nil {
			return total, err
		}
		n, err := q.consumer.Purge(ctx, q.topology.DelayQueue(workerName, delay))
		if err != nil {
			return total, err
		}
		total += n
	}

	if total > 0 {
		telemetry.JobsPurged.WithLabelValues(workerName).Add(float64(total))
	}
	return total, nil
}
