package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultPrefix — префикс имён exchanges и queues по умолчанию.
const DefaultPrefix = "workman"

// delayQueueGrace — сколько живёт пустая очередь задержки после последнего использования.
const delayQueueGrace = time.Minute

// Topology описывает имена объектов RabbitMQ.
//
// Схема:
//
//	<prefix>.jobs (direct)
//	└── <prefix>.jobs.<worker> [routing: <worker>]     готовые задания, DLQ: <prefix>.dlq
//
//	<prefix>.delayed (direct)
//	└── <prefix>.delay.<worker>.<ms> [routing: <worker>.<ms>]
//	        x-message-ttl = ms, dead-letter → <prefix>.jobs / <worker>
//
//	<prefix>.dlx (direct)
//	└── <prefix>.dlq [routing: #]                        упавшие задания, ручной разбор
type Topology struct {
	Prefix string
}

// NewTopology создаёт описание топологии с префиксом.
func NewTopology(prefix string) Topology {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topology{Prefix: prefix}
}

// JobsExchange — exchange готовых заданий.
func (t Topology) JobsExchange() string { return t.Prefix + ".jobs" }

// DelayedExchange — exchange отложенных заданий.
func (t Topology) DelayedExchange() string { return t.Prefix + ".delayed" }

// DeadLetterExchange — exchange упавших заданий.
func (t Topology) DeadLetterExchange() string { return t.Prefix + ".dlx" }

// DeadLetterQueue — очередь упавших заданий.
func (t Topology) DeadLetterQueue() string { return t.Prefix + ".dlq" }

// WorkerQueue — очередь готовых заданий worker.
func (t Topology) WorkerQueue(worker string) string {
	return t.Prefix + ".jobs." + worker
}

// DelayQueue — очередь ожидания для worker и задержки.
func (t Topology) DelayQueue(worker string, delay time.Duration) string {
	return t.Prefix + ".delay." + worker + "." + strconv.FormatInt(delay.Milliseconds(), 10)
}

// DelayRoutingKey — routing key очереди ожидания.
func (t Topology) DelayRoutingKey(worker string, delay time.Duration) string {
	return worker + "." + strconv.FormatInt(delay.Milliseconds(), 10)
}

// Setup объявляет exchanges и DLQ.
func (t Topology) Setup(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, name := range []string{t.JobsExchange(), t.DelayedExchange(), t.DeadLetterExchange()} {
			err := ch.ExchangeDeclare(
				name,     // name
				"direct", // type
				true,     // durable
				false,    // auto-deleted
				false,    // internal
				false,    // no-wait
				nil,      // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", name, err)
			}
		}

		if _, err := ch.QueueDeclare(t.DeadLetterQueue(), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue(), err)
		}
		if err := ch.QueueBind(t.DeadLetterQueue(), "#", t.DeadLetterExchange(), false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", t.DeadLetterQueue(), err)
		}
		return nil
	})
}

// DeclareWorkerQueue объявляет очередь готовых заданий worker.
// Отклонённые сообщения уходят в DLQ.
func (t Topology) DeclareWorkerQueue(ctx context.Context, conn *Connection, worker string) error {
	queue := t.WorkerQueue(worker)
	args := amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange(),
		"x-dead-letter-routing-key": "#",
	}

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, worker, t.JobsExchange(), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", queue, t.JobsExchange(), err)
		}
		return nil
	})
}

// DeclareDelayQueue объявляет очередь ожидания.
//
// У очереди нет потребителей: сообщение лежит ttl и по истечении
// dead-letter перекладывается в очередь готовых заданий worker.
// Одна очередь на каждое значение задержки, поэтому сообщения с разными
// задержками не блокируют друг друга в голове очереди.
func (t Topology) DeclareDelayQueue(ctx context.Context, conn *Connection, worker string, delay time.Duration) error {
	queue := t.DelayQueue(worker, delay)
	ttl := delay.Milliseconds()
	args := amqp.Table{
		"x-message-ttl":             ttl,
		"x-expires":                 ttl + delayQueueGrace.Milliseconds(),
		"x-dead-letter-exchange":    t.JobsExchange(),
		"x-dead-letter-routing-key": worker,
	}

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, t.DelayRoutingKey(worker, delay), t.DelayedExchange(), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", queue, t.DelayedExchange(), err)
		}
		return nil
	})
}

// Info возвращает описание топологии для логирования.
func (t Topology) Info() string {
	return fmt.Sprintf("exchanges: %s, %s, %s; dlq: %s",
		t.JobsExchange(), t.DelayedExchange(), t.DeadLetterExchange(), t.DeadLetterQueue())
}
