package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery — полученное сообщение с методами ack/nack.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message *Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer забирает сообщения из очередей по одному (basic.get).
//
// Pull-модель нужна диспетчеру: за вызов выдаётся не больше одного задания,
// и пустая очередь не блокирует вызывающего.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{conn: conn, logger: logger}
}

// Get забирает одно сообщение из очереди без auto-ack.
// Возвращает nil без ошибки, если очередь пуста.
//
// Сообщение с некорректным телом отправляется в DLQ и не возвращается.
func (c *Consumer) Get(ctx context.Context, queue string) (*Delivery, error) {
	var delivery *Delivery

	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		raw, ok, err := ch.Get(queue, false)
		if err != nil {
			return fmt.Errorf("get from %s: %w", queue, err)
		}
		if !ok {
			return nil
		}

		msg, err := DecodeMessage(raw.Body)
		if err != nil {
			c.logger.Error("failed to unmarshal message",
				"queue", queue,
				"error", err,
				"body", string(raw.Body),
			)
			// Некорректное сообщение — отправляем в DLQ
			if nackErr := raw.Nack(false, false); nackErr != nil {
				return fmt.Errorf("nack malformed message: %w", nackErr)
			}
			return nil
		}

		c.logger.Debug("received message",
			"queue", queue,
			"message_id", msg.ID,
			"worker", msg.Worker,
		)

		delivery = &Delivery{Message: msg, Raw: raw}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return delivery, nil
}

// Purge удаляет все готовые сообщения из очереди и возвращает их количество.
func (c *Consumer) Purge(ctx context.Context, queue string) (int, error) {
	var count int
	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		n, err := ch.QueuePurge(queue, false)
		if err != nil {
			return fmt.Errorf("purge %s: %w", queue, err)
		}
		count = n
		return nil
	})
	return count, err
}
