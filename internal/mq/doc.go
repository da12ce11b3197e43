// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — имена и объявление exchanges, queues, bindings
//   - publisher.go  — конверт задания и публикация
//   - consumer.go   — выборка по одному сообщению (basic.get), ack/nack, purge
//
// Exchanges:
//   - workman.jobs     — готовые задания, routing key = имя worker
//   - workman.delayed  — отложенные задания (TTL очереди → workman.jobs)
//   - workman.dlx      — dead letter
package mq
