// Package queue — транспорт заданий между producer и worker.
//
// Queue скрывает backend:
//   - memory.go   — очередь в памяти процесса (тесты, локальный режим)
//   - redis.go    — Redis: LIST готовых заданий и ZSET отложенных на каждого worker
//   - rabbitmq.go — RabbitMQ: очередь на worker, задержка через TTL + dead-letter
//
// Гарантии доставки:
//   - Memory   — at-most-once: задание удаляется до запуска worker
//   - Redis    — at-most-once: LPOP до запуска worker, падение процесса теряет задание
//   - RabbitMQ — at-least-once: ack после успешного выполнения, падение процесса
//     возвращает сообщение в очередь; ошибка worker отправляет сообщение в DLQ
//
// Повторная доставка возможна, поэтому worker обязаны быть идемпотентными.
package queue
