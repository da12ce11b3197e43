// Package worker выполняет задания очереди.
//
// # Обзор
//
// Пакет скрывает backend очереди от остального приложения.
// Код ставит задания по имени worker и не знает, где они выполнятся:
// в памяти процесса, через Redis или через RabbitMQ.
//
// # Ключевые компоненты
//
// ## Registry
//
// Реестр фабрик worker по имени. Экземпляр создаётся лениво,
// при первом обращении. DefaultRegistry регистрирует встроенные worker:
//
//   - ScheduledJobs — один тик диспетчера отложенных заданий
//   - WorkflowWaitAction — продолжение ветки workflow после ожидания
//   - EntityEvent — асинхронный запуск workflow по событию сущности
//   - Webhook — HTTP-запрос из payload
//
// ## Service
//
// Фасад над queue.Queue:
//
//	svc := worker.NewService(worker.Config{
//	    Queue:    q,
//	    Registry: registry,
//	    Logger:   logger,
//	})
//
//	handle, err := svc.EnqueueBackground(ctx, "Webhook", payload)
//
// ProcessQueue регистрирует worker в очереди (один раз, и заново после
// изменения реестра) и выполняет не более одного задания. ProcessJob
// выполняет worker синхронно, минуя очередь, и отличает ErrWorkerNotFound
// от ErrWorkerFailed.
//
// ## Runner
//
// Цикл процесса воркера: вызывает ProcessQueue, спит PollInterval при
// пустой очереди и ждёт с exponential backoff при ошибках backend.
// Ошибки worker только логируются.
//
//	r := worker.NewRunner(worker.RunnerConfig{Processor: svc})
//	_ = r.Start(ctx)
//	defer r.Stop()
//
// # Гарантии доставки
//
// Определяются backend: memory и redis — at-most-once, rabbitmq —
// at-least-once. Worker должны быть идемпотентными.
package worker
