// Package scheduler хранит отложенные и повторяющиеся задания
// и переносит наступившие задания в очередь.
//
// Структура:
//   - service.go    — Service: ScheduleAtTime, ScheduleAtInterval, GetScheduledToRun, SetJobAsExecuted
//   - dispatcher.go — Dispatcher: claim наступивших заданий и постановка в очередь
//   - cron.go       — вычисление следующего вхождения (интервалы, месяцы, cron)
//   - store.go      — интерфейс хранилища (repo.ScheduledJobRepo, memstore.ScheduledJobs)
//
// Использование:
//
//	svc := scheduler.New(scheduler.Config{Store: store, Logger: logger, KnownWorker: registry.Has})
//	id, err := svc.ScheduleAtTime(ctx, "SendReminder", at, domain.Payload{"user_id": 7})
//
//	disp := scheduler.NewDispatcher(scheduler.DispatcherConfig{
//	    Service:  svc,
//	    Enqueuer: workers, // worker.Service
//	})
//	res, err := disp.Tick(ctx)
//
// Leader Election:
//
// Dispatcher безопасен при нескольких экземплярах: claim атомарный,
// проигравший получает ErrAlreadyExecuted. Leader election (пакет leader)
// снижает число конфликтов, но для корректности не обязателен.
//
// Если очередь недоступна, Tick снимает claim текущего задания и
// возвращает ошибку: остальные задания страницы остаются ожидающими.
package scheduler
