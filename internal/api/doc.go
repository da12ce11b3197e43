// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go               — Handler с DI (сервисы, проверка готовности, logger)
//   - routes.go                — регистрация маршрутов, /health и /metrics
//   - middleware.go            — middleware (logging, recovery)
//   - response.go              — унифицированные JSON-ответы и отображение ошибок в HTTP-коды
//   - dto.go                   — Data Transfer Objects (request/response)
//   - worker_handler.go        — обработчики для /workers
//   - scheduled_job_handler.go — обработчики для /scheduled-jobs
//   - event_handler.go         — обработчик /events
//   - workflow_handler.go      — обработчик /workflows
//
// Ошибки отдаются в виде {"error": {"code": ..., "message": ...}}:
// неизвестный worker и отсутствующие записи — 404, ошибка worker — 422,
// повторный claim — 409, некорректный запрос — 400.
package api
