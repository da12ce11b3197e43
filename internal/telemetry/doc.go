// Package telemetry содержит наблюдаемость сервисов Workman.
//
// Включает:
//   - logging.go — настройка log/slog и логгер в контексте
//   - metrics.go — Prometheus метрики очереди, планировщика и workflow
package telemetry
