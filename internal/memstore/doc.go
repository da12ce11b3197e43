// Package memstore — хранилища в памяти процесса.
//
// Реализуют те же интерфейсы, что и PostgreSQL репозитории из repo:
//   - ScheduledJobs — scheduler.Store
//   - Workflows     — workflow.DataMapper
//   - Entities      — workflow.EntityStore
//
// Используются в тестах и в режиме без базы данных (database.url пустой).
// Ошибки "не найдено" — repo.ErrNotFound, как у PostgreSQL реализаций.
package memstore
