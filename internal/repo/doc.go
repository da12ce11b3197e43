// Package repo — PostgreSQL репозитории (pgx/v5).
//
//   - ScheduledJobRepo — scheduled_jobs, атомарный claim через ts_executed IS NULL
//   - WorkflowRepo     — workflows, workflow_actions, workflow_instances
//   - EntityRepo       — entities, поля в JSONB
//
// Схема встроена в бинарь (migrations/*.sql) и применяется Migrate.
package repo
