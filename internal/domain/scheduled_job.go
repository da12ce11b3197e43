package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledJobState — производное состояние отложенного задания.
//
// Жизненный цикл:
//
//	PENDING → DUE → EXECUTED
//
// DUE не хранится: это PENDING задание, у которого наступило TsScheduled.
// Состояния FAILED нет: ScheduledJob фиксирует только факт попытки.
type ScheduledJobState string

const (
	// ScheduledJobPending — задание ещё не выполнено.
	ScheduledJobPending ScheduledJobState = "PENDING"

	// ScheduledJobDue — задание ожидает и время выполнения наступило.
	ScheduledJobDue ScheduledJobState = "DUE"

	// ScheduledJobExecuted — задание забрано на выполнение.
	ScheduledJobExecuted ScheduledJobState = "EXECUTED"
)

// ScheduledJob — запись "запустить worker в момент T" (возможно, повторяясь).
type ScheduledJob struct {
	// ID — уникальный идентификатор. uuid.Nil означает, что запись не сохранена.
	ID uuid.UUID `json:"id"`

	// WorkerName — имя worker, которому передаётся задание.
	WorkerName string `json:"worker_name"`

	// JobData — payload, передаваемый worker.
	JobData Payload `json:"job_data"`

	// TsScheduled — время, раньше которого задание не выполняется.
	TsScheduled time.Time `json:"ts_scheduled"`

	// TsExecuted — время, когда задание было забрано.
	// nil — задание ещё ожидает.
	TsExecuted *time.Time `json:"ts_executed,omitempty"`

	// Recurrence — шаблон повторения. nil для однократных заданий.
	Recurrence *RecurrencePattern `json:"recurrence,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// IsSaved возвращает true, если у задания есть сохранённый ID.
func (s *ScheduledJob) IsSaved() bool {
	return s.ID != uuid.Nil
}

// IsRecurring возвращает true для повторяющихся заданий.
func (s *ScheduledJob) IsRecurring() bool {
	return s.Recurrence != nil
}

// State вычисляет состояние задания относительно now.
func (s *ScheduledJob) State(now time.Time) ScheduledJobState {
	if s.TsExecuted != nil {
		return ScheduledJobExecuted
	}
	if !s.TsScheduled.After(now) {
		return ScheduledJobDue
	}
	return ScheduledJobPending
}

// IsDue проверяет, пора ли выполнять задание (граница включительная).
func (s *ScheduledJob) IsDue(now time.Time) bool {
	return s.State(now) == ScheduledJobDue
}

// MarkExecuted проставляет время выполнения.
func (s *ScheduledJob) MarkExecuted(at time.Time) {
	at = at.UTC()
	s.TsExecuted = &at
}
