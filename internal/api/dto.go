package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
)

// maxBodySize — ограничение размера тела запроса.
const maxBodySize = 1 << 20

// Worker DTOs

// JobRequest — запрос на выполнение или постановку задания.
type JobRequest struct {
	Payload      domain.Payload `json:"payload,omitempty"`
	DelaySeconds int            `json:"delay_seconds,omitempty"`
}

// EnqueueResponse — ответ на постановку задания.
type EnqueueResponse struct {
	Handle  string `json:"handle"`
	Worker  string `json:"worker"`
	Backend string `json:"backend"`
}

// RunResponse — ответ на синхронное выполнение.
type RunResponse struct {
	Worker string `json:"worker"`
	Status string `json:"status"`
}

// PurgeResponse — ответ на очистку очереди worker.
type PurgeResponse struct {
	Worker string `json:"worker"`
	Purged int    `json:"purged"`
}

// Event DTOs

// EventRequest — событие сущности.
type EventRequest struct {
	ObjType   string `json:"obj_type"`
	EntityID  string `json:"entity_id"`
	Event     string `json:"event"`
	UserID    string `json:"user_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`

	// Async — поставить обработку в очередь (worker EntityEvent).
	Async bool `json:"async,omitempty"`
}

// EventResponse — запущенные экземпляры workflow или handle задания.
type EventResponse struct {
	InstanceIDs []uuid.UUID `json:"instance_ids"`
	Handle      string      `json:"handle,omitempty"`
}

// ScheduledJob DTOs

// CreateScheduledJobRequest — запрос на создание отложенного задания.
//
// Варианты:
//   - execute_at — однократный запуск
//   - recurrence_type + interval — повторение с первым запуском сейчас
//   - recurrence — произвольный шаблон (в том числе cron)
type CreateScheduledJobRequest struct {
	WorkerName     string                    `json:"worker_name"`
	Payload        domain.Payload            `json:"payload,omitempty"`
	ExecuteAt      *time.Time                `json:"execute_at,omitempty"`
	RecurrenceType domain.RecurrenceType     `json:"recurrence_type,omitempty"`
	Interval       int                       `json:"interval,omitempty"`
	Recurrence     *domain.RecurrencePattern `json:"recurrence,omitempty"`
}

// ScheduledJobResponse — ответ с отложенным заданием.
type ScheduledJobResponse struct {
	ID          uuid.UUID                 `json:"id"`
	WorkerName  string                    `json:"worker_name"`
	JobData     domain.Payload            `json:"job_data"`
	State       domain.ScheduledJobState  `json:"state"`
	TsScheduled time.Time                 `json:"ts_scheduled"`
	TsExecuted  *time.Time                `json:"ts_executed,omitempty"`
	Recurrence  *domain.RecurrencePattern `json:"recurrence,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// ScheduledJobFromDomain конвертирует domain.ScheduledJob в ScheduledJobResponse.
func ScheduledJobFromDomain(j *domain.ScheduledJob, now time.Time) ScheduledJobResponse {
	return ScheduledJobResponse{
		ID:          j.ID,
		WorkerName:  j.WorkerName,
		JobData:     j.JobData,
		State:       j.State(now),
		TsScheduled: j.TsScheduled,
		TsExecuted:  j.TsExecuted,
		Recurrence:  j.Recurrence,
		CreatedAt:   j.CreatedAt,
	}
}

// Workflow DTOs

// SaveWorkflowRequest — workflow вместе с деревом действий.
type SaveWorkflowRequest struct {
	Workflow domain.Workflow         `json:"workflow"`
	Actions  []domain.WorkflowAction `json:"actions"`
}

// WorkflowResponse — сохранённый workflow.
type WorkflowResponse struct {
	Workflow domain.Workflow         `json:"workflow"`
	Actions  []domain.WorkflowAction `json:"actions"`
}

// decodeJSON разбирает тело запроса.
// Числа декодируются как json.Number, чтобы payload не терял точность.
// Пустое тело допустимо: v остаётся нулевым.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodySize {
		return fmt.Errorf("request body exceeds %d bytes", maxBodySize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
