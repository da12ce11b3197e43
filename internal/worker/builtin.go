package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/queue"
	"github.com/shaiso/Workman/internal/scheduler"
	"github.com/shaiso/Workman/internal/telemetry"
	"github.com/shaiso/Workman/internal/workflow"
)

// Имена встроенных worker.
const (
	ScheduledJobsWorker = "ScheduledJobs"
	WaitActionWorker    = workflow.WaitActionWorker
	EntityEventWorker   = "EntityEvent"
	WebhookWorker       = "Webhook"
)

// Ticker — один проход диспетчера отложенных заданий.
// Реализация: scheduler.Dispatcher.
type Ticker interface {
	Tick(ctx context.Context) (scheduler.TickResult, error)
}

// Workflows — операции workflow, доступные worker.
// Реализация: workflow.Service.
type Workflows interface {
	ResumeAction(ctx context.Context, actionID uuid.UUID, objType, entityID string, user *domain.User) error
	NotifyEvent(ctx context.Context, objType, entityID string, event domain.Event, user *domain.User) ([]uuid.UUID, error)
}

// Deps — зависимости встроенных worker.
// Worker с nil-зависимостью не регистрируется.
type Deps struct {
	Dispatcher Ticker
	Workflows  Workflows
	Webhook    *WebhookConfig
}

// DefaultRegistry создаёт реестр со встроенными worker.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	RegisterBuiltins(r, deps)
	return r
}

// RegisterBuiltins добавляет встроенные worker в существующий реестр.
//
// Порядок сборки процесса: реестр, Service, Dispatcher (с Service как
// Enqueuer), затем RegisterBuiltins.
func RegisterBuiltins(r *Registry, deps Deps) {
	if deps.Dispatcher != nil {
		r.Register(ScheduledJobsWorker, func() queue.Worker {
			return &ScheduledJobs{dispatcher: deps.Dispatcher}
		})
	}
	if deps.Workflows != nil {
		r.Register(WaitActionWorker, func() queue.Worker {
			return &WorkflowWaitAction{workflows: deps.Workflows}
		})
		r.Register(EntityEventWorker, func() queue.Worker {
			return &EntityEvent{workflows: deps.Workflows}
		})
	}
	if deps.Webhook != nil {
		cfg := *deps.Webhook
		r.Register(WebhookWorker, func() queue.Worker {
			return NewWebhook(cfg)
		})
	}
}

// ScheduledJobs переносит наступившие отложенные задания в очередь.
// Ставится по расписанию (например, раз в минуту).
type ScheduledJobs struct {
	dispatcher Ticker
}

// NewScheduledJobs создаёт worker ScheduledJobs.
func NewScheduledJobs(dispatcher Ticker) *ScheduledJobs {
	return &ScheduledJobs{dispatcher: dispatcher}
}

// Work выполняет один тик диспетчера.
func (w *ScheduledJobs) Work(ctx context.Context, job *domain.Job) error {
	result, err := w.dispatcher.Tick(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher tick: %w", err)
	}

	job.SetStatus(int64(result.Enqueued), int64(result.Due))
	if result.More {
		telemetry.FromContext(ctx).Info("scheduled jobs page is full, more are due", "due", result.Due)
	}
	return nil
}

// WorkflowWaitAction продолжает ветку workflow после wait_condition.
//
// Payload: action_id, obj_type, entity_id, user_id, account_id.
type WorkflowWaitAction struct {
	workflows Workflows
}

// NewWorkflowWaitAction создаёт worker WorkflowWaitAction.
func NewWorkflowWaitAction(workflows Workflows) *WorkflowWaitAction {
	return &WorkflowWaitAction{workflows: workflows}
}

// Work запускает дочерние действия ожидавшего действия.
func (w *WorkflowWaitAction) Work(ctx context.Context, job *domain.Job) error {
	actionID, err := uuid.Parse(job.Payload.String("action_id"))
	if err != nil {
		return fmt.Errorf("%w: action_id: %v", ErrInvalidPayload, err)
	}

	objType, entityID, err := entityRef(job.Payload)
	if err != nil {
		return err
	}

	return w.workflows.ResumeAction(ctx, actionID, objType, entityID, userFrom(job.Payload))
}

// EntityEvent асинхронно уведомляет workflow о событии сущности.
//
// Payload: obj_type, entity_id, event, user_id, account_id.
type EntityEvent struct {
	workflows Workflows
}

// NewEntityEvent создаёт worker EntityEvent.
func NewEntityEvent(workflows Workflows) *EntityEvent {
	return &EntityEvent{workflows: workflows}
}

// Work запускает workflow, слушающие событие.
func (w *EntityEvent) Work(ctx context.Context, job *domain.Job) error {
	objType, entityID, err := entityRef(job.Payload)
	if err != nil {
		return err
	}

	event, ok := domain.ParseEvent(job.Payload.String("event"))
	if !ok {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidPayload, job.Payload.String("event"))
	}

	ids, err := w.workflows.NotifyEvent(ctx, objType, entityID, event, userFrom(job.Payload))
	if err != nil {
		return err
	}

	telemetry.FromContext(ctx).Info("entity event processed",
		"obj_type", objType,
		"entity_id", entityID,
		"event", event,
		"instances", len(ids),
	)
	return nil
}

// entityRef извлекает obj_type и entity_id.
func entityRef(p domain.Payload) (objType, entityID string, err error) {
	objType = p.String("obj_type")
	entityID = p.String("entity_id")
	if objType == "" || entityID == "" {
		return "", "", fmt.Errorf("%w: obj_type and entity_id are required", ErrInvalidPayload)
	}
	return objType, entityID, nil
}

// userFrom возвращает пользователя из payload или nil.
func userFrom(p domain.Payload) *domain.User {
	userID := p.String("user_id")
	if userID == "" {
		return nil
	}
	return &domain.User{ID: userID, AccountID: p.String("account_id")}
}
