package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/engine"
)

// Типы встроенных действий.
const (
	TypeUpdateField    = "update_field"
	TypeCheckCondition = "check_condition"
	TypeWaitCondition  = "wait_condition"
	TypeAssign         = "assign"
	TypeSendEmail      = "send_email"
)

// WaitActionWorker — worker, продолжающий ветку после wait_condition.
const WaitActionWorker = "WorkflowWaitAction"

// Scheduler откладывает задание на момент at.
// Реализация: scheduler.Service.
type Scheduler interface {
	ScheduleAtTime(ctx context.Context, workerName string, at time.Time, payload domain.Payload) (uuid.UUID, error)
}

// Deps — зависимости встроенных действий.
type Deps struct {
	Entities  EntityStore
	Scheduler Scheduler
	Notifier  Notifier
	Logger    *slog.Logger

	// AppURL — базовый адрес приложения для <%entity_link%>.
	AppURL string

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	// Pick выбирает индекс в [0, n) для assign (default: math/rand/v2).
	Pick func(n int) int
}

// DefaultFactory создаёт реестр со всеми встроенными действиями.
func DefaultFactory(deps Deps) *Factory {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Pick == nil {
		deps.Pick = rand.IntN
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewLogNotifier(deps.Logger)
	}

	f := NewFactory()
	f.RegisterExecutor(TypeUpdateField, &UpdateFieldAction{deps: deps})
	f.RegisterExecutor(TypeCheckCondition, &CheckConditionAction{deps: deps})
	f.RegisterExecutor(TypeWaitCondition, &WaitConditionAction{deps: deps})
	f.RegisterExecutor(TypeAssign, &AssignAction{deps: deps})
	f.RegisterExecutor(TypeSendEmail, &SendEmailAction{deps: deps})
	return f
}

// params возвращает данные действия с подставленными merge-полями.
func (d *Deps) params(action *domain.WorkflowAction, entity *domain.Entity) map[string]any {
	merged, _ := engine.MergeValue(action.Data, &engine.MergeContext{Entity: entity, AppURL: d.AppURL}).(map[string]any)
	if merged == nil {
		merged = map[string]any{}
	}
	return merged
}

// UpdateFieldAction устанавливает значение поля сущности.
//
// Параметры: update_field, update_value. Для полей-списков значение
// добавляется, если его там ещё нет.
type UpdateFieldAction struct {
	deps Deps
}

func (a *UpdateFieldAction) Execute(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) (bool, error) {
	if !entity.IsSaved() {
		return false, ErrEntityNotSaved
	}

	params := a.deps.params(action, entity)
	field := paramString(params, "update_field")
	if field == "" {
		return false, fmt.Errorf("%w: update_field is required", ErrInvalidArgument)
	}
	value := params["update_value"]

	if current, ok := entity.GetValue(field).([]any); ok {
		for _, item := range current {
			if equalValues(item, value) {
				return true, nil
			}
		}
		entity.SetValue(field, append(append([]any(nil), current...), value))
	} else {
		entity.SetValue(field, value)
	}

	if _, err := a.deps.Entities.Save(ctx, entity, user); err != nil {
		return false, fmt.Errorf("save entity: %w", err)
	}
	return true, nil
}

// CheckConditionAction продолжает ветку, если сущность удовлетворяет условиям.
//
// Параметры: conditions — список {blogic, field_name, operator, value}.
type CheckConditionAction struct {
	deps Deps
}

func (a *CheckConditionAction) Execute(_ context.Context, action *domain.WorkflowAction, entity *domain.Entity, _ *domain.User) (bool, error) {
	if !entity.IsSaved() {
		return false, nil
	}

	conditions, err := decodeConditions(a.deps.params(action, entity)["conditions"])
	if err != nil {
		return false, err
	}
	return MatchConditions(conditions, entity)
}

// WaitConditionAction откладывает дочерние действия.
//
// Параметры: when_unit (minute|hour|day|week|month|year), when_interval.
// Без параметров дочерние действия выполняются сразу. Иначе планируется
// WorkflowWaitAction и возвращается false: ветку продолжит worker.
type WaitConditionAction struct {
	deps Deps
}

func (a *WaitConditionAction) Execute(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) (bool, error) {
	if !entity.IsSaved() {
		return false, nil
	}

	params := a.deps.params(action, entity)
	unit := paramString(params, "when_unit")
	interval := paramInt(params, "when_interval")
	if unit == "" || interval <= 0 {
		return true, nil
	}

	executeAt, err := AddInterval(a.deps.Now(), unit, interval)
	if err != nil {
		return false, err
	}

	payload := domain.Payload{
		"action_id":  action.ID.String(),
		"obj_type":   entity.ObjType,
		"entity_id":  entity.ID,
		"user_id":    user.ID,
		"account_id": user.AccountID,
	}
	if _, err := a.deps.Scheduler.ScheduleAtTime(ctx, WaitActionWorker, executeAt, payload); err != nil {
		return false, fmt.Errorf("schedule wait: %w", err)
	}
	return false, nil
}

// AddInterval прибавляет interval единиц unit к t.
func AddInterval(t time.Time, unit string, interval int) (time.Time, error) {
	switch domain.RecurrenceType(unit) {
	case domain.RecurMinute:
		return t.Add(time.Duration(interval) * time.Minute), nil
	case domain.RecurHour:
		return t.Add(time.Duration(interval) * time.Hour), nil
	case domain.RecurDay:
		return t.AddDate(0, 0, interval), nil
	case domain.RecurWeek:
		return t.AddDate(0, 0, 7*interval), nil
	case domain.RecurMonth:
		return t.AddDate(0, interval, 0), nil
	case domain.RecurYear:
		return t.AddDate(interval, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown time unit %q", ErrInvalidArgument, unit)
}

// AssignAction назначает сущности случайного пользователя из списка.
//
// Параметры: field — поле для записи, users — ID через запятую.
type AssignAction struct {
	deps Deps
}

func (a *AssignAction) Execute(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) (bool, error) {
	params := a.deps.params(action, entity)
	field := paramString(params, "field")
	if field == "" {
		return false, fmt.Errorf("%w: field is required", ErrInvalidArgument)
	}

	var users []string
	for _, id := range strings.Split(paramString(params, "users"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			users = append(users, id)
		}
	}
	if len(users) == 0 {
		return false, nil
	}

	entity.SetValue(field, users[a.deps.Pick(len(users))])
	if _, err := a.deps.Entities.Save(ctx, entity, user); err != nil {
		return false, fmt.Errorf("save entity: %w", err)
	}
	return true, nil
}

// SendEmailAction отправляет уведомление через Notifier.
//
// Параметры: to, subject, body. Merge-поля подставляются во все три.
type SendEmailAction struct {
	deps Deps
}

func (a *SendEmailAction) Execute(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, _ *domain.User) (bool, error) {
	params := a.deps.params(action, entity)

	msg := Message{
		To:      splitList(paramString(params, "to")),
		Subject: paramString(params, "subject"),
		Body:    paramString(params, "body"),
	}
	if len(msg.To) == 0 {
		return false, fmt.Errorf("%w: to is required", ErrInvalidArgument)
	}

	if err := a.deps.Notifier.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("send email: %w", err)
	}
	return true, nil
}

// --- Helpers ---

func paramString(params map[string]any, key string) string {
	return engine.FormatValue(params[key])
}

func paramInt(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// decodeConditions приводит параметр conditions к []domain.Condition.
func decodeConditions(raw any) ([]domain.Condition, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []domain.Condition:
		return v, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: conditions: %v", ErrInvalidArgument, err)
	}
	var conditions []domain.Condition
	if err := json.Unmarshal(data, &conditions); err != nil {
		return nil, fmt.Errorf("%w: conditions: %v", ErrInvalidArgument, err)
	}
	return conditions, nil
}
