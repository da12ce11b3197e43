package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event — событие жизненного цикла сущности, запускающее workflow.
type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventDelete Event = "delete"

	// EventManual — ручной запуск пользователем.
	EventManual Event = "manual"
)

// ParseEvent разбирает имя события. Пустая строка и неизвестные имена отклоняются.
func ParseEvent(s string) (Event, bool) {
	switch e := Event(s); e {
	case EventCreate, EventUpdate, EventDelete, EventManual:
		return e, true
	}
	return "", false
}

// Workflow — настроенный набор действий, привязанный к типу сущности и событиям.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — имя для отображения.
	Name string `json:"name"`

	// ObjType — тип сущности, на события которой подписан workflow.
	ObjType string `json:"obj_type"`

	// Триггеры.
	OnCreate    bool `json:"on_create"`
	OnUpdate    bool `json:"on_update"`
	OnDelete    bool `json:"on_delete"`
	AllowManual bool `json:"allow_manual"`

	// Active — неактивные workflow не запускаются.
	Active bool `json:"active"`

	// Singleton — не более одного экземпляра на одну сущность.
	Singleton bool `json:"singleton"`

	// Conditions — предусловия, проверяемые перед запуском.
	Conditions []Condition `json:"conditions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListensTo проверяет, подписан ли workflow на событие.
func (w *Workflow) ListensTo(event Event) bool {
	switch event {
	case EventCreate:
		return w.OnCreate
	case EventUpdate:
		return w.OnUpdate
	case EventDelete:
		return w.OnDelete
	case EventManual:
		return w.AllowManual
	}
	return false
}

// WorkflowAction — узел дерева действий workflow.
type WorkflowAction struct {
	// ID — уникальный идентификатор действия.
	ID uuid.UUID `json:"id"`

	// WorkflowID — workflow-владелец.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// ParentActionID — родительское действие. nil для корневых действий.
	ParentActionID *uuid.UUID `json:"parent_action_id,omitempty"`

	// Name — имя для отображения.
	Name string `json:"name,omitempty"`

	// TypeName — тип действия, выбирает ActionExecutor.
	TypeName string `json:"type_name"`

	// Data — конфигурация действия, зависит от типа.
	Data map[string]any `json:"data,omitempty"`
}

// IsRoot возвращает true для действий без родителя.
func (a *WorkflowAction) IsRoot() bool {
	return a.ParentActionID == nil
}

// WorkflowInstance — факт запуска workflow для конкретной сущности.
type WorkflowInstance struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	ObjType    string    `json:"obj_type"`
	EntityID   string    `json:"entity_id"`
	StartedBy  string    `json:"started_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Condition — условие над полем сущности.
type Condition struct {
	// Blogic — связка с предыдущим условием: "and" (по умолчанию) или "or".
	Blogic string `json:"blogic,omitempty"`

	// FieldName — имя поля сущности.
	FieldName string `json:"field_name"`

	// Operator — оператор сравнения, например "is_equal".
	Operator string `json:"operator"`

	// Value — значение для сравнения.
	Value any `json:"value,omitempty"`
}
