package engine

import (
	"errors"

	"github.com/google/uuid"
)

// Ошибки валидации дерева действий.
var (
	// ErrEmptyActions — workflow не содержит действий.
	ErrEmptyActions = errors.New("workflow has no actions")

	// ErrEmptyActionID — действие не имеет ID.
	ErrEmptyActionID = errors.New("action has empty ID")

	// ErrDuplicateActionID — несколько действий с одинаковым ID.
	ErrDuplicateActionID = errors.New("duplicate action ID")

	// ErrEmptyTypeName — у действия не задан тип.
	ErrEmptyTypeName = errors.New("action has empty type name")

	// ErrUnknownActionType — тип действия не зарегистрирован.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrMissingParent — родительское действие не найдено в workflow.
	ErrMissingParent = errors.New("action parent not found")

	// ErrSelfParent — действие ссылается на себя как на родителя.
	ErrSelfParent = errors.New("action is its own parent")

	// ErrForeignAction — действие принадлежит другому workflow.
	ErrForeignAction = errors.New("action belongs to another workflow")

	// ErrCyclicDependency — цепочка parent_action_id образует цикл.
	ErrCyclicDependency = errors.New("cyclic action dependency detected")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	ActionID uuid.UUID // ID действия, где произошла ошибка
	Field    string    // поле, вызвавшее ошибку
	Message  string    // описание ошибки
	Err      error     // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.ActionID != uuid.Nil {
		return "action " + e.ActionID.String() + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(actionID uuid.UUID, field, message string, err error) *ValidationError {
	return &ValidationError{
		ActionID: actionID,
		Field:    field,
		Message:  message,
		Err:      err,
	}
}
