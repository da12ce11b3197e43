package engine

import (
	"fmt"

	"github.com/shaiso/Workman/internal/domain"
)

// TypeChecker сообщает, зарегистрирован ли тип действия.
type TypeChecker func(typeName string) bool

// Validate выполняет полную валидацию набора действий workflow.
//
// Проверяет:
// - Наличие действий
// - Непустой и зарегистрированный тип каждого действия
// - Принадлежность действий одному workflow
// - Структуру леса (делегируется BuildForest)
//
// known может быть nil, тогда типы проверяются только на пустоту.
func Validate(workflow *domain.Workflow, actions []domain.WorkflowAction, known TypeChecker) (*Forest, error) {
	if len(actions) == 0 {
		return nil, ErrEmptyActions
	}

	for i := range actions {
		if err := ValidateAction(workflow, &actions[i], known); err != nil {
			return nil, err
		}
	}

	return BuildForest(actions)
}

// ValidateAction валидирует одно действие.
func ValidateAction(workflow *domain.Workflow, action *domain.WorkflowAction, known TypeChecker) error {
	if action.TypeName == "" {
		return NewValidationError(action.ID, "type_name", "action has empty type name", ErrEmptyTypeName)
	}

	if known != nil && !known(action.TypeName) {
		return NewValidationError(action.ID, "type_name",
			fmt.Sprintf("unknown action type: %s", action.TypeName), ErrUnknownActionType)
	}

	if workflow != nil && action.WorkflowID != workflow.ID {
		return NewValidationError(action.ID, "workflow_id",
			fmt.Sprintf("action belongs to workflow %s, not %s", action.WorkflowID, workflow.ID), ErrForeignAction)
	}

	return nil
}
