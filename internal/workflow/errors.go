package workflow

import "errors"

// Ошибки workflow.
var (
	// ErrActionNotFound — для типа действия не зарегистрирован исполнитель.
	ErrActionNotFound = errors.New("action executor not found")

	// ErrInvalidArgument — пустой или некорректный аргумент.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEntityNotSaved — действие требует сохранённую сущность.
	ErrEntityNotSaved = errors.New("entity is not saved")

	// ErrActionPanic — исполнитель действия паниковал.
	ErrActionPanic = errors.New("action executor panicked")
)
