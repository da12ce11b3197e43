package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrEmptyWorkerName — не задано имя worker.
	ErrEmptyWorkerName = errors.New("empty worker name")

	// ErrInvalidOperation — операция над несохранённым заданием.
	ErrInvalidOperation = errors.New("cannot mark an unsaved job as executed")

	// ErrAlreadyExecuted — задание уже забрано другим диспетчером.
	ErrAlreadyExecuted = errors.New("scheduled job already executed")
)
