package worker

import (
	"errors"

	"github.com/shaiso/Workman/internal/queue"
)

// Ошибки воркера.
var (
	// ErrWorkerNotFound — нет worker с таким именем.
	// Совпадает с ошибкой очереди: планировщик проверяет имя до сохранения.
	ErrWorkerNotFound = queue.ErrWorkerNotFound

	// ErrWorkerFailed — worker вернул ошибку или упал с panic.
	// Совпадает с ошибкой очереди, чтобы errors.Is работал одинаково
	// для ProcessJob и ProcessQueue.
	ErrWorkerFailed = queue.ErrWorkerFailed

	// ErrInvalidPayload — в payload не хватает обязательных полей.
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrWebhookRequest — HTTP-запрос webhook завершился ошибкой.
	ErrWebhookRequest = errors.New("webhook request failed")
)
