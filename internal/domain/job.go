package domain

import (
	"sync"
	"time"
)

// Job — единица работы, переданная одному Worker.
//
// Job создаётся тем, кто ставит работу в очередь, передаётся ровно одному
// вызову Worker.Work и отбрасывается после его завершения. Для durable
// очередей сообщение остаётся за backend до подтверждения (ack).
type Job struct {
	// ID — handle задания, выданный очередью при постановке.
	ID string `json:"id"`

	// WorkerName — имя worker, который обрабатывает задание.
	WorkerName string `json:"worker_name"`

	// Payload — данные задания.
	Payload Payload `json:"payload"`

	// EnqueuedAt — время постановки в очередь.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// NotBefore — задание не выдаётся раньше этого времени.
	// Нулевое значение — без задержки.
	NotBefore time.Time `json:"not_before,omitempty"`

	mu          sync.RWMutex
	numerator   int64
	denominator int64
}

// NewJob создаёт новое задание.
func NewJob(id, workerName string, payload Payload) *Job {
	if payload == nil {
		payload = Payload{}
	}
	return &Job{
		ID:         id,
		WorkerName: workerName,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// SetStatus обновляет счётчики прогресса ("обработано N из M").
func (j *Job) SetStatus(numerator, denominator int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.numerator = numerator
	j.denominator = denominator
}

// Status возвращает текущие счётчики прогресса.
func (j *Job) Status() (numerator, denominator int64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.numerator, j.denominator
}

// Progress возвращает долю выполненной работы в диапазоне [0, 1].
// Если знаменатель не задан, возвращает 0.
func (j *Job) Progress() float64 {
	n, d := j.Status()
	if d <= 0 {
		return 0
	}
	p := float64(n) / float64(d)
	if p > 1 {
		return 1
	}
	return p
}

// IsReady проверяет, можно ли выдать задание в момент now.
func (j *Job) IsReady(now time.Time) bool {
	return j.NotBefore.IsZero() || !now.Before(j.NotBefore)
}
