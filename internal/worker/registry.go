package worker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Workman/internal/queue"
)

// Factory создаёт экземпляр worker.
// Вызывается лениво, при первом обращении к имени.
type Factory func() queue.Worker

// Registry — реестр worker по имени.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	version   uint64
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register добавляет фабрику worker. Повторная регистрация заменяет прежнюю.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	r.version++
}

// RegisterWorker регистрирует готовый экземпляр worker.
func (r *Registry) RegisterWorker(name string, w queue.Worker) {
	r.Register(name, func() queue.Worker { return w })
}

// Get создаёт worker по имени.
func (r *Registry) Get(name string) (queue.Worker, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok || factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrWorkerNotFound, name)
	}
	return factory(), nil
}

// Has проверяет, зарегистрирован ли worker.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names возвращает отсортированные имена worker.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version растёт при каждой регистрации.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
