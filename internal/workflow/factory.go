package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Workman/internal/domain"
)

// ActionExecutor выполняет действие одного типа над сущностью.
//
// Возвращает true, если действие выполнено и можно переходить к дочерним.
// (false, nil) — штатный отрицательный результат (условие не выполнено).
// (false, err) — сбой, err попадает в лог.
type ActionExecutor interface {
	Execute(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) (bool, error)
}

// ExecutorFunc — адаптер функции к ActionExecutor.
type ExecutorFunc func(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) (bool, error)

// Execute вызывает f.
func (f ExecutorFunc) Execute(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) (bool, error) {
	return f(ctx, action, entity, user)
}

// Constructor создаёт исполнитель действия.
type Constructor func() ActionExecutor

// Factory — реестр типов действий.
//
// Отображает имя типа в конструктор исполнителя. Потокобезопасен.
type Factory struct {
	mu    sync.RWMutex
	types map[string]Constructor
}

// NewFactory создаёт пустой реестр.
func NewFactory() *Factory {
	return &Factory{
		types: make(map[string]Constructor),
	}
}

// Register регистрирует тип действия.
// Если тип уже существует, он будет перезаписан.
func (f *Factory) Register(typeName string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[typeName] = ctor
}

// RegisterExecutor регистрирует готовый исполнитель без состояния.
func (f *Factory) RegisterExecutor(typeName string, executor ActionExecutor) {
	f.Register(typeName, func() ActionExecutor { return executor })
}

// Create создаёт исполнитель для типа действия.
// Пустой тип — ErrInvalidArgument, незарегистрированный — ErrActionNotFound.
func (f *Factory) Create(typeName string) (ActionExecutor, error) {
	if typeName == "" {
		return nil, fmt.Errorf("%w: empty action type name", ErrInvalidArgument)
	}

	f.mu.RLock()
	ctor, exists := f.types[typeName]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, typeName)
	}
	return ctor(), nil
}

// Has проверяет, зарегистрирован ли тип.
func (f *Factory) Has(typeName string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.types[typeName]
	return exists
}

// Types возвращает список зарегистрированных типов.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.types))
	for t := range f.types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
