package memstore

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/repo"
)

// Entities — хранилище сущностей в памяти.
type Entities struct {
	mu       sync.Mutex
	entities map[string]*domain.Entity
	saves    int
}

// NewEntities создаёт пустое хранилище.
func NewEntities() *Entities {
	return &Entities{entities: make(map[string]*domain.Entity)}
}

func entityKey(objType, id string) string {
	return objType + "/" + id
}

// Get возвращает копию сущности.
func (s *Entities) Get(_ context.Context, objType, id string) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[entityKey(objType, id)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyEntity(e), nil
}

// Save сохраняет сущность. Несохранённая сущность получает новый ID.
func (s *Entities) Save(_ context.Context, entity *domain.Entity, _ *domain.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	s.entities[entityKey(entity.ObjType, entity.ID)] = copyEntity(entity)
	s.saves++
	return entity.ID, nil
}

// Saves возвращает количество вызовов Save.
func (s *Entities) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func copyEntity(e *domain.Entity) *domain.Entity {
	c := *e
	c.Fields = maps.Clone(e.Fields)
	if c.Fields == nil {
		c.Fields = make(map[string]any)
	}
	return &c
}
