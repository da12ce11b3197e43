package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/repo"
)

// Workflows — хранилище workflow, действий и экземпляров в памяти.
type Workflows struct {
	mu        sync.Mutex
	workflows map[uuid.UUID]*domain.Workflow
	wfOrder   []uuid.UUID
	actions   map[uuid.UUID][]domain.WorkflowAction
	instances []domain.WorkflowInstance
}

// NewWorkflows создаёт пустое хранилище.
func NewWorkflows() *Workflows {
	return &Workflows{
		workflows: make(map[uuid.UUID]*domain.Workflow),
		actions:   make(map[uuid.UUID][]domain.WorkflowAction),
	}
}

// SaveWorkflow сохраняет workflow и заменяет его действия.
func (s *Workflows) SaveWorkflow(_ context.Context, wf *domain.Workflow, actions []domain.WorkflowAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; !exists {
		s.wfOrder = append(s.wfOrder, wf.ID)
	}
	c := *wf
	s.workflows[wf.ID] = &c
	s.actions[wf.ID] = append([]domain.WorkflowAction(nil), actions...)
	return nil
}

// GetWorkflow возвращает workflow по ID.
func (s *Workflows) GetWorkflow(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *wf
	return &c, nil
}

// ActiveWorkflowsForEvent возвращает активные workflow типа objType, подписанные на event.
func (s *Workflows) ActiveWorkflowsForEvent(_ context.Context, objType string, event domain.Event) ([]domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Workflow
	for _, id := range s.wfOrder {
		wf := s.workflows[id]
		if wf.Active && wf.ObjType == objType && wf.ListensTo(event) {
			result = append(result, *wf)
		}
	}
	return result, nil
}

// GetActions возвращает действия workflow с заданным родителем (nil — корневые).
func (s *Workflows) GetActions(_ context.Context, workflowID uuid.UUID, parentID *uuid.UUID) ([]domain.WorkflowAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.WorkflowAction
	for _, a := range s.actions[workflowID] {
		switch {
		case parentID == nil && a.ParentActionID == nil:
			result = append(result, a)
		case parentID != nil && a.ParentActionID != nil && *a.ParentActionID == *parentID:
			result = append(result, a)
		}
	}
	return result, nil
}

// GetAction возвращает действие по ID.
func (s *Workflows) GetAction(_ context.Context, id uuid.UUID) (*domain.WorkflowAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, actions := range s.actions {
		for i := range actions {
			if actions[i].ID == id {
				a := actions[i]
				return &a, nil
			}
		}
	}
	return nil, repo.ErrNotFound
}

// CreateInstance сохраняет экземпляр workflow.
// Для singleton экземпляр не создаётся, если у сущности он уже есть.
func (s *Workflows) CreateInstance(_ context.Context, inst *domain.WorkflowInstance, singleton bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if singleton {
		for _, existing := range s.instances {
			if existing.WorkflowID == inst.WorkflowID && existing.EntityID == inst.EntityID {
				return false, nil
			}
		}
	}
	s.instances = append(s.instances, *inst)
	return true, nil
}

// Instances возвращает все экземпляры workflow.
func (s *Workflows) Instances(workflowID uuid.UUID) []domain.WorkflowInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.WorkflowInstance
	for _, inst := range s.instances {
		if inst.WorkflowID == workflowID {
			result = append(result, inst)
		}
	}
	return result
}
