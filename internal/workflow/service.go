package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/engine"
	"github.com/shaiso/Workman/internal/telemetry"
)

// DefaultActionTimeout — таймаут одного действия.
const DefaultActionTimeout = 30 * time.Second

// DataMapper — хранилище workflow.
//
// Реализации: repo.WorkflowRepo (PostgreSQL), memstore.Workflows.
type DataMapper interface {
	// SaveWorkflow сохраняет workflow и полностью заменяет его действия.
	SaveWorkflow(ctx context.Context, wf *domain.Workflow, actions []domain.WorkflowAction) error

	// GetWorkflow возвращает workflow по ID.
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)

	// ActiveWorkflowsForEvent возвращает активные workflow типа objType, подписанные на event.
	ActiveWorkflowsForEvent(ctx context.Context, objType string, event domain.Event) ([]domain.Workflow, error)

	// GetActions возвращает действия с заданным родителем (nil — корневые) в стабильном порядке.
	GetActions(ctx context.Context, workflowID uuid.UUID, parentID *uuid.UUID) ([]domain.WorkflowAction, error)

	// GetAction возвращает действие по ID.
	GetAction(ctx context.Context, id uuid.UUID) (*domain.WorkflowAction, error)

	// CreateInstance сохраняет экземпляр. Для singleton возвращает false,
	// если у сущности уже есть экземпляр этого workflow.
	CreateInstance(ctx context.Context, inst *domain.WorkflowInstance, singleton bool) (bool, error)
}

// EntityStore — внешнее хранилище сущностей.
//
// Реализации: repo.EntityRepo (PostgreSQL), memstore.Entities.
type EntityStore interface {
	Get(ctx context.Context, objType, id string) (*domain.Entity, error)
	Save(ctx context.Context, entity *domain.Entity, user *domain.User) (string, error)
}

// Service запускает workflow по событиям сущностей.
type Service struct {
	mapper        DataMapper
	entities      EntityStore
	factory       *Factory
	logger        *slog.Logger
	now           func() time.Time
	actionTimeout time.Duration
}

// Config — конфигурация Service.
type Config struct {
	Mapper   DataMapper
	Entities EntityStore
	Factory  *Factory
	Logger   *slog.Logger

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	// ActionTimeout — таймаут одного действия (default: 30s).
	ActionTimeout time.Duration
}

// NewService создаёт новый Service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.Factory == nil {
		cfg.Factory = NewFactory()
	}

	return &Service{
		mapper:        cfg.Mapper,
		entities:      cfg.Entities,
		factory:       cfg.Factory,
		logger:        cfg.Logger,
		now:           cfg.Now,
		actionTimeout: cfg.ActionTimeout,
	}
}

// Factory возвращает реестр типов действий.
func (s *Service) Factory() *Factory {
	return s.factory
}

// run — состояние одного запуска дерева действий.
type run struct {
	visited map[uuid.UUID]bool
}

func newRun() *run {
	return &run{visited: make(map[uuid.UUID]bool)}
}

// RunWorkflowsOnEvent запускает активные workflow, подписанные на событие сущности.
//
// Возвращает ID созданных экземпляров: по одному на запущенный workflow.
// Workflow с невыполненным предусловием или уже запущенный singleton
// не запускается. Ошибки действий и отдельных workflow логируются и не
// прерывают остальные; ошибка возвращается только если не удалось
// получить список workflow.
func (s *Service) RunWorkflowsOnEvent(ctx context.Context, entity *domain.Entity, event domain.Event, user *domain.User) ([]uuid.UUID, error) {
	if entity == nil || entity.ObjType == "" {
		return nil, fmt.Errorf("%w: entity without obj_type", ErrInvalidArgument)
	}
	if _, ok := domain.ParseEvent(string(event)); !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidArgument, event)
	}
	if user == nil {
		user = domain.SystemUser
	}

	workflows, err := s.mapper.ActiveWorkflowsForEvent(ctx, entity.ObjType, event)
	if err != nil {
		return nil, fmt.Errorf("get active workflows: %w", err)
	}

	log := telemetry.WithEntity(s.logger, entity.ObjType, entity.ID)

	var started []uuid.UUID
	for i := range workflows {
		if err := ctx.Err(); err != nil {
			return started, err
		}

		wf := &workflows[i]
		instanceID, ok := s.startWorkflow(ctx, wf, entity, user, log.With("workflow_id", wf.ID, "event", event))
		if !ok {
			continue
		}

		telemetry.WorkflowsStarted.WithLabelValues(entity.ObjType, string(event)).Inc()
		started = append(started, instanceID)
	}

	return started, nil
}

// startWorkflow проверяет предусловия, создаёт экземпляр и выполняет корневые действия.
func (s *Service) startWorkflow(ctx context.Context, wf *domain.Workflow, entity *domain.Entity, user *domain.User, log *slog.Logger) (uuid.UUID, bool) {
	matched, err := MatchConditions(wf.Conditions, entity)
	if err != nil {
		log.Error("invalid workflow conditions", "error", err)
		return uuid.Nil, false
	}
	if !matched {
		log.Debug("workflow conditions not met")
		return uuid.Nil, false
	}

	inst := &domain.WorkflowInstance{
		ID:         uuid.New(),
		WorkflowID: wf.ID,
		ObjType:    entity.ObjType,
		EntityID:   entity.ID,
		StartedBy:  user.ID,
		CreatedAt:  s.now().UTC(),
	}
	created, err := s.mapper.CreateInstance(ctx, inst, wf.Singleton)
	if err != nil {
		log.Error("failed to create workflow instance", "error", err)
		return uuid.Nil, false
	}
	if !created {
		log.Debug("singleton workflow already has an instance for entity")
		return uuid.Nil, false
	}

	log.Info("running workflow", "instance_id", inst.ID)

	actions, err := s.mapper.GetActions(ctx, wf.ID, nil)
	if err != nil {
		// Экземпляр создан: workflow считается запущенным
		log.Error("failed to load root actions", "error", err)
		return inst.ID, true
	}

	r := newRun()
	for i := range actions {
		s.executeAction(ctx, r, &actions[i], entity, user)
	}
	return inst.ID, true
}

// ExecuteAction выполняет действие и, при успехе, его потомков.
//
// Возвращает результат самого действия. Ошибки исполнителя и паники
// логируются и превращаются в false. Без action или entity действие не
// выполняется.
func (s *Service) ExecuteAction(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) bool {
	if action == nil || entity == nil {
		s.logger.Error("action not executed", "error", fmt.Errorf("%w: nil action or entity", ErrInvalidArgument))
		return false
	}
	if user == nil {
		user = domain.SystemUser
	}
	return s.executeAction(ctx, newRun(), action, entity, user)
}

// RunChildActions выполняет дочерние действия parent.
// Используется для продолжения ветки после ожидания (wait_condition).
func (s *Service) RunChildActions(ctx context.Context, parent *domain.WorkflowAction, entity *domain.Entity, user *domain.User) {
	if parent == nil || entity == nil {
		s.logger.Error("child actions not executed", "error", fmt.Errorf("%w: nil action or entity", ErrInvalidArgument))
		return
	}
	if user == nil {
		user = domain.SystemUser
	}
	r := newRun()
	r.visited[parent.ID] = true
	s.runChildActions(ctx, r, parent, entity, user)
}

func (s *Service) executeAction(ctx context.Context, r *run, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) bool {
	log := telemetry.WithActionID(s.logger, action.ID.String()).With(
		"workflow_id", action.WorkflowID,
		"type", action.TypeName,
		"obj_type", entity.ObjType,
		"entity_id", entity.ID,
	)

	if r.visited[action.ID] {
		log.Error("action cycle detected, branch stopped", "error", engine.ErrCyclicDependency)
		return false
	}
	r.visited[action.ID] = true

	if err := ctx.Err(); err != nil {
		log.Warn("action skipped, context done", "error", err)
		return false
	}

	ok, err := s.invoke(ctx, action, entity, user)
	switch {
	case ok:
		log.Info("action completed")
		telemetry.ActionsExecuted.WithLabelValues(action.TypeName, telemetry.OutcomeSuccess).Inc()
		s.runChildActions(ctx, r, action, entity, user)
	case err != nil:
		log.Error("action failed", "error", err)
		telemetry.ActionsExecuted.WithLabelValues(action.TypeName, telemetry.OutcomeError).Inc()
	default:
		log.Debug("action returned false, children skipped")
		telemetry.ActionsExecuted.WithLabelValues(action.TypeName, telemetry.OutcomeFailure).Inc()
	}
	return ok
}

// invoke создаёт исполнитель и вызывает его с таймаутом.
// Паника конструктора или исполнителя превращается в ErrActionPanic.
func (s *Service) invoke(ctx context.Context, action *domain.WorkflowAction, entity *domain.Entity, user *domain.User) (ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("%w: %v", ErrActionPanic, rec)
		}
	}()

	executor, err := s.factory.Create(action.TypeName)
	if err != nil {
		return false, fmt.Errorf("resolve action executor: %w", err)
	}

	ok, err = executor.Execute(ctx, action, entity, user)
	if ok && err != nil {
		// Ошибка важнее флага успеха
		ok = false
	}
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return false, fmt.Errorf("action timed out after %s", s.actionTimeout)
	}
	return ok, err
}

func (s *Service) runChildActions(ctx context.Context, r *run, parent *domain.WorkflowAction, entity *domain.Entity, user *domain.User) {
	children, err := s.mapper.GetActions(ctx, parent.WorkflowID, &parent.ID)
	if err != nil {
		s.logger.Error("failed to load child actions",
			"action_id", parent.ID,
			"entity_id", entity.ID,
			"error", err,
		)
		return
	}

	for i := range children {
		s.executeAction(ctx, r, &children[i], entity, user)
	}
}

// SaveWorkflow валидирует и сохраняет workflow с действиями.
//
// Пустые ID заполняются, действия привязываются к workflow. Неизвестные
// типы действий, циклы и ссылки на несуществующих родителей отклоняются
// до сохранения (*engine.ValidationError или ошибки engine).
func (s *Service) SaveWorkflow(ctx context.Context, wf *domain.Workflow, actions []domain.WorkflowAction) error {
	if wf.ObjType == "" {
		return fmt.Errorf("%w: workflow obj_type is required", ErrInvalidArgument)
	}
	for _, cond := range wf.Conditions {
		if _, err := MatchCondition(cond, domain.NewEntity(wf.ObjType)); err != nil {
			return err
		}
	}

	now := s.now().UTC()
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	for i := range actions {
		if actions[i].ID == uuid.Nil {
			actions[i].ID = uuid.New()
		}
		if actions[i].WorkflowID == uuid.Nil {
			actions[i].WorkflowID = wf.ID
		}
	}

	if _, err := engine.Validate(wf, actions, s.factory.Has); err != nil {
		return err
	}

	if err := s.mapper.SaveWorkflow(ctx, wf, actions); err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}

	s.logger.Info("workflow saved", "workflow_id", wf.ID, "obj_type", wf.ObjType, "actions", len(actions))
	return nil
}

// NotifyEvent загружает сущность и запускает workflow для события.
//
// Для события delete отсутствующая в хранилище сущность не ошибка:
// workflow получают сущность только с ID и типом.
func (s *Service) NotifyEvent(ctx context.Context, objType, entityID string, event domain.Event, user *domain.User) ([]uuid.UUID, error) {
	if objType == "" || entityID == "" {
		return nil, fmt.Errorf("%w: obj_type and entity_id are required", ErrInvalidArgument)
	}

	entity, err := s.entities.Get(ctx, objType, entityID)
	if err != nil {
		if event != domain.EventDelete {
			return nil, fmt.Errorf("load entity %s/%s: %w", objType, entityID, err)
		}
		entity = &domain.Entity{ID: entityID, ObjType: objType, Fields: map[string]any{}}
	}

	return s.RunWorkflowsOnEvent(ctx, entity, event, user)
}

// ResumeAction продолжает ветку после действия actionID.
// Вызывается worker WorkflowWaitAction, когда истекло ожидание.
func (s *Service) ResumeAction(ctx context.Context, actionID uuid.UUID, objType, entityID string, user *domain.User) error {
	action, err := s.mapper.GetAction(ctx, actionID)
	if err != nil {
		return fmt.Errorf("load action %s: %w", actionID, err)
	}

	entity, err := s.entities.Get(ctx, objType, entityID)
	if err != nil {
		return fmt.Errorf("load entity %s/%s: %w", objType, entityID, err)
	}

	s.logger.Info("resuming workflow branch", "action_id", actionID, "obj_type", objType, "entity_id", entityID)
	s.RunChildActions(ctx, action, entity, user)
	return nil
}
