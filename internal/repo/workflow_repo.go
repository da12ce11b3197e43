package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Workman/internal/domain"
)

// WorkflowRepo — репозиторий для workflows, workflow_actions и workflow_instances.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

const workflowColumns = `id, name, obj_type, on_create, on_update, on_delete, allow_manual,
	active, singleton, conditions, created_at, updated_at`

const actionColumns = `id, workflow_id, parent_action_id, name, type_name, data`

// eventColumns — колонка-триггер для каждого события.
var eventColumns = map[domain.Event]string{
	domain.EventCreate: "on_create",
	domain.EventUpdate: "on_update",
	domain.EventDelete: "on_delete",
	domain.EventManual: "allow_manual",
}

// SaveWorkflow сохраняет workflow и полностью заменяет его действия.
// Выполняется в одной транзакции.
func (r *WorkflowRepo) SaveWorkflow(ctx context.Context, wf *domain.Workflow, actions []domain.WorkflowAction) error {
	conditions, err := json.Marshal(wf.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	if wf.Conditions == nil {
		conditions = []byte("[]")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, obj_type = EXCLUDED.obj_type,
		    on_create = EXCLUDED.on_create, on_update = EXCLUDED.on_update,
		    on_delete = EXCLUDED.on_delete, allow_manual = EXCLUDED.allow_manual,
		    active = EXCLUDED.active, singleton = EXCLUDED.singleton,
		    conditions = EXCLUDED.conditions, updated_at = EXCLUDED.updated_at
	`,
		wf.ID,
		wf.Name,
		wf.ObjType,
		wf.OnCreate,
		wf.OnUpdate,
		wf.OnDelete,
		wf.AllowManual,
		wf.Active,
		wf.Singleton,
		conditions,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert workflow: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM workflow_actions WHERE workflow_id = $1`, wf.ID); err != nil {
		return fmt.Errorf("delete workflow actions: %w", err)
	}

	batch := &pgx.Batch{}
	for i, a := range actions {
		data, err := json.Marshal(a.Data)
		if err != nil {
			return fmt.Errorf("marshal action %s data: %w", a.ID, err)
		}
		if a.Data == nil {
			data = []byte("{}")
		}
		batch.Queue(`
			INSERT INTO workflow_actions (`+actionColumns+`, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, a.ID, wf.ID, nullUUID(a.ParentActionID), nullString(a.Name), a.TypeName, data, i)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("insert workflow actions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetWorkflow возвращает workflow по ID.
func (r *WorkflowRepo) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`
	return scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// ActiveWorkflowsForEvent возвращает активные workflow типа objType, подписанные на event.
func (r *WorkflowRepo) ActiveWorkflowsForEvent(ctx context.Context, objType string, event domain.Event) ([]domain.Workflow, error) {
	column, ok := eventColumns[event]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidState, event)
	}

	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE active AND obj_type = $1 AND ` + column + `
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, objType)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

// GetActions возвращает действия workflow с заданным родителем (nil — корневые).
func (r *WorkflowRepo) GetActions(ctx context.Context, workflowID uuid.UUID, parentID *uuid.UUID) ([]domain.WorkflowAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM workflow_actions
		WHERE workflow_id = $1
		  AND parent_action_id IS NOT DISTINCT FROM $2
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, workflowID, nullUUID(parentID))
	if err != nil {
		return nil, fmt.Errorf("list workflow actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.WorkflowAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

// GetAction возвращает действие по ID.
func (r *WorkflowRepo) GetAction(ctx context.Context, id uuid.UUID) (*domain.WorkflowAction, error) {
	query := `SELECT ` + actionColumns + ` FROM workflow_actions WHERE id = $1`
	return scanAction(r.pool.QueryRow(ctx, query, id))
}

// CreateInstance сохраняет экземпляр workflow.
//
// Для singleton проверка и вставка выполняются под advisory lock на пару
// (workflow, сущность): два одновременных события не создадут два экземпляра.
func (r *WorkflowRepo) CreateInstance(ctx context.Context, inst *domain.WorkflowInstance, singleton bool) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if singleton {
		key := inst.WorkflowID.String() + "/" + inst.EntityID
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return false, fmt.Errorf("lock instance: %w", err)
		}

		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE workflow_id = $1 AND entity_id = $2)
		`, inst.WorkflowID, inst.EntityID).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("check instance: %w", err)
		}
		if exists {
			return false, nil
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_instances (id, workflow_id, obj_type, entity_id, started_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inst.ID, inst.WorkflowID, inst.ObjType, inst.EntityID, nullString(inst.StartedBy), inst.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert workflow instance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var conditions []byte

	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&wf.ObjType,
		&wf.OnCreate,
		&wf.OnUpdate,
		&wf.OnDelete,
		&wf.AllowManual,
		&wf.Active,
		&wf.Singleton,
		&conditions,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if conditions != nil {
		if err := json.Unmarshal(conditions, &wf.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal conditions: %w", err)
		}
	}
	return &wf, nil
}

func scanAction(row pgx.Row) (*domain.WorkflowAction, error) {
	var a domain.WorkflowAction
	var name *string
	var data []byte

	err := row.Scan(
		&a.ID,
		&a.WorkflowID,
		&a.ParentActionID,
		&name,
		&a.TypeName,
		&data,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow action: %w", err)
	}

	if name != nil {
		a.Name = *name
	}
	if data != nil {
		payload, err := domain.DecodePayload(data)
		if err != nil {
			return nil, fmt.Errorf("decode action data: %w", err)
		}
		a.Data = payload
	}
	return &a, nil
}
