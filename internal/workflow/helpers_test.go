package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/memstore"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// callLog запоминает порядок вызова действий.
type callLog struct {
	mu    sync.Mutex
	names []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

func (c *callLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func (c *callLog) count(name string) int {
	n := 0
	for _, got := range c.all() {
		if got == name {
			n++
		}
	}
	return n
}

// testEnv — Service поверх memstore с тестовыми типами действий:
//
//	ok    — возвращает true
//	fail  — возвращает false
//	error — возвращает ошибку
//	panic — паникует
//	block — ждёт отмены контекста
type testEnv struct {
	svc      *Service
	mapper   *memstore.Workflows
	entities *memstore.Entities
	calls    *callLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	calls := &callLog{}
	record := func(result bool, err error) ActionExecutor {
		return ExecutorFunc(func(_ context.Context, a *domain.WorkflowAction, _ *domain.Entity, _ *domain.User) (bool, error) {
			calls.add(a.Name)
			return result, err
		})
	}

	factory := NewFactory()
	factory.RegisterExecutor("ok", record(true, nil))
	factory.RegisterExecutor("fail", record(false, nil))
	factory.RegisterExecutor("error", record(false, errBoom))
	factory.RegisterExecutor("panic", ExecutorFunc(func(_ context.Context, a *domain.WorkflowAction, _ *domain.Entity, _ *domain.User) (bool, error) {
		calls.add(a.Name)
		panic("executor exploded")
	}))
	factory.Register("ctor_panic", func() ActionExecutor {
		panic("constructor exploded")
	})
	factory.Register("nil_executor", func() ActionExecutor { return nil })
	factory.RegisterExecutor("block", ExecutorFunc(func(ctx context.Context, a *domain.WorkflowAction, _ *domain.Entity, _ *domain.User) (bool, error) {
		calls.add(a.Name)
		<-ctx.Done()
		return false, ctx.Err()
	}))

	env := &testEnv{
		mapper:   memstore.NewWorkflows(),
		entities: memstore.NewEntities(),
		calls:    calls,
	}
	env.svc = NewService(Config{
		Mapper:        env.mapper,
		Entities:      env.entities,
		Factory:       factory,
		Now:           func() time.Time { return testNow },
		ActionTimeout: 50 * time.Millisecond,
	})
	return env
}

// saveWorkflow сохраняет workflow в обход валидации.
func (e *testEnv) saveWorkflow(t *testing.T, wf *domain.Workflow, actions ...domain.WorkflowAction) {
	t.Helper()
	for i := range actions {
		actions[i].WorkflowID = wf.ID
	}
	require.NoError(t, e.mapper.SaveWorkflow(context.Background(), wf, actions))
}

func newWorkflow(objType string) *domain.Workflow {
	return &domain.Workflow{
		ID:       uuid.New(),
		Name:     "wf",
		ObjType:  objType,
		OnCreate: true,
		OnUpdate: true,
		Active:   true,
	}
}

func action(name, typeName string, parent *domain.WorkflowAction) domain.WorkflowAction {
	a := domain.WorkflowAction{ID: uuid.New(), Name: name, TypeName: typeName}
	if parent != nil {
		a.ParentActionID = &parent.ID
	}
	return a
}

func savedTask() *domain.Entity {
	e := domain.NewEntity("task")
	e.ID = "task-1"
	e.SetValue("name", "Write report")
	e.SetValue("status", "open")
	return e
}

var errBoom = errors.New("boom")
