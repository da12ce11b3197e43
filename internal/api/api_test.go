package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/memstore"
	"github.com/shaiso/Workman/internal/queue"
	"github.com/shaiso/Workman/internal/scheduler"
	"github.com/shaiso/Workman/internal/telemetry"
	"github.com/shaiso/Workman/internal/worker"
	"github.com/shaiso/Workman/internal/workflow"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// testServer — API поверх сервисов в памяти.
type testServer struct {
	server   *httptest.Server
	workers  *worker.Service
	queue    *queue.Memory
	entities *memstore.Entities
	mapper   *memstore.Workflows

	mu   sync.Mutex
	runs []domain.Payload
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := func() time.Time { return testNow }
	ts := &testServer{
		entities: memstore.NewEntities(),
		mapper:   memstore.NewWorkflows(),
		queue:    queue.NewMemory(queue.MemoryConfig{Now: clock}),
	}

	registry := worker.NewRegistry()
	sched := scheduler.New(scheduler.Config{Store: memstore.NewScheduledJobs(), Now: clock, KnownWorker: registry.Has})
	flows := workflow.NewService(workflow.Config{
		Mapper:   ts.mapper,
		Entities: ts.entities,
		Factory:  workflow.DefaultFactory(workflow.Deps{Entities: ts.entities, Scheduler: sched, Now: clock}),
		Now:      clock,
	})

	registry.RegisterWorker("Report", queue.WorkerFunc(func(_ context.Context, job *domain.Job) error {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		ts.runs = append(ts.runs, job.Payload)
		return nil
	}))
	registry.RegisterWorker("Broken", queue.WorkerFunc(func(context.Context, *domain.Job) error {
		return errors.New("disk full")
	}))
	ts.workers = worker.NewService(worker.Config{Queue: ts.queue, Registry: registry})
	worker.RegisterBuiltins(registry, worker.Deps{Workflows: flows})

	h := NewHandler(Config{Workers: ts.workers, Scheduler: sched, Workflows: flows})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	ts.server = httptest.NewServer(mux)
	t.Cleanup(ts.server.Close)
	return ts
}

// do выполняет запрос и разбирает JSON-ответ в out (если не nil).
func (ts *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) reports() []domain.Payload {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]domain.Payload(nil), ts.runs...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type errorBody struct {
	Error ErrorDetail `json:"error"`
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_NotReady(t *testing.T) {
	h := NewHandler(Config{Ready: func(context.Context) error { return errors.New("database: down") }})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListWorkers(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Data  []string `json:"data"`
		Total int      `json:"total"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/workers", nil, &body))
	assert.Contains(t, body.Data, "Report")
	assert.Contains(t, body.Data, worker.EntityEventWorker)
	assert.Equal(t, len(body.Data), body.Total)
}

func TestRunWorker(t *testing.T) {
	ts := newTestServer(t)

	status := ts.do(t, http.MethodPost, "/api/v1/workers/Report/run", JobRequest{Payload: domain.Payload{"month": "2026-05"}}, nil)
	assert.Equal(t, http.StatusOK, status)
	runs := ts.reports()
	require.Len(t, runs, 1)
	assert.Equal(t, "2026-05", runs[0].String("month"))
	assert.Equal(t, 0, ts.queue.Pending("Report"))
}

func TestRunWorker_Errors(t *testing.T) {
	ts := newTestServer(t)

	var body errorBody
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/workers/Missing/run", nil, &body))
	assert.Equal(t, ErrCodeNotFound, body.Error.Code)

	assert.Equal(t, http.StatusUnprocessableEntity, ts.do(t, http.MethodPost, "/api/v1/workers/Broken/run", nil, &body))
	assert.Equal(t, ErrCodeWorkerFailed, body.Error.Code)
	assert.Contains(t, body.Error.Message, "disk full")
}

func TestEnqueueAndPurge(t *testing.T) {
	ts := newTestServer(t)

	var enq struct {
		Data EnqueueResponse `json:"data"`
	}
	require.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/api/v1/workers/Report/jobs", JobRequest{}, &enq))
	assert.NotEmpty(t, enq.Data.Handle)
	assert.Equal(t, "memory", enq.Data.Backend)

	require.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/api/v1/workers/Report/jobs", JobRequest{DelaySeconds: 60}, nil))
	assert.Equal(t, 2, ts.queue.Pending("Report"))

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/workers/Report/jobs", JobRequest{DelaySeconds: -1}, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/workers/Missing/jobs", JobRequest{}, nil))

	var purged struct {
		Data PurgeResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/v1/workers/Report/jobs", nil, &purged))
	assert.Equal(t, 2, purged.Data.Purged)
	assert.Equal(t, 0, ts.queue.Pending("Report"))
}

func TestScheduledJobs(t *testing.T) {
	ts := newTestServer(t)

	at := testNow.Add(-time.Minute)
	var created struct {
		Data ScheduledJobResponse `json:"data"`
	}
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/scheduled-jobs", CreateScheduledJobRequest{
		WorkerName: "Report",
		ExecuteAt:  &at,
		Payload:    domain.Payload{"month": "2026-04"},
	}, &created))
	assert.Equal(t, domain.ScheduledJobDue, created.Data.State)
	assert.Equal(t, "2026-04", created.Data.JobData.String("month"))

	var due struct {
		Data []ScheduledJobResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/scheduled-jobs/due?worker=Report", nil, &due))
	require.Len(t, due.Data, 1)
	assert.Equal(t, created.Data.ID, due.Data[0].ID)

	// До наступления — пусто
	past := at.Add(-time.Hour).Format(time.RFC3339)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/scheduled-jobs/due?as_of="+past, nil, &due))
	assert.Empty(t, due.Data)

	path := "/api/v1/scheduled-jobs/" + created.Data.ID.String()
	var executed struct {
		Data ScheduledJobResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, path+"/executed", nil, &executed))
	assert.Equal(t, domain.ScheduledJobExecuted, executed.Data.State)
	require.NotNil(t, executed.Data.TsExecuted)

	// Повторный claim — конфликт
	var body errorBody
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, path+"/executed", nil, &body))
	assert.Equal(t, ErrCodeConflict, body.Error.Code)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, path, nil, nil))
}

func TestScheduledJobs_Recurring(t *testing.T) {
	ts := newTestServer(t)

	var created struct {
		Data ScheduledJobResponse `json:"data"`
	}
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/scheduled-jobs", CreateScheduledJobRequest{
		WorkerName:     "Report",
		RecurrenceType: domain.RecurDay,
		Interval:       1,
	}, &created))
	require.NotNil(t, created.Data.Recurrence)
	assert.Equal(t, domain.RecurDay, created.Data.Recurrence.Type)
	assert.True(t, created.Data.TsScheduled.Equal(testNow))

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/scheduled-jobs", CreateScheduledJobRequest{
		WorkerName: "Report",
		Recurrence: &domain.RecurrencePattern{Type: domain.RecurCron, Expr: "30 2 * * *"},
	}, &created))
	assert.True(t, created.Data.TsScheduled.Equal(time.Date(2026, 5, 2, 2, 30, 0, 0, time.UTC)))
}

func TestScheduledJobs_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	at := testNow

	tests := []struct {
		name string
		req  CreateScheduledJobRequest
	}{
		{"no worker", CreateScheduledJobRequest{ExecuteAt: &at}},
		{"no timing", CreateScheduledJobRequest{WorkerName: "Report"}},
		{"bad interval", CreateScheduledJobRequest{WorkerName: "Report", RecurrenceType: domain.RecurDay, Interval: 0}},
		{"bad cron", CreateScheduledJobRequest{WorkerName: "Report", Recurrence: &domain.RecurrencePattern{Type: domain.RecurCron, Expr: "nope"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/scheduled-jobs", tt.req, nil))
		})
	}

	var body errorBody
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/scheduled-jobs", CreateScheduledJobRequest{
		WorkerName: "Typo", ExecuteAt: &at,
	}, &body))
	assert.Equal(t, ErrCodeNotFound, body.Error.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/scheduled-jobs", CreateScheduledJobRequest{
		WorkerName: "Typo", RecurrenceType: domain.RecurMinute, Interval: 1,
	}, nil))

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/scheduled-jobs/not-a-uuid", nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/scheduled-jobs/00000000-0000-0000-0000-000000000001", nil, nil))
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/scheduled-jobs/due?as_of=yesterday", nil, nil))
}

func TestWorkflowAndEvents(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	req := map[string]any{
		"workflow": map[string]any{
			"name": "Close new tasks", "obj_type": "task", "on_create": true, "active": true,
		},
		"actions": []map[string]any{
			{
				"id":        "6f1c2c1e-0000-4000-8000-000000000001",
				"type_name": workflow.TypeUpdateField,
				"data":      map[string]any{"update_field": "status", "update_value": "closed"},
			},
		},
	}
	var saved struct {
		Data WorkflowResponse `json:"data"`
	}
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/workflows", req, &saved))
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", saved.Data.Workflow.ID.String())

	_, err := ts.entities.Save(ctx, &domain.Entity{ID: "task-1", ObjType: "task", Fields: map[string]any{"status": "open"}}, nil)
	require.NoError(t, err)

	var started struct {
		Data EventResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/events", EventRequest{
		ObjType: "task", EntityID: "task-1", Event: "create", UserID: "u-1",
	}, &started))
	assert.Len(t, started.Data.InstanceIDs, 1)

	stored, err := ts.entities.Get(ctx, "task", "task-1")
	require.NoError(t, err)
	assert.Equal(t, "closed", stored.GetValue("status"))

	// Асинхронно: событие уходит в очередь
	require.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/api/v1/events", EventRequest{
		ObjType: "task", EntityID: "task-1", Event: "update", Async: true,
	}, &started))
	assert.NotEmpty(t, started.Data.Handle)
	assert.Equal(t, 1, ts.queue.Pending(worker.EntityEventWorker))

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/events", EventRequest{ObjType: "task", EntityID: "task-1", Event: "archive"}, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/events", EventRequest{ObjType: "task", EntityID: "missing", Event: "update"}, nil))
}

func TestSaveWorkflow_Rejects(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		req  map[string]any
	}{
		{"unknown type", map[string]any{
			"workflow": map[string]any{"obj_type": "task"},
			"actions":  []map[string]any{{"type_name": "launch_rocket"}},
		}},
		{"missing parent", map[string]any{
			"workflow": map[string]any{"obj_type": "task"},
			"actions": []map[string]any{{
				"type_name":        workflow.TypeCheckCondition,
				"parent_action_id": "6f1c2c1e-0000-4000-8000-0000000000ff",
			}},
		}},
		{"no obj_type", map[string]any{
			"workflow": map[string]any{"name": "x"},
			"actions":  []map[string]any{{"type_name": workflow.TypeCheckCondition}},
		}},
		{"unknown field", map[string]any{"workflow": map[string]any{"obj_type": "task"}, "extra": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/workflows", tt.req, &body))
			assert.Equal(t, ErrCodeBadRequest, body.Error.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Chain(Logging(discardLogger()), Recovery(discardLogger()))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestLogging_RequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		assert.Equal(t, "req-42", entry["request_id"])
	}

	var last map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &last))
	assert.Equal(t, "http request", last["msg"])
	assert.Equal(t, float64(http.StatusTeapot), last["status"])
}
