package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// request — запрос, полученный тестовым сервером.
type request struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeAPI отвечает заготовленными ответами по "METHOD path".
type fakeAPI struct {
	mu        sync.Mutex
	requests  []request
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{responses: make(map[string]fakeResponse)}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return api, server
}

func (f *fakeAPI) on(method, path string, status int, body string) {
	f.responses[method+" "+path] = fakeResponse{status: status, body: body}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
	data, _ := io.ReadAll(r.Body)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	resp, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"no route"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (f *fakeAPI) last() request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// runCmd выполняет команду и возвращает stdout и stderr.
func runCmd(t *testing.T, serverURL string, jsonMode bool, newCmd func(func() *Client, func() *Output) *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := newCmd(
		func() *Client { return NewClient(serverURL) },
		func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) },
	)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestWorkerList(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("GET", "/api/v1/workers", 200, `{"data":["ScheduledJobs","Webhook"],"total":2}`)

	stdout, _, err := runCmd(t, server.URL, false, NewWorkerCmd, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "ScheduledJobs")
	assert.Contains(t, stdout, "Webhook")

	stdout, _, err = runCmd(t, server.URL, true, NewWorkerCmd, "list")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(stdout), &names))
	assert.Equal(t, []string{"ScheduledJobs", "Webhook"}, names)
}

func TestWorkerEnqueue(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/workers/Webhook/jobs", 202,
		`{"data":{"handle":"h-1","worker":"Webhook","backend":"memory"}}`)

	stdout, stderr, err := runCmd(t, server.URL, false, NewWorkerCmd,
		"enqueue", "Webhook",
		"--payload", `{"url":"http://example.com","timeout_sec":5}`,
		"--data", "method=PUT",
		"--delay", "90s",
	)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Job enqueued: h-1")
	assert.Contains(t, stdout, "memory")

	req := api.last()
	assert.Equal(t, float64(90), req.Body["delay_seconds"])
	assert.Equal(t, map[string]any{
		"url":         "http://example.com",
		"timeout_sec": float64(5),
		"method":      "PUT",
	}, req.Body["payload"])
}

func TestWorkerRun_ServerError(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/workers/Webhook/run", 422,
		`{"error":{"code":"WORKER_FAILED","message":"worker failed: Webhook: HTTP 502"}}`)

	_, _, err := runCmd(t, server.URL, false, NewWorkerCmd, "run", "Webhook", "--data", "url=http://x")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 422, apiErr.StatusCode)
	assert.Equal(t, "WORKER_FAILED", apiErr.Code)
	assert.Equal(t, "WORKER_FAILED: worker failed: Webhook: HTTP 502", err.Error())
}

func TestWorkerPurge(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("DELETE", "/api/v1/workers/Webhook/jobs", 200, `{"data":{"worker":"Webhook","purged":3}}`)

	_, stderr, err := runCmd(t, server.URL, false, NewWorkerCmd, "purge", "Webhook")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Purged 3 job(s) of Webhook")
}

func TestPayloadFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   payloadFlags
		want    map[string]any
		wantErr bool
	}{
		{"empty", payloadFlags{}, nil, false},
		{"data only", payloadFlags{data: []string{"a=1", "b=x=y"}}, map[string]any{"a": "1", "b": "x=y"}, false},
		{"data overrides json", payloadFlags{raw: `{"a":2}`, data: []string{"a=1"}}, map[string]any{"a": "1"}, false},
		{"null json", payloadFlags{raw: `null`, data: []string{"a=1"}}, map[string]any{"a": "1"}, false},
		{"bad pair", payloadFlags{data: []string{"novalue"}}, nil, true},
		{"empty key", payloadFlags{data: []string{"=v"}}, nil, true},
		{"bad json", payloadFlags{raw: `[1]`}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.parse()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheduleAt(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/scheduled-jobs", 201,
		`{"data":{"id":"j-1","worker_name":"Webhook","state":"pending","ts_scheduled":"2026-05-01T10:00:00Z","created_at":"2026-05-01T09:00:00Z"}}`)

	stdout, stderr, err := runCmd(t, server.URL, false, NewScheduleCmd,
		"at", "Webhook", "--time", "2026-05-01T10:00:00Z", "--data", "url=http://x")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Scheduled job created: j-1")
	assert.Contains(t, stdout, "pending")

	req := api.last()
	assert.Equal(t, "Webhook", req.Body["worker_name"])
	assert.Equal(t, "2026-05-01T10:00:00Z", req.Body["execute_at"])
	assert.Nil(t, req.Body["recurrence"])

	_, _, err = runCmd(t, server.URL, false, NewScheduleCmd, "at", "Webhook")
	assert.ErrorContains(t, err, "one of --time or --in is required")

	_, _, err = runCmd(t, server.URL, false, NewScheduleCmd, "at", "Webhook", "--time", "tomorrow")
	assert.ErrorContains(t, err, "expected RFC3339")
}

func TestScheduleEvery(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/scheduled-jobs", 201,
		`{"data":{"id":"j-2","worker_name":"ScheduledJobs","state":"pending","ts_scheduled":"2026-05-01T10:00:00Z","recurrence":{"type":"minute","interval":1,"date_start":"2026-05-01T10:00:00Z"},"created_at":"2026-05-01T10:00:00Z"}}`)

	stdout, _, err := runCmd(t, server.URL, false, NewScheduleCmd, "every", "minute", "ScheduledJobs")
	require.NoError(t, err)
	assert.Contains(t, stdout, "every 1 minute")

	req := api.last()
	assert.Equal(t, "minute", req.Body["recurrence_type"])
	assert.Equal(t, float64(1), req.Body["interval"])

	_, _, err = runCmd(t, server.URL, false, NewScheduleCmd,
		"every", "month", "Report", "--interval", "2", "--day-of-month", "31", "--start", "2026-01-31T09:00:00Z")
	require.NoError(t, err)

	req = api.last()
	assert.Nil(t, req.Body["recurrence_type"])
	assert.Equal(t, map[string]any{
		"type":         "month",
		"interval":     float64(2),
		"date_start":   "2026-01-31T09:00:00Z",
		"day_of_month": float64(31),
	}, req.Body["recurrence"])
}

func TestScheduleCron(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/scheduled-jobs", 201,
		`{"data":{"id":"j-3","worker_name":"Cleanup","state":"pending","ts_scheduled":"2026-05-02T02:30:00Z","recurrence":{"type":"cron","expr":"30 2 * * *","date_start":"2026-05-01T10:00:00Z"},"created_at":"2026-05-01T10:00:00Z"}}`)

	stdout, _, err := runCmd(t, server.URL, false, NewScheduleCmd, "cron", "30 2 * * *", "Cleanup")
	require.NoError(t, err)
	assert.Contains(t, stdout, "cron 30 2 * * *")

	req := api.last()
	assert.Equal(t, map[string]any{"type": "cron", "expr": "30 2 * * *"}, req.Body["recurrence"])
}

func TestScheduleDueAndDone(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("GET", "/api/v1/scheduled-jobs/due", 200,
		`{"data":[{"id":"j-1","worker_name":"Webhook","state":"pending","ts_scheduled":"2026-05-01T10:00:00Z"}],"total":1}`)
	api.on("POST", "/api/v1/scheduled-jobs/j-1/executed", 200,
		`{"data":{"id":"j-1","worker_name":"Webhook","state":"executed","ts_scheduled":"2026-05-01T10:00:00Z","ts_executed":"2026-05-01T10:00:05Z"}}`)

	stdout, _, err := runCmd(t, server.URL, false, NewScheduleCmd,
		"due", "--as-of", "2026-05-01T12:00:00+02:00", "--worker", "Webhook")
	require.NoError(t, err)
	assert.Contains(t, stdout, "j-1")

	req := api.last()
	assert.Contains(t, req.Query, "as_of=2026-05-01T10%3A00%3A00Z")
	assert.Contains(t, req.Query, "worker=Webhook")

	_, stderr, err := runCmd(t, server.URL, false, NewScheduleCmd, "done", "j-1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "marked as executed")
}

func TestScheduleDone_Conflict(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/scheduled-jobs/j-1/executed", 409,
		`{"error":{"code":"CONFLICT","message":"scheduled job already executed"}}`)

	_, _, err := runCmd(t, server.URL, false, NewScheduleCmd, "done", "j-1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestEventNotify(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/events", 200, `{"data":{"instance_ids":["i-1","i-2"]}}`)

	stdout, stderr, err := runCmd(t, server.URL, false, NewEventCmd,
		"notify", "task", "task-1", "update", "--user-id", "u-1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Workflows started: 2")
	assert.Contains(t, stdout, "i-1,i-2")

	req := api.last()
	assert.Equal(t, map[string]any{
		"obj_type":  "task",
		"entity_id": "task-1",
		"event":     "update",
		"user_id":   "u-1",
	}, req.Body)
}

func TestEventNotify_Async(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/events", 202, `{"data":{"instance_ids":[],"handle":"h-9"}}`)

	_, stderr, err := runCmd(t, server.URL, false, NewEventCmd, "notify", "task", "task-1", "create", "--async")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Event enqueued: h-9")
	assert.Equal(t, true, api.last().Body["async"])
}

func TestWorkflowSave(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/workflows", 201,
		`{"data":{"workflow":{"id":"w-1","name":"Close","obj_type":"task","active":true},"actions":[{"id":"a-1"},{"id":"a-2"}]}}`)

	definition := `{"workflow":{"name":"Close","obj_type":"task","on_create":true,"active":true},"actions":[]}`
	file := filepath.Join(t.TempDir(), "wf.json")
	require.NoError(t, os.WriteFile(file, []byte(definition), 0o600))

	stdout, stderr, err := runCmd(t, server.URL, false, NewWorkflowCmd, "save", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Workflow saved: w-1")
	assert.Contains(t, stdout, "task")

	req := api.last()
	assert.Equal(t, "Close", req.Body["workflow"].(map[string]any)["name"])
}

func TestWorkflowSave_Stdin(t *testing.T) {
	api, server := newFakeAPI(t)
	api.on("POST", "/api/v1/workflows", 201, `{"data":{"workflow":{"id":"w-2"},"actions":[]}}`)

	var stdout, stderr bytes.Buffer
	cmd := NewWorkflowCmd(
		func() *Client { return NewClient(server.URL) },
		func() *Output { return NewOutputTo(false, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"save", "-f", "-"})
	cmd.SetIn(strings.NewReader(`{"workflow":{"name":"x","obj_type":"task"},"actions":[]}`))
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "Workflow saved: w-2")
}

func TestWorkflowSave_InvalidFile(t *testing.T) {
	_, server := newFakeAPI(t)

	file := filepath.Join(t.TempDir(), "wf.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0o600))

	_, _, err := runCmd(t, server.URL, false, NewWorkflowCmd, "save", "-f", file)
	assert.ErrorContains(t, err, "not valid JSON")

	_, _, err = runCmd(t, server.URL, false, NewWorkflowCmd, "save", "-f", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read workflow definition")
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ListWorkers()
	assert.EqualError(t, err, "API error: HTTP 502")
}
