package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// EnqueueResponse — поставленное задание.
type EnqueueResponse struct {
	Handle  string `json:"handle"`
	Worker  string `json:"worker"`
	Backend string `json:"backend"`
}

// RunResponse — результат синхронного выполнения worker.
type RunResponse struct {
	Worker string `json:"worker"`
	Status string `json:"status"`
}

// PurgeResponse — результат очистки очереди worker.
type PurgeResponse struct {
	Worker string `json:"worker"`
	Purged int    `json:"purged"`
}

// EventResponse — запущенные экземпляры workflow или handle задания.
type EventResponse struct {
	InstanceIDs []string `json:"instance_ids"`
	Handle      string   `json:"handle,omitempty"`
}

// Recurrence — шаблон повторения отложенного задания.
type Recurrence struct {
	Type       string `json:"type"`
	Interval   int    `json:"interval,omitempty"`
	DateStart  string `json:"date_start,omitempty"`
	DateEnd    string `json:"date_end,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
	Expr       string `json:"expr,omitempty"`
}

// ScheduledJobResponse — отложенное задание из API.
type ScheduledJobResponse struct {
	ID          string         `json:"id"`
	WorkerName  string         `json:"worker_name"`
	JobData     map[string]any `json:"job_data,omitempty"`
	State       string         `json:"state"`
	TsScheduled string         `json:"ts_scheduled"`
	TsExecuted  string         `json:"ts_executed,omitempty"`
	Recurrence  *Recurrence    `json:"recurrence,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// WorkflowResponse — сохранённый workflow с действиями.
type WorkflowResponse struct {
	Workflow struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		ObjType string `json:"obj_type"`
		Active  bool   `json:"active"`
	} `json:"workflow"`
	Actions []json.RawMessage `json:"actions"`
}

// --- Request types ---

// JobRequest — запуск или постановка задания.
type JobRequest struct {
	Payload      map[string]any `json:"payload,omitempty"`
	DelaySeconds int            `json:"delay_seconds,omitempty"`
}

// CreateScheduledJobRequest — создание отложенного задания.
type CreateScheduledJobRequest struct {
	WorkerName     string         `json:"worker_name"`
	Payload        map[string]any `json:"payload,omitempty"`
	ExecuteAt      *time.Time     `json:"execute_at,omitempty"`
	RecurrenceType string         `json:"recurrence_type,omitempty"`
	Interval       int            `json:"interval,omitempty"`
	Recurrence     *Recurrence    `json:"recurrence,omitempty"`
}

// EventRequest — событие сущности.
type EventRequest struct {
	ObjType   string `json:"obj_type"`
	EntityID  string `json:"entity_id"`
	Event     string `json:"event"`
	UserID    string `json:"user_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Async     bool   `json:"async,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент Workman API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API по адресу baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workers ---

// ListWorkers возвращает имена зарегистрированных worker.
func (c *Client) ListWorkers() ([]string, error) {
	var names []string
	err := c.list("/api/v1/workers", nil, &names)
	return names, err
}

// RunWorker выполняет worker синхронно.
func (c *Client) RunWorker(name string, payload map[string]any) (*RunResponse, error) {
	var resp RunResponse
	err := c.post("/api/v1/workers/"+url.PathEscape(name)+"/run", JobRequest{Payload: payload}, &resp)
	return &resp, err
}

// EnqueueJob ставит задание в очередь worker. delay > 0 откладывает выполнение.
func (c *Client) EnqueueJob(name string, payload map[string]any, delay time.Duration) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	req := JobRequest{Payload: payload, DelaySeconds: int(delay / time.Second)}
	err := c.post("/api/v1/workers/"+url.PathEscape(name)+"/jobs", req, &resp)
	return &resp, err
}

// PurgeJobs удаляет ожидающие задания worker.
func (c *Client) PurgeJobs(name string) (*PurgeResponse, error) {
	var resp PurgeResponse
	err := c.doData(http.MethodDelete, "/api/v1/workers/"+url.PathEscape(name)+"/jobs", nil, &resp)
	return &resp, err
}

// --- Scheduled jobs ---

// CreateScheduledJob создаёт отложенное задание.
func (c *Client) CreateScheduledJob(req CreateScheduledJobRequest) (*ScheduledJobResponse, error) {
	var job ScheduledJobResponse
	err := c.post("/api/v1/scheduled-jobs", req, &job)
	return &job, err
}

// GetScheduledJob возвращает отложенное задание по ID.
func (c *Client) GetScheduledJob(id string) (*ScheduledJobResponse, error) {
	var job ScheduledJobResponse
	err := c.get("/api/v1/scheduled-jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// DueJobs возвращает задания, наступившие к asOf. Нулевой asOf — текущее время сервера.
func (c *Client) DueJobs(asOf time.Time, workerName string) ([]ScheduledJobResponse, error) {
	params := url.Values{}
	if !asOf.IsZero() {
		params.Set("as_of", asOf.UTC().Format(time.RFC3339))
	}
	if workerName != "" {
		params.Set("worker", workerName)
	}

	var jobs []ScheduledJobResponse
	err := c.list("/api/v1/scheduled-jobs/due", params, &jobs)
	return jobs, err
}

// MarkExecuted помечает задание выполненным.
func (c *Client) MarkExecuted(id string) (*ScheduledJobResponse, error) {
	var job ScheduledJobResponse
	err := c.post("/api/v1/scheduled-jobs/"+url.PathEscape(id)+"/executed", nil, &job)
	return &job, err
}

// --- Events ---

// NotifyEvent сообщает о событии сущности.
func (c *Client) NotifyEvent(req EventRequest) (*EventResponse, error) {
	var resp EventResponse
	err := c.post("/api/v1/events", req, &resp)
	return &resp, err
}

// --- Workflows ---

// SaveWorkflow сохраняет workflow. definition — JSON вида {"workflow":...,"actions":[...]}.
func (c *Client) SaveWorkflow(definition json.RawMessage) (*WorkflowResponse, error) {
	var resp WorkflowResponse
	err := c.post("/api/v1/workflows", definition, &resp)
	return &resp, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{StatusCode: resp.StatusCode}
	}

	return &APIError{StatusCode: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
