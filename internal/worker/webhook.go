package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/telemetry"
)

const defaultWebhookTimeout = 30 * time.Second

// WebhookConfig — конфигурация worker Webhook.
type WebhookConfig struct {
	// Client (опционально; если nil — http.Client с Timeout)
	Client *http.Client

	// Timeout — таймаут запроса по умолчанию (default: 30s).
	Timeout time.Duration
}

// Webhook отправляет HTTP-запрос, описанный в payload задания.
//
// Payload:
//   - url (string): адрес запроса (обязательно)
//   - method (string): HTTP-метод. Default: POST
//   - headers (map): заголовки
//   - body (any): тело запроса, сериализуется в JSON
//   - timeout_sec (number): таймаут запроса в секундах
//
// Ответ со статусом >= 400 считается ошибкой worker.
type Webhook struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhook создаёт worker Webhook.
func NewWebhook(cfg WebhookConfig) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &Webhook{client: client, timeout: timeout}
}

// Work выполняет HTTP-запрос.
func (w *Webhook) Work(ctx context.Context, job *domain.Job) error {
	url := job.Payload.String("url")
	if url == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidPayload)
	}

	method := job.Payload.String("method")
	if method == "" {
		method = http.MethodPost
	}

	timeout := w.timeout
	if sec := job.Payload.Int("timeout_sec", 0); sec > 0 {
		timeout = time.Duration(sec) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if body, ok := job.Payload["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal body: %v", ErrWebhookRequest, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrWebhookRequest, err)
	}

	setHeaders(req, job.Payload)
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Workman-Job", job.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrWebhookRequest, err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrWebhookRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	telemetry.FromContext(ctx).Debug("webhook delivered", "url", url, "status", resp.StatusCode)
	return nil
}

// setHeaders устанавливает заголовки из payload.
func setHeaders(req *http.Request, payload domain.Payload) {
	headers, ok := payload["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
