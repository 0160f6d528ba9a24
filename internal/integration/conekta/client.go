package conekta

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

const (
	defaultBaseURL    = "https://api.conekta.io"
	defaultAPIVersion = "2.0.0"
	defaultTimeout    = 30 * time.Second
)

// Config конфигурация для клиента Conekta
type Config struct {
	PrivateKey    string
	WebhookSecret string
	BaseURL       string
	APIVersion    string
	Timeout       time.Duration
}

// Client представляет клиент для работы с REST API Conekta
type Client struct {
	baseURL       string
	apiVersion    string
	authHeader    string
	webhookSecret string
	httpClient    *http.Client
	log           *logger.Logger
}

// NewClient создает новый клиент Conekta
func NewClient(cfg Config, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:       baseURL,
		apiVersion:    version,
		authHeader:    "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.PrivateKey+":")),
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
		log:           log,
	}
}

// apiError тело ошибки Conekta
type apiError struct {
	Object  string `json:"object"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Details []struct {
		Code         string `json:"code"`
		Message      string `json:"message"`
		DebugMessage string `json:"debug_message"`
	} `json:"details"`
}

func (e *apiError) text() string {
	if len(e.Details) > 0 && e.Details[0].Message != "" {
		return e.Details[0].Message
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Type
}

func (e *apiError) code() string {
	if len(e.Details) > 0 && e.Details[0].Code != "" {
		return e.Details[0].Code
	}
	return e.Type
}

// requestError - ответ Conekta с кодом ошибки
type requestError struct {
	StatusCode int
	Body       apiError
}

func (e *requestError) Error() string {
	return fmt.Sprintf("conekta API error (status %d, type %s): %s", e.StatusCode, e.Body.Type, e.Body.text())
}

// do выполняет запрос и декодирует ответ в out
func (c *Client) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Добавляем заголовки
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/vnd.conekta-v"+c.apiVersion+"+json")
	req.Header.Set("Accept-Language", "es")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewExternalServiceError("conekta", "network", "failed to execute request", 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		reqErr := &requestError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, &reqErr.Body); jsonErr != nil {
			reqErr.Body.Message = string(data)
		}
		if resp.StatusCode >= 500 {
			return domain.NewExternalServiceError("conekta", reqErr.Body.code(), reqErr.Body.text(), resp.StatusCode, reqErr)
		}
		return reqErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// metadataMap приводит метаданные Conekta (значения могут быть не строками) к строкам
func metadataMap(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
